package config

import (
	"context"
	"log/slog"
	"reflect"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events editors emit for one save.
const reloadDebounce = 200 * time.Millisecond

// Watch monitors path and calls onChange with the newly loaded Config after
// each save. It runs until ctx is cancelled.
//
// A reload that fails validation is logged and skipped; onChange only ever
// sees valid configs.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}
	slog.Info("config: watching for changes", "path", path)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			pending = time.After(reloadDebounce)

		case <-pending:
			pending = nil
			// atomic saves replace the inode; re-arm before reading
			_ = watcher.Add(path)

			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", path, "err", err)
				continue
			}
			slog.Info("config: reloaded", "path", path)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

// ChangedMetrics returns the IDs of metrics that were added, removed or
// redefined between old and updated, sorted.
func ChangedMetrics(old, updated *Config) []string {
	before := make(map[string]Metric, len(old.Agent.Metrics))
	for _, m := range old.Agent.Metrics {
		before[m.ID] = m
	}
	var out []string
	for _, m := range updated.Agent.Metrics {
		prev, ok := before[m.ID]
		if !ok || !reflect.DeepEqual(prev, m) {
			out = append(out, m.ID)
		}
		delete(before, m.ID)
	}
	for id := range before {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
