package pipeline

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/obsidianstack/valuemetric/pkg/types"
)

// KeyFromFields builds the slice key of an event from the named fields.
// An absent field gets the empty value, the same as a missing label on a
// scraped series, so event keys line up with condition slices.
func KeyFromFields(fields map[string]any, dims []string) types.DimensionKey {
	if len(dims) == 0 {
		return types.DimensionKey{}
	}
	labels := make(map[string]string, len(dims))
	for _, d := range dims {
		if v, ok := fields[d]; ok {
			labels[d] = fieldString(v)
		} else {
			labels[d] = ""
		}
	}
	return types.NewDimensionKey(labels)
}

func fieldString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
