package types

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Label is one name/value pair of a DimensionKey.
type Label struct {
	Name  string
	Value string
}

// DimensionKey identifies one aggregation slice. It is an immutable value type:
// two keys built from the same label set compare equal with == and can be used
// directly as map keys.
//
// The encoding is the sorted labels as Go-quoted name and value strings, so
// any byte may appear in a label without two label sets colliding.
//
// The zero value is the empty key, used by metrics without dimensions.
type DimensionKey struct {
	enc string
}

// NewDimensionKey builds a key from a label map. Empty values are kept so that
// "app=" and a missing "app" label stay distinct slices.
func NewDimensionKey(labels map[string]string) DimensionKey {
	if len(labels) == 0 {
		return DimensionKey{}
	}
	ls := make([]Label, 0, len(labels))
	for n, v := range labels {
		ls = append(ls, Label{Name: n, Value: v})
	}
	return fromLabels(ls)
}

// KeyOf builds a key from alternating name, value arguments:
//
//	KeyOf("app", "A", "uid", "1000")
//
// A trailing name without a value is ignored.
func KeyOf(pairs ...string) DimensionKey {
	ls := make([]Label, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		ls = append(ls, Label{Name: pairs[i], Value: pairs[i+1]})
	}
	return fromLabels(ls)
}

func fromLabels(ls []Label) DimensionKey {
	sort.SliceStable(ls, func(i, j int) bool { return ls[i].Name < ls[j].Name })
	var b strings.Builder
	for i, l := range ls {
		// later duplicates overwrite earlier ones
		if i+1 < len(ls) && ls[i+1].Name == l.Name {
			continue
		}
		b.WriteString(strconv.Quote(l.Name))
		b.WriteString(strconv.Quote(l.Value))
	}
	return DimensionKey{enc: b.String()}
}

// IsEmpty reports whether the key has no labels.
func (k DimensionKey) IsEmpty() bool { return k.enc == "" }

// Labels returns the key's labels sorted by name.
func (k DimensionKey) Labels() []Label {
	if k.enc == "" {
		return nil
	}
	var out []Label
	rest := k.enc
	for rest != "" {
		var n, v string
		var ok bool
		if n, rest, ok = unquotePrefix(rest); !ok {
			break
		}
		if v, rest, ok = unquotePrefix(rest); !ok {
			break
		}
		out = append(out, Label{Name: n, Value: v})
	}
	return out
}

func unquotePrefix(s string) (string, string, bool) {
	q, err := strconv.QuotedPrefix(s)
	if err != nil {
		return "", "", false
	}
	v, err := strconv.Unquote(q)
	if err != nil {
		return "", "", false
	}
	return v, s[len(q):], true
}

// Get returns the value of the named label.
func (k DimensionKey) Get(name string) (string, bool) {
	for _, l := range k.Labels() {
		if l.Name == name {
			return l.Value, true
		}
	}
	return "", false
}

// Project returns a key restricted to the given label names. Names absent from
// k are skipped.
func (k DimensionKey) Project(names ...string) DimensionKey {
	if len(names) == 0 || k.enc == "" {
		return DimensionKey{}
	}
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}
	var ls []Label
	for _, l := range k.Labels() {
		if _, ok := want[l.Name]; ok {
			ls = append(ls, l)
		}
	}
	return fromLabels(ls)
}

// Hash returns a stable 64-bit fingerprint of the key.
func (k DimensionKey) Hash() uint64 {
	return xxhash.Sum64String(k.enc)
}

// Compare orders keys by their canonical encoding. It returns -1, 0 or +1.
func (k DimensionKey) Compare(o DimensionKey) int {
	return strings.Compare(k.enc, o.enc)
}

// String renders the key as "name=value,name=value", or "{}" when empty.
// The rendering is for display; distinct keys may render alike.
func (k DimensionKey) String() string {
	if k.enc == "" {
		return "{}"
	}
	var b strings.Builder
	for i, l := range k.Labels() {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(l.Name)
		b.WriteByte('=')
		b.WriteString(l.Value)
	}
	return b.String()
}
