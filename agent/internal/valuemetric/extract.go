package valuemetric

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/obsidianstack/valuemetric/pkg/types"
)

// ErrMalformedEvent is returned by extractors for events without a usable
// value.
var ErrMalformedEvent = errors.New("valuemetric: malformed event")

// ValueExtractor maps a matched event to the value it contributes.
type ValueExtractor interface {
	Extract(ev types.Event) (float64, error)
}

// FieldExtractor reads one numeric field. With an empty Field every event
// counts as 1.
type FieldExtractor struct {
	Field string
}

func (f FieldExtractor) Extract(ev types.Event) (float64, error) {
	if f.Field == "" {
		return 1, nil
	}
	raw, ok := ev.Fields[f.Field]
	if !ok {
		return 0, fmt.Errorf("%w: field %q missing", ErrMalformedEvent, f.Field)
	}

	var v float64
	switch x := raw.(type) {
	case float64:
		v = x
	case float32:
		v = float64(x)
	case int:
		v = float64(x)
	case int64:
		v = float64(x)
	case uint64:
		v = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: field %q: %v", ErrMalformedEvent, f.Field, err)
		}
		v = n
	case string:
		n, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: field %q: %v", ErrMalformedEvent, f.Field, err)
		}
		v = n
	default:
		return 0, fmt.Errorf("%w: field %q has type %T", ErrMalformedEvent, f.Field, raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: field %q is not finite", ErrMalformedEvent, f.Field)
	}
	return v, nil
}
