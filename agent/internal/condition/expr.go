package condition

import (
	"fmt"
	"strconv"
	"strings"
)

// Expr is a parsed "value <op> <threshold>" predicate.
//
// Supported operators: > >= < <= == !=
//
//	value > 0
//	value >= 1
//	value == 3
type Expr struct {
	Op        string
	Threshold float64
}

// ParseExpr parses a predicate string.
func ParseExpr(s string) (Expr, error) {
	parts := strings.Fields(s)
	if len(parts) != 3 {
		return Expr{}, fmt.Errorf("condition: expr %q: want 3 fields", s)
	}
	field, op, rhs := parts[0], parts[1], parts[2]
	if field != "value" {
		return Expr{}, fmt.Errorf("condition: expr %q: unknown field %q", s, field)
	}
	switch op {
	case ">", ">=", "<", "<=", "==", "!=":
	default:
		return Expr{}, fmt.Errorf("condition: expr %q: unknown operator %q", s, op)
	}
	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return Expr{}, fmt.Errorf("condition: expr %q: threshold: %w", s, err)
	}
	return Expr{Op: op, Threshold: threshold}, nil
}

// Match applies the predicate to v.
func (e Expr) Match(v float64) bool {
	switch e.Op {
	case ">":
		return v > e.Threshold
	case ">=":
		return v >= e.Threshold
	case "<":
		return v < e.Threshold
	case "<=":
		return v <= e.Threshold
	case "==":
		return v == e.Threshold
	case "!=":
		return v != e.Threshold
	default:
		return false
	}
}

func (e Expr) String() string {
	return "value " + e.Op + " " + strconv.FormatFloat(e.Threshold, 'g', -1, 64)
}
