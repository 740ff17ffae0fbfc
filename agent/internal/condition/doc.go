// Package condition evaluates the boolean conditions that gate value metrics.
//
// A condition is a "value <op> <threshold>" predicate over a pulled metric
// family. Unsliced conditions have one truth value; sliced conditions keep one
// per combination of their dimension labels and are overall-active when any
// slice is. Tracker stores the current values and answers Evaluate(id, key).
package condition
