// api/engine/errors.go
package engine

import "fmt"

// RangeError reports invalid query parameters (inverted date interval,
// unknown metric, non-positive top-k). It is distinct from a valid empty
// result, which aggregations return as a zero-row slice without error.
type RangeError struct {
	Msg string
}

func (e *RangeError) Error() string { return e.Msg }

func rangeErrorf(format string, args ...any) *RangeError {
	return &RangeError{Msg: fmt.Sprintf(format, args...)}
}
