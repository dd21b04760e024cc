package retro

import "fmt"

// Optional holds a response field that the API may omit.
// The zero value is NotReturned.
type Optional[T any] struct {
	value    T
	returned bool
}

// Present wraps a value the API returned
func Present[T any](v T) Optional[T] {
	return Optional[T]{value: v, returned: true}
}

// NotReturned marks a field absent from the response
func NotReturned[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether the API returned it
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.returned
}

// Returned reports whether the API included the field
func (o Optional[T]) Returned() bool {
	return o.returned
}

// Or returns the value, or def when the field was not returned
func (o Optional[T]) Or(def T) T {
	if !o.returned {
		return def
	}
	return o.value
}

func (o Optional[T]) String() string {
	if !o.returned {
		return "NotReturned"
	}
	return fmt.Sprint(o.value)
}
