package retro

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateFormat is the layout the API uses for every date field, in UTC
const DateFormat = "2006-01-02 15:04:05"

// record is one JSON object from a response, decoded with UseNumber
type record map[string]any

// ParseDate parses an API date string as UTC
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateFormat, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return t, nil
}

func (r record) str(key string) Optional[string] {
	v, ok := r[key]
	if !ok || v == nil {
		return NotReturned[string]()
	}
	switch val := v.(type) {
	case string:
		return Present(val)
	case json.Number:
		return Present(val.String())
	default:
		return Present(fmt.Sprint(val))
	}
}

// integer accepts JSON numbers and numeric strings, the API sends both
func (r record) integer(key string) (Optional[int64], error) {
	v, ok := r[key]
	if !ok || v == nil {
		return NotReturned[int64](), nil
	}
	var raw string
	switch val := v.(type) {
	case json.Number:
		raw = val.String()
	case string:
		raw = strings.TrimSpace(val)
	case float64:
		return Present(int64(val)), nil
	case int:
		return Present(int64(val)), nil
	case int64:
		return Present(val), nil
	default:
		return NotReturned[int64](), fmt.Errorf("field %s: unexpected type %T", key, v)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil {
			return NotReturned[int64](), fmt.Errorf("field %s: %w", key, err)
		}
		n = int64(f)
	}
	return Present(n), nil
}

// boolean treats 1, "1" and true as true and anything else returned as false
func (r record) boolean(key string) Optional[bool] {
	v, ok := r[key]
	if !ok || v == nil {
		return NotReturned[bool]()
	}
	switch val := v.(type) {
	case bool:
		return Present(val)
	case json.Number:
		return Present(val.String() == "1")
	case string:
		return Present(val == "1")
	case float64:
		return Present(val == 1)
	}
	return Present(false)
}

func (r record) date(key string) (Optional[time.Time], error) {
	s := r.str(key)
	raw, ok := s.Get()
	if !ok {
		return NotReturned[time.Time](), nil
	}
	t, err := ParseDate(raw)
	if err != nil {
		return NotReturned[time.Time](), err
	}
	return Present(t), nil
}
