package codec

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"quantbrains/internal/errors"
	"quantbrains/pkg/exception"
)

// Number is a numeric field the terminal may send as a JSON number, a
// numeric string or null. Set is false for null.
type Number struct {
	Value float64
	Set   bool
}

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*n = Number{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	text := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil
		}
	}

	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.Annotate(exception.ErrDecode, "not a number", text, nil)
	}
	n.Value = v
	n.Set = true
	return nil
}

// Int rounds half to even, e.g. 12.0 => 12.
func (n Number) Int() (int64, error) {
	v := math.RoundToEven(n.Value)
	if v > math.MaxInt32 || v < math.MinInt32 {
		return 0, errors.Annotate(exception.ErrDecode, "out of range", strconv.FormatFloat(n.Value, 'g', -1, 64), nil)
	}
	return int64(v), nil
}
