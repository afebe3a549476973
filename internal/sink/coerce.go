package sink

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/dr3s/csv-wrangler/internal/ddl"
)

var errCoerce = errors.New("cannot store value")

const dateLayout = "2006-01-02"

// coerce converts a formula result to the Go type the database driver
// expects for a column of logical type t. nil stays nil.
func coerce(v any, t ddl.Type, dateAsText bool) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case ddl.Int:
		return toInt64(v)
	case ddl.Float:
		return toFloat64(v)
	case ddl.Bool:
		return toBool(v)
	case ddl.Date:
		d, err := toDate(v)
		if err != nil || !dateAsText {
			return d, err
		}
		return d.Format(dateLayout), nil
	default:
		return toText(v)
	}
}

func mismatch(v any, t ddl.Type) error {
	return fmt.Errorf("%w %v (%T) as %s", errCoerce, v, v, t)
}

func toInt64(v any) (any, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		if uint64(n) <= math.MaxInt64 {
			return int64(n), nil
		}
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n), nil
		}
	case float32:
		return floatToInt64(float64(n), v)
	case float64:
		return floatToInt64(n, v)
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i, nil
		}
	}
	return nil, mismatch(v, ddl.Int)
}

func floatToInt64(f float64, orig any) (any, error) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, mismatch(orig, ddl.Int)
	}
	return int64(f), nil
}

func toFloat64(v any) (any, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f, nil
		}
	}
	return nil, mismatch(v, ddl.Float)
}

func toBool(v any) (any, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case int:
		if b == 0 || b == 1 {
			return b == 1, nil
		}
	case int64:
		if b == 0 || b == 1 {
			return b == 1, nil
		}
	case string:
		if p, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return p, nil
		}
	}
	return nil, mismatch(v, ddl.Bool)
}

func toDate(v any) (time.Time, error) {
	switch d := v.(type) {
	case time.Time:
		y, m, dd := d.Date()
		return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC), nil
	case string:
		s := strings.TrimSpace(d)
		if t, err := time.Parse(dateLayout, s); err == nil {
			return t, nil
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return toDate(t)
		}
	}
	return time.Time{}, mismatch(v, ddl.Date)
}

func toText(v any) (any, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case bool:
		return strconv.FormatBool(s), nil
	case int:
		return strconv.Itoa(s), nil
	case int64:
		return strconv.FormatInt(s, 10), nil
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), nil
	case time.Time:
		return s.Format(time.RFC3339Nano), nil
	case fmt.Stringer:
		return s.String(), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, mismatch(v, ddl.Text)
	}
	return string(b), nil
}
