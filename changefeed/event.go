package changefeed

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"
)

// InsertEvent is one inserted row as delivered by a Source.
type InsertEvent struct {
	Schema          string
	Table           string
	CommitTimestamp time.Time
	Record          map[string]any
}

// Field returns the text form of Record[key] and whether it is usable.
// Null, empty strings, zero, false, objects and arrays are not usable.
func (e InsertEvent) Field(key string) (string, bool) {
	v, ok := e.Record[key]
	if !ok {
		return "", false
	}
	switch x := v.(type) {
	case string:
		return x, x != ""
	case bool:
		if !x {
			return "", false
		}
		return "true", true
	case float64:
		if x == 0 || math.IsNaN(x) {
			return "", false
		}
		return formatNumber(x), true
	case int64:
		if x == 0 {
			return "", false
		}
		return strconv.FormatInt(x, 10), true
	default:
		return "", false
	}
}

// formatNumber renders x the way JSON producers print numbers: plain decimal
// for 1e-6 <= |x| < 1e21, exponent form ("1e+21", "1.5e-7") outside that range.
func formatNumber(x float64) string {
	abs := math.Abs(x)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	s := strconv.FormatFloat(x, 'e', -1, 64)
	mant, exp, ok := strings.Cut(s, "e")
	if !ok {
		return s
	}
	sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
	if digits == "" {
		digits = "0"
	}
	return mant + "e" + sign + digits
}

// Source delivers insert events until ctx is done. onError receives
// subscription-level failures; Subscribe keeps reconnecting after them.
type Source interface {
	Subscribe(ctx context.Context, onInsert func(InsertEvent), onError func(error)) error
	String() string
}
