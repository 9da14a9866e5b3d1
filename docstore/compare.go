package docstore

import (
	"cmp"
	"reflect"
	"strings"
	"time"
)

// Compare orders two stored field values. Values of different kinds order
// null < bool < number < string. Two strings that both hold RFC 3339
// timestamps compare chronologically, other strings compare bytewise.
func Compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}

	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case float64:
		return cmp.Compare(av, b.(float64))
	case string:
		bv := b.(string)
		if ta, ok := parseTime(av); ok {
			if tb, ok := parseTime(bv); ok {
				return ta.Compare(tb)
			}
		}
		return strings.Compare(av, bv)
	}
	return 0
}

// Equal reports whether two stored values are equal.
func Equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

func parseTime(s string) (time.Time, bool) {
	if len(s) < len("2006-01-02T15:04:05Z") || s[4] != '-' || s[10] != 'T' {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
