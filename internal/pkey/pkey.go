package pkey

import (
	"fmt"
	"strconv"
	"strings"
)

// PK is a segmented primary key. Segments are separated by a colon,
// e.g. "user:123", and compare segment by segment so that numeric
// segments order naturally (2 before 10).
type PK struct {
	key      string
	segments []string
}

func New(k string) PK {
	return PK{
		key:      k,
		segments: strings.Split(k, ":"),
	}
}

// Canonical normalizes an arbitrary primary key value to its string
// form. Integral floats collapse to their integer representation so
// that JSON-decoded numbers and native ints address the same record.
// Nil and the empty string canonicalize to "", which means "no key".
func Canonical(v interface{}) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	case int:
		return strconv.Itoa(tv)
	case int64:
		return strconv.FormatInt(tv, 10)
	case uint64:
		return strconv.FormatUint(tv, 10)
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(tv), 'f', -1, 32)
	case fmt.Stringer:
		return tv.String()
	default:
		return fmt.Sprintf("%v", tv)
	}
}

func (pk PK) Match(patterns []string) bool {
	if len(patterns) == 0 || (len(patterns) == 1 && patterns[0] == "*") {
		return true
	}

	for i := 0; i < len(patterns); i++ {
		if i > len(pk.segments)-1 {
			return patterns[i] == "*"
		}

		if patterns[i] != pk.segments[i] && patterns[i] != "*" {
			return false
		}
	}

	return true
}

func (pk PK) Equal(other PK) bool {
	return pk.key == other.key
}

func (pk PK) String() string {
	return pk.key
}

func (pk PK) Less(other PK) bool {
	l := len(pk.segments)
	if len(other.segments) < l {
		l = len(other.segments)
	}

	prevEq := false
	for i := 0; i < l; i++ {
		// numeric segments compare as numbers when both sides parse
		bothInts, a, b := asInts(pk.segments[i], other.segments[i])
		if bothInts {
			if a != b {
				return a < b
			}

			prevEq = true
			continue
		}

		if pk.segments[i] != other.segments[i] {
			return pk.segments[i] < other.segments[i]
		}

		prevEq = true
	}

	return prevEq && len(other.segments) > len(pk.segments)
}

func asInts(a, b string) (bool, int, int) {
	if a == "" || b == "" || a[0] == '0' || b[0] == '0' {
		return false, 0, 0
	}

	an, err := strconv.Atoi(a)
	if err != nil {
		return false, 0, 0
	}

	bn, err := strconv.Atoi(b)
	if err != nil {
		return false, 0, 0
	}

	return true, an, bn
}
