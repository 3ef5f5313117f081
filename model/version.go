package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a dotted version of up to four components.  Missing
// components count as zero when comparing, so 1.2 equals 1.2.0.0.  A nil
// Version means "no version".
type Version []int

// ParseVersion parses "1", "1.2", "1.2.3" or "1.2.3.4".
func ParseVersion(s string) (v Version, err error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	parts := strings.Split(s, ".")
	if s == "" || len(parts) > 4 {
		return nil, fmt.Errorf("malformed version: %q", s)
	}
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("malformed version: %q", s)
		}
		v = append(v, n)
	}
	return
}

// MustVersion is ParseVersion for literals.
func MustVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) at(i int) int {
	if i < len(v) {
		return v[i]
	}
	return 0
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	for i := 0; i < 4; i++ {
		a, b := v.at(i), o.at(i)
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	}
	return 0
}

// Equal compares zero-padded.
func (v Version) Equal(o Version) bool {
	return v.Compare(o) == 0
}

func (v Version) String() string {
	if v == nil {
		return ""
	}
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}
