package camera

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// CodeWidth is the number of digits in a camera code.
const CodeWidth = 6

// MaxCode is the largest number representable as a code.
const MaxCode = 999999

// ErrInvalidCode is returned for identifiers that are not exactly six digits.
var ErrInvalidCode = errors.New("camera code must be exactly 6 digits")

var codePattern = regexp.MustCompile(`^\d{6}$`)

// Code is a zero-padded six digit camera identifier, e.g. "001042".
type Code string

// ParseCode validates s and returns it as a Code.
func ParseCode(s string) (Code, error) {
	if !codePattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCode, s)
	}
	return Code(s), nil
}

// FormatCode zero-pads n to six digits.
func FormatCode(n int) Code {
	return Code(fmt.Sprintf("%06d", n))
}

// Number returns the numeric value of the code.
func (c Code) Number() int {
	n, _ := strconv.Atoi(string(c))
	return n
}

// String implements fmt.Stringer.
func (c Code) String() string { return string(c) }

// Range returns every code from start to end inclusive, in ascending order.
func Range(start, end int) []Code {
	if start < 0 {
		start = 0
	}
	if end > MaxCode {
		end = MaxCode
	}
	if end < start {
		return nil
	}
	codes := make([]Code, 0, end-start+1)
	for n := start; n <= end; n++ {
		codes = append(codes, FormatCode(n))
	}
	return codes
}
