// Package timefmt encodes and decodes human-entered elapsed-time strings.
// The accepted grammar is [[HH:]MM:]SS[.fff] with 1-3 fractional digits, or
// the literal DNF (case-insensitive) for runs that did not finish.
package timefmt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// timePattern matches the submission grammar: optional hours (up to two
// digits), optional minutes (0-59), mandatory seconds (0-59), optional
// fraction of 1-3 digits.
var timePattern = regexp.MustCompile(`^(?:(?:[0-9]{1,2}:)?(?:[0-9]|[0-5][0-9]):)?(?:[0-9]|[0-5][0-9])(?:\.[0-9]{1,3})?$`)

type state uint8

const (
	stateNone state = iota
	stateDNF
	stateValue
)

// Elapsed is a tri-state elapsed time: no time supplied at all, an explicit
// DNF, or a concrete millisecond value. The distinction between "absent" and
// "DNF" is preserved so user input can be echoed back verbatim; both sort as
// the worst possible value in rankings.
type Elapsed struct {
	millis int64
	state  state
}

// None reports an elapsed time that was never supplied.
func None() Elapsed { return Elapsed{} }

// DNF reports an explicit did-not-finish.
func DNF() Elapsed { return Elapsed{state: stateDNF} }

// FromMillis wraps a concrete millisecond value.
func FromMillis(millis int64) Elapsed { return Elapsed{millis: millis, state: stateValue} }

// IsNone reports whether no time was supplied.
func (e Elapsed) IsNone() bool { return e.state == stateNone }

// IsDNF reports whether the time is an explicit DNF.
func (e Elapsed) IsDNF() bool { return e.state == stateDNF }

// Millis returns the concrete value and whether one is present.
func (e Elapsed) Millis() (int64, bool) { return e.millis, e.state == stateValue }

// String renders the compact (non-exact) form, mainly for logs.
func (e Elapsed) String() string { return Format(e, false) }

// ParseError reports a string that does not match the elapsed-time grammar.
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid time %q: expected hh:mm:ss.sss with at least seconds present, or DNF", e.Input)
}

// Parse decodes an elapsed-time string. The empty string decodes to None and
// the literal DNF (any case) to DNF. Colon groups accumulate left to right in
// base 60; a fraction of 1, 2 or 3 digits counts tenths, hundredths or
// thousandths.
func Parse(s string) (Elapsed, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return None(), nil
	}
	if strings.EqualFold(s, "dnf") {
		return DNF(), nil
	}
	if !timePattern.MatchString(s) {
		return Elapsed{}, &ParseError{Input: s}
	}

	whole, frac, _ := strings.Cut(s, ".")
	var millis int64
	for _, group := range strings.Split(whole, ":") {
		n, err := strconv.ParseInt(group, 10, 64)
		if err != nil {
			return Elapsed{}, &ParseError{Input: s}
		}
		millis = millis*60 + n
	}
	millis *= 1000

	if frac != "" {
		n, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return Elapsed{}, &ParseError{Input: s}
		}
		switch len(frac) {
		case 1:
			n *= 100
		case 2:
			n *= 10
		}
		millis += n
	}
	return FromMillis(millis), nil
}

// Format is the inverse of Parse. Absent and DNF times both render as "DNF".
// With exact set, up to three fractional digits are kept with trailing zeros
// trimmed; otherwise the fraction is truncated to hundredths.
func Format(e Elapsed, exact bool) string {
	millis, ok := e.Millis()
	if !ok {
		return "DNF"
	}
	return FormatMillis(millis, exact)
}

// FormatMillis renders a concrete millisecond value. Leading all-zero groups
// are omitted and non-leading groups are zero-padded to two digits.
func FormatMillis(millis int64, exact bool) string {
	bound := int64(100)
	digits := 2
	cur := millis / 10
	if exact {
		bound = 1000
		digits = 3
		cur = millis
	}

	result := "." + fmt.Sprintf("%0*d", digits, cur%bound)
	cur /= bound
	if exact {
		for strings.HasSuffix(result, "0") {
			result = result[:len(result)-1]
		}
		result = strings.TrimSuffix(result, ".")
	}

	result = strconv.FormatInt(cur%60, 10) + result
	if cur >= 60 {
		if cur%60 < 10 {
			result = "0" + result
		}
		result = ":" + result
	}
	cur /= 60
	if cur > 0 {
		result = strconv.FormatInt(cur%60, 10) + result
		if cur >= 60 {
			if cur%60 < 10 {
				result = "0" + result
			}
			result = ":" + result
			cur /= 60
			result = strconv.FormatInt(cur, 10) + result
		}
	}
	return result
}
