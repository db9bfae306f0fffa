// Package cron implements the 6/7-field cron expression grammar used by
// cron triggers and cron calendars: second, minute, hour, day-of-month,
// month, day-of-week and an optional year, with the ?, L, W and # tokens.
package cron

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	// MinYear and MaxYear bound the optional year field.
	MinYear = 1970
	MaxYear = 2099
)

// ParseError describes why an expression was rejected, pointing at the
// offending field and its byte offset within the expression string.
type ParseError struct {
	Field    string
	Position int
	Reason   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid cron expression: field %s at position %d: %s", e.Field, e.Position, e.Reason)
}

var monthNames = map[string]int{
	"JAN": 1, "FEB": 2, "MAR": 3, "APR": 4, "MAY": 5, "JUN": 6,
	"JUL": 7, "AUG": 8, "SEP": 9, "OCT": 10, "NOV": 11, "DEC": 12,
}

// Day-of-week values run 1..7 with 1 = Sunday.
var dowNames = map[string]int{
	"SUN": 1, "MON": 2, "TUE": 3, "WED": 4, "THU": 5, "FRI": 6, "SAT": 7,
}

// domSpec captures the day-of-month field, including the L and W tokens.
type domSpec struct {
	values      []int
	all         bool
	unspecified bool
	last        bool // L or L-k
	lastOffset  int  // k in L-k
	lastWeekday bool // LW
	weekdayDay  int  // n in nW; 0 when unused
}

// dowSpec captures the day-of-week field, including the L and # tokens.
type dowSpec struct {
	values      []int
	all         bool
	unspecified bool
	lastOfMonth int // weekday in nL; 0 when unused
	nthWeekday  int // weekday in n#m; 0 when unused
	nth         int // m in n#m
}

// Expression is a parsed cron expression. It is immutable and safe for
// concurrent use.
type Expression struct {
	raw     string
	seconds []int
	minutes []int
	hours   []int
	dom     domSpec
	months  []int
	dow     dowSpec
	years   []int // nil means every year in [MinYear, MaxYear]
}

var fieldNames = []string{
	"second", "minute", "hour", "day-of-month", "month", "day-of-week", "year",
}

// Parse parses a 6 or 7 field cron expression.
func Parse(expr string) (*Expression, error) {
	type token struct {
		text string
		pos  int
	}
	var tokens []token
	i := 0
	for i < len(expr) {
		if expr[i] == ' ' || expr[i] == '\t' {
			i++
			continue
		}
		j := i
		for j < len(expr) && expr[j] != ' ' && expr[j] != '\t' {
			j++
		}
		tokens = append(tokens, token{text: strings.ToUpper(expr[i:j]), pos: i})
		i = j
	}
	if len(tokens) != 6 && len(tokens) != 7 {
		return nil, &ParseError{Field: "expression", Position: 0,
			Reason: fmt.Sprintf("expected 6 or 7 fields, got %d", len(tokens))}
	}

	e := &Expression{}
	var err error

	if e.seconds, err = parseNumericField(tokens[0].text, tokens[0].pos, fieldNames[0], 0, 59, nil); err != nil {
		return nil, err
	}
	if e.minutes, err = parseNumericField(tokens[1].text, tokens[1].pos, fieldNames[1], 0, 59, nil); err != nil {
		return nil, err
	}
	if e.hours, err = parseNumericField(tokens[2].text, tokens[2].pos, fieldNames[2], 0, 23, nil); err != nil {
		return nil, err
	}
	if err = e.parseDayOfMonth(tokens[3].text, tokens[3].pos); err != nil {
		return nil, err
	}
	if e.months, err = parseNumericField(tokens[4].text, tokens[4].pos, fieldNames[4], 1, 12, monthNames); err != nil {
		return nil, err
	}
	if err = e.parseDayOfWeek(tokens[5].text, tokens[5].pos); err != nil {
		return nil, err
	}
	if len(tokens) == 7 && tokens[6].text != "*" {
		if e.years, err = parseNumericField(tokens[6].text, tokens[6].pos, fieldNames[6], MinYear, MaxYear, nil); err != nil {
			return nil, err
		}
	}

	// Exactly one of day-of-month / day-of-week must be '?'. As a
	// convenience, '*' in both is accepted and treated as day-of-week
	// unspecified.
	if e.dom.unspecified && e.dow.unspecified {
		return nil, &ParseError{Field: fieldNames[5], Position: tokens[5].pos,
			Reason: "'?' cannot appear in both day-of-month and day-of-week"}
	}
	if !e.dom.unspecified && !e.dow.unspecified {
		if e.dom.all && e.dow.all {
			e.dow.unspecified = true
		} else {
			return nil, &ParseError{Field: fieldNames[5], Position: tokens[5].pos,
				Reason: "one of day-of-month and day-of-week must be '?'"}
		}
	}

	parts := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		parts = append(parts, tok.text)
	}
	e.raw = strings.Join(parts, " ")
	return e, nil
}

// MustParse parses expr and panics on error. Intended for static expressions.
func MustParse(expr string) *Expression {
	e, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return e
}

// String renders the expression with single-space field separation and
// uppercased keywords. Parse(e.String()) matches the same instants.
func (e *Expression) String() string { return e.raw }

// parseNumericField expands a comma list of *, literals, ranges and steps
// into a sorted, deduplicated value slice.
func parseNumericField(text string, pos int, field string, min, max int, names map[string]int) ([]int, error) {
	seen := make(map[int]bool)
	fail := func(reason string) error {
		return &ParseError{Field: field, Position: pos, Reason: reason}
	}

	resolve := func(s string) (int, error) {
		if names != nil {
			if v, ok := names[s]; ok {
				return v, nil
			}
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, fail(fmt.Sprintf("unrecognized value %q", s))
		}
		if v < min || v > max {
			return 0, fail(fmt.Sprintf("value %d out of range [%d, %d]", v, min, max))
		}
		return v, nil
	}

	for _, item := range strings.Split(text, ",") {
		if item == "" {
			return nil, fail("empty list item")
		}
		body, stepStr, hasStep := strings.Cut(item, "/")
		step := 1
		if hasStep {
			v, err := strconv.Atoi(stepStr)
			if err != nil || v < 1 {
				return nil, fail(fmt.Sprintf("invalid step %q", stepStr))
			}
			step = v
		}

		lo, hi := min, max
		switch {
		case body == "*":
			// full range
		case strings.Contains(body, "-"):
			a, b, _ := strings.Cut(body, "-")
			var err error
			if lo, err = resolve(a); err != nil {
				return nil, err
			}
			if hi, err = resolve(b); err != nil {
				return nil, err
			}
			if hi < lo {
				return nil, fail(fmt.Sprintf("range %q is inverted", body))
			}
		default:
			v, err := resolve(body)
			if err != nil {
				return nil, err
			}
			lo = v
			if hasStep {
				hi = max // "a/n" runs from a to the field maximum
			} else {
				hi = v
			}
		}

		for v := lo; v <= hi; v += step {
			seen[v] = true
		}
	}

	values := make([]int, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Ints(values)
	if len(values) == 0 {
		return nil, fail("field matches no values")
	}
	return values, nil
}

func (e *Expression) parseDayOfMonth(text string, pos int) error {
	fail := func(reason string) error {
		return &ParseError{Field: fieldNames[3], Position: pos, Reason: reason}
	}

	switch {
	case text == "?":
		e.dom.unspecified = true
		return nil
	case text == "*":
		e.dom.all = true
		return nil
	case text == "L":
		e.dom.last = true
		return nil
	case text == "LW":
		e.dom.lastWeekday = true
		return nil
	case strings.HasPrefix(text, "L-"):
		k, err := strconv.Atoi(text[2:])
		if err != nil || k < 1 || k > 30 {
			return fail(fmt.Sprintf("invalid offset in %q", text))
		}
		e.dom.last = true
		e.dom.lastOffset = k
		return nil
	case strings.HasSuffix(text, "W"):
		n, err := strconv.Atoi(strings.TrimSuffix(text, "W"))
		if err != nil || n < 1 || n > 31 {
			return fail(fmt.Sprintf("invalid day in %q", text))
		}
		e.dom.weekdayDay = n
		return nil
	}

	values, err := parseNumericField(text, pos, fieldNames[3], 1, 31, nil)
	if err != nil {
		return err
	}
	e.dom.values = values
	return nil
}

func (e *Expression) parseDayOfWeek(text string, pos int) error {
	fail := func(reason string) error {
		return &ParseError{Field: fieldNames[5], Position: pos, Reason: reason}
	}

	resolveDOW := func(s string) (int, error) {
		if v, ok := dowNames[s]; ok {
			return v, nil
		}
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > 7 {
			return 0, fail(fmt.Sprintf("unrecognized day-of-week %q", s))
		}
		return v, nil
	}

	switch {
	case text == "?":
		e.dow.unspecified = true
		return nil
	case text == "*":
		e.dow.all = true
		return nil
	case text == "L": // shorthand for Saturday
		e.dow.values = []int{7}
		return nil
	case strings.HasSuffix(text, "L"):
		v, err := resolveDOW(strings.TrimSuffix(text, "L"))
		if err != nil {
			return err
		}
		e.dow.lastOfMonth = v
		return nil
	case strings.Contains(text, "#"):
		dayStr, nStr, _ := strings.Cut(text, "#")
		v, err := resolveDOW(dayStr)
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(nStr)
		if err != nil || n < 1 || n > 5 {
			return fail(fmt.Sprintf("invalid ordinal in %q", text))
		}
		e.dow.nthWeekday = v
		e.dow.nth = n
		return nil
	}

	values, err := parseNumericField(text, pos, fieldNames[5], 1, 7, dowNames)
	if err != nil {
		return err
	}
	e.dow.values = values
	return nil
}
