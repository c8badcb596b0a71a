package showcase

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// maxViewCount bounds parsed counts; larger labels are treated as garbage.
const maxViewCount = math.MaxInt32

// ParseViewCount converts the showcase view label ("377", "2.9к", "1.2м")
// into a number. Anything unparseable or out of range yields 0.
func ParseViewCount(text string) int {
	text = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, strings.ToLower(text))
	if text == "" {
		return 0
	}

	multiplier := 1.0
	switch {
	case strings.HasSuffix(text, "к"):
		multiplier = 1_000
		text = strings.TrimSuffix(text, "к")
	case strings.HasSuffix(text, "м"):
		multiplier = 1_000_000
		text = strings.TrimSuffix(text, "м")
	}
	text = strings.ReplaceAll(text, ",", ".")
	if !isDecimal(text) {
		return 0
	}

	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0
	}
	value = math.Round(value * multiplier)
	if math.IsInf(value, 0) || math.IsNaN(value) || value > maxViewCount {
		return 0
	}
	return int(value)
}

// isDecimal reports whether s is plain digits with at most one dot.
// ParseFloat alone would also take exponents and "inf".
func isDecimal(s string) bool {
	digits, dots := 0, 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}
