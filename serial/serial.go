// Package serial centralizes fixture serial parsing so the rest of the
// backend only ever sees canonical serials. Operators enter serials with
// mixed zero-padding and stray whitespace; everything is normalized here
// before any stock state is inspected.
package serial

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrMalformedSerial = errors.New("malformed serial")
	ErrPrefixMismatch  = errors.New("serial range prefix mismatch")
	ErrInvertedRange   = errors.New("serial range start greater than end")
	ErrRangeTooLarge   = errors.New("serial range too large")
)

// MaxExpand bounds a single range expansion. Receipt lots beyond this are
// operator typos (e.g. a missing digit turning 100 units into 1,000,000).
const MaxExpand = 10000

const prefixChars = "-_/.: "

// Split divides a serial into its prefix and the maximal trailing run of
// decimal digits. The digit run is returned verbatim, padding included.
func Split(s string) (prefix string, digits string, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", fmt.Errorf("%w: empty serial", ErrMalformedSerial)
	}

	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	if i == len(s) {
		return "", "", fmt.Errorf("%w: %q has no trailing digits", ErrMalformedSerial, s)
	}

	prefix = s[:i]
	for _, r := range prefix {
		if r >= '0' && r <= '9' {
			continue
		}
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
			continue
		}
		if strings.ContainsRune(prefixChars, r) {
			continue
		}
		return "", "", fmt.Errorf("%w: %q contains invalid character %q", ErrMalformedSerial, s, r)
	}
	return prefix, s[i:], nil
}

// Expand produces the ordered serial list for an inclusive [start, end]
// range. Both endpoints must share a byte-identical prefix. The zero-pad
// width of every produced serial is the digit length of the END endpoint:
// Expand("L1", "L010") yields L001..L010.
func Expand(start, end string) ([]string, error) {
	startPrefix, startDigits, err := Split(start)
	if err != nil {
		return nil, err
	}
	endPrefix, endDigits, err := Split(end)
	if err != nil {
		return nil, err
	}
	if startPrefix != endPrefix {
		return nil, fmt.Errorf("%w: %q vs %q", ErrPrefixMismatch, startPrefix, endPrefix)
	}

	startN, err := strconv.ParseUint(startDigits, 10, 63)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrMalformedSerial, start)
	}
	endN, err := strconv.ParseUint(endDigits, 10, 63)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrMalformedSerial, end)
	}
	if startN > endN {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvertedRange, start, end)
	}
	count := endN - startN + 1
	if count > MaxExpand {
		return nil, fmt.Errorf("%w: %d units (max %d)", ErrRangeTooLarge, count, MaxExpand)
	}

	width := len(endDigits)
	out := make([]string, 0, count)
	for n := startN; n <= endN; n++ {
		out = append(out, format(startPrefix, n, width))
	}
	return out, nil
}

// Normalize canonicalizes a free-form serial list: trims whitespace, drops
// empties, silently skips unparseable entries, zero-pads every survivor to
// the maximum digit length found in the input, deduplicates, and sorts by
// (prefix, numeric value). Idempotent.
func Normalize(list []string) []string {
	type parsed struct {
		prefix string
		value  uint64
	}

	entries := make([]parsed, 0, len(list))
	maxWidth := 0
	for _, raw := range list {
		prefix, digits, err := Split(raw)
		if err != nil {
			continue
		}
		n, err := strconv.ParseUint(digits, 10, 63)
		if err != nil {
			continue
		}
		if len(digits) > maxWidth {
			maxWidth = len(digits)
		}
		entries = append(entries, parsed{prefix: prefix, value: n})
	}

	seen := make(map[string]bool, len(entries))
	unique := make([]parsed, 0, len(entries))
	for _, e := range entries {
		key := e.prefix + "\x00" + strconv.FormatUint(e.value, 10)
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, e)
	}

	sort.Slice(unique, func(i, j int) bool {
		if unique[i].prefix != unique[j].prefix {
			return unique[i].prefix < unique[j].prefix
		}
		return unique[i].value < unique[j].value
	})

	out := make([]string, 0, len(unique))
	for _, e := range unique {
		out = append(out, format(e.prefix, e.value, maxWidth))
	}
	return out
}

func format(prefix string, n uint64, width int) string {
	return prefix + fmt.Sprintf("%0*d", width, n)
}
