package browse

import (
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Collators are stateful and not safe for concurrent use, so comparisons
// borrow one from a pool.
var collatorPool = sync.Pool{
	New: func() any {
		return collate.New(language.Und, collate.IgnoreCase)
	},
}

// CompareNames orders file names with locale-aware, numeric-aware collation
// ("file2" before "file10", case-insensitive). Names that collate equal are
// tie-broken bytewise so the order is total and deterministic.
func CompareNames(a, b string) int {
	if r := compareCollated(a, b); r != 0 {
		return r
	}
	return strings.Compare(a, b)
}

// compareCollated compares names run by run: maximal digit runs compare by
// numeric value, the text around them by collation. Run-wise numeric
// handling keeps digits embedded mid-name ordered ("a2b" < "a10b"), which
// whole-string numeric collation gets wrong as soon as characters follow
// the digits.
func compareCollated(a, b string) int {
	c := collatorPool.Get().(*collate.Collator)
	defer collatorPool.Put(c)

	for a != "" && b != "" {
		runA, restA := splitRun(a)
		runB, restB := splitRun(b)
		var r int
		if isDigitRun(runA) && isDigitRun(runB) {
			r = compareDigits(runA, runB)
		} else {
			r = c.CompareString(runA, runB)
		}
		if r != 0 {
			return r
		}
		a, b = restA, restB
	}
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return -1
	default:
		return 1
	}
}

// splitRun cuts off the leading maximal run of digits or of non-digits.
// Digit detection is byte-wise; UTF-8 continuation bytes are never digits.
func splitRun(s string) (run, rest string) {
	digit := isDigitByte(s[0])
	i := 1
	for i < len(s) && isDigitByte(s[i]) == digit {
		i++
	}
	return s[:i], s[i:]
}

func isDigitByte(b byte) bool { return b >= '0' && b <= '9' }

func isDigitRun(s string) bool { return s != "" && isDigitByte(s[0]) }

// compareDigits compares two digit runs by numeric value: leading zeros are
// stripped and length decides first, so arbitrarily long runs never
// overflow an integer parse.
func compareDigits(a, b string) int {
	ta := strings.TrimLeft(a, "0")
	tb := strings.TrimLeft(b, "0")
	if len(ta) != len(tb) {
		if len(ta) < len(tb) {
			return -1
		}
		return 1
	}
	return strings.Compare(ta, tb)
}
