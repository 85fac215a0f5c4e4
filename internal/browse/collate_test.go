package browse

import (
	"sort"
	"testing"
)

func TestCompareNames(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"file2", "file10", -1},
		{"f0.txt", "f1.txt", -1},
		{"f1.txt", "f0.txt", 1},
		{"a0b", "a1b", -1},
		{"img2.jpg", "img10.jpg", -1},
		{"a2b10", "a2b9", 1},
		{"apple", "banana", -1},
		{"Apple", "apple2", -1},
		{"same.txt", "same.txt", 0},
		{"007", "7", -1}, // numeric-equal, bytewise tiebreak
		{"99999999999999999999", "100000000000000000000", -1},
	}
	for _, c := range cases {
		got := CompareNames(c.a, c.b)
		if sign(got) != c.want {
			t.Errorf("CompareNames(%q, %q) = %d, want sign %d", c.a, c.b, got, c.want)
		}
		if back := CompareNames(c.b, c.a); sign(back) != -c.want {
			t.Errorf("CompareNames(%q, %q) = %d, want sign %d", c.b, c.a, back, -c.want)
		}
	}
}

// Digits mid-name must stay numeric even with characters after the run.
func TestCompareNamesSortsDigitSuffixedNames(t *testing.T) {
	names := []string{"f10.txt", "f0.txt", "f2.txt", "f1.txt", "f11.txt"}
	sort.Slice(names, func(i, j int) bool { return CompareNames(names[i], names[j]) < 0 })
	want := []string{"f0.txt", "f1.txt", "f2.txt", "f10.txt", "f11.txt"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("sorted = %v, want %v", names, want)
		}
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
