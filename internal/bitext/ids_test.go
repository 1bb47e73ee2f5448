package bitext

import "testing"

func TestCompareIDs(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1", "1", 0},
		{"1", "2", -1},
		{"2", "10", -1},
		{"10", "9", 1},
		{"s2", "s10", -1},
		{"s1.9", "s1.10", -1},
		{"s1.10", "s1.10", 0},
		{"s1", "s1.1", -1},
		{"a", "b", -1},
		{"007", "7", 0},
		{"", "1", -1},
		{"18446744073709551616", "18446744073709551615", 1},
	}
	for _, c := range cases {
		if got := CompareIDs(c.a, c.b); got != c.want {
			t.Errorf("CompareIDs(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
		if got := CompareIDs(c.b, c.a); got != -c.want {
			t.Errorf("CompareIDs(%q, %q) = %d, want %d", c.b, c.a, got, -c.want)
		}
	}
}

func TestCount_Placeholder(t *testing.T) {
	if n := Count([]string{Placeholder}); n != 0 {
		t.Errorf("expected placeholder side to count 0, got %d", n)
	}
	if n := Count([]string{"1", "2"}); n != 2 {
		t.Errorf("expected 2, got %d", n)
	}
	if !IsPlaceholder([]string{""}) {
		t.Error("expected [\"\"] to be the placeholder side")
	}
	if IsPlaceholder([]string{"", ""}) {
		t.Error("expected two empty ids not to be the placeholder side")
	}
}
