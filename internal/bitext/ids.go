package bitext

// CompareIDs orders sentence ids naturally: both ids are split into runs of
// digits and non-digits, digit runs compare by numeric value and other runs
// byte-wise. It returns -1, 0 or +1.
//
// Monotonic documents number their sentences so that document order and this
// order agree ("1" < "2" < "10", "s1.9" < "s1.10").
func CompareIDs(a, b string) int {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		ca, cb := a[i], b[j]
		if isDigit(ca) && isDigit(cb) {
			si, sj := i, j
			for i < len(a) && isDigit(a[i]) {
				i++
			}
			for j < len(b) && isDigit(b[j]) {
				j++
			}
			if c := compareNumeric(a[si:i], b[sj:j]); c != 0 {
				return c
			}
			continue
		}
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
		i++
		j++
	}
	switch {
	case len(a)-i < len(b)-j:
		return -1
	case len(a)-i > len(b)-j:
		return 1
	}
	return 0
}

// compareNumeric compares two digit strings by value without overflow.
func compareNumeric(x, y string) int {
	x = trimZeros(x)
	y = trimZeros(y)
	if len(x) != len(y) {
		if len(x) < len(y) {
			return -1
		}
		return 1
	}
	for k := 0; k < len(x); k++ {
		if x[k] != y[k] {
			if x[k] < y[k] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func trimZeros(s string) string {
	for len(s) > 1 && s[0] == '0' {
		s = s[1:]
	}
	return s
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
