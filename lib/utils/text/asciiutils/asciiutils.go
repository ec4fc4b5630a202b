package asciiutils

// EqualFoldString is basically strcasecmp.
func EqualFoldString(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ac, bc := a[i], b[i]
		if ac == bc {
			continue
		}
		if ac > bc {
			// ensure ac < bc
			ac, bc = bc, ac
		}
		if ac >= 'A' && ac <= 'Z' && ac+'a'-'A' == bc {
			continue
		}
		return false
	}
	return true
}

func TrimWSString(b string) string {
	x, y := 0, len(b)
	for x != len(b) && (b[x] == ' ' || b[x] == '\t') {
		x++
	}
	for y != x && (b[y-1] == ' ' || b[y-1] == '\t') {
		y--
	}
	return b[x:y]
}

func TrimWSBytes(b []byte) []byte {
	x, y := 0, len(b)
	for x != len(b) && (b[x] == ' ' || b[x] == '\t') {
		x++
	}
	for y != x && (b[y-1] == ' ' || b[y-1] == '\t') {
		y--
	}
	return b[x:y]
}

// NOTE ASCII space (32) is neither printable chatacter nor control character
func IsPrintableASCIISlice(s []byte, e byte) bool {
	for _, c := range s {
		if c <= 32 || c >= 127 || c == e {
			return false
		}
	}
	return true
}

func IsPrintableASCIIStr(s string, e byte) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= 32 || c >= 127 || c == e {
			return false
		}
	}
	return true
}

func Is7BitString(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
