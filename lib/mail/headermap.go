package mail

// overrides for names which don't follow simple Title-Case rule.
// RFCs digestion, also observation of actual messages
var headerMap = map[string]string{
	"Message-Id":        "Message-ID",
	"Content-Id":        "Content-ID",
	"List-Id":           "List-ID",
	"Mime-Version":      "MIME-Version",
	"Nntp-Posting-Date": "NNTP-Posting-Date",
	"Nntp-Posting-Host": "NNTP-Posting-Host",
	"X-Trace":           "X-Trace",
}

const maxCommonHdrLen = 32

func canonicaliseSlice(b []byte) {
	upper := true
	for i, c := range b {
		if upper && c >= 'a' && c <= 'z' {
			c = c - ('a' - 'A')
		}
		if !upper && c >= 'A' && c <= 'Z' {
			c = c + ('a' - 'A')
		}
		b[i] = c
		upper = c == '-'
	}
}

// mapCanonicalOriginalHeader returns canonical form of header name,
// and original form if it differs.
func mapCanonicalOriginalHeader(s string) (string, string) {
	if h, ok := headerMap[s]; ok && h == s {
		return h, ""
	}

	var bx [maxCommonHdrLen]byte
	var b []byte
	if len(s) <= maxCommonHdrLen {
		b = bx[:len(s)]
	} else {
		b = make([]byte, len(s))
	}
	copy(b, s)
	canonicaliseSlice(b)

	can := string(b)
	if h, ok := headerMap[can]; ok {
		can = h
	}
	if can == s {
		return can, ""
	}
	return can, s
}

// CanonicalHeader returns canonical form of header name.
func CanonicalHeader(s string) string {
	k, _ := mapCanonicalOriginalHeader(s)
	return k
}
