package mail

import "strings"

// SplitNewsgroups parses Newsgroups-like header value.
// Empty elements are dropped, duplicates keep first position.
func SplitNewsgroups(v string) (groups []string) {
	seen := make(map[string]struct{})
	for _, g := range strings.Split(v, ",") {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		if _, dup := seen[g]; dup {
			continue
		}
		seen[g] = struct{}{}
		groups = append(groups, g)
	}
	return
}

// SplitReferences parses References header into individual ids.
func SplitReferences(v string) []string {
	return strings.Fields(v)
}
