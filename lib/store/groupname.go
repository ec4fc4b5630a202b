package store

import (
	"fmt"
	"strings"
)

// ValidGroupName accepts any non-empty name which survives comma-separated
// Newsgroups encoding: no commas, whitespace, control or DEL bytes.
func ValidGroupName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if c := s[i]; c <= ' ' || c == 0x7F || c == ',' {
			return false
		}
	}
	return true
}

// CheckGroupName returns ErrInvalidGroupName wrapped with offending name.
func CheckGroupName(s string) error {
	if !ValidGroupName(s) {
		return fmt.Errorf("%q: %w", s, ErrInvalidGroupName)
	}
	return nil
}

func groupFirstCompEq(s, cmp string) bool {
	return strings.HasPrefix(s, cmp) && (len(s) == len(cmp) || s[len(cmp)] == '.')
}

func groupAnyCompEq(s, cmp string) bool {
	for _, c := range strings.Split(s, ".") {
		if c == cmp {
			return true
		}
	}
	return false
}

// ConventionalGroupName checks RFC 5536 newsgroup-name syntax plus names
// reserved by USEPRO. Advisory only; such names are stored fine.
func ConventionalGroupName(s string) bool {
	/*
		{RFC 5536}
		   newsgroup-name  =  component *( "." component )
		   component       =  1*component-char
		   component-char  =  ALPHA / DIGIT / "+" / "-" / "_"
	*/
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '.' {
			if i == 0 || s[i-1] == '.' || i+1 == len(s) {
				return false
			}
			continue
		}
		if (c >= '0' && c <= '9') ||
			(c >= 'A' && c <= 'Z') ||
			(c >= 'a' && c <= 'z') ||
			c == '+' || c == '-' || c == '_' {

			continue
		}
		return false
	}
	// reserved: "example" hierarchy, "poster", "to" for UUCP ihave
	if groupFirstCompEq(s, "example") || s == "poster" || groupFirstCompEq(s, "to") {
		return false
	}
	// "any" is wildcard in some impls
	return !groupAnyCompEq(s, "any")
}
