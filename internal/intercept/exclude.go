package intercept

import (
	"strings"
)

// ExclusionList splits a comma separated BIND_EXCLUDE value. Empty entries
// are dropped; entries are not trimmed.
func ExclusionList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	list := parts[:0]
	for _, p := range parts {
		if p != "" {
			list = append(list, p)
		}
	}
	return list
}

// Excluded reports whether any entry of list is a byte-wise prefix of the
// textual destination address, and returns the first matching entry. This
// is a string match, not a subnet match: the entry "10.0.0.1" also
// excludes 10.0.0.100.
func Excluded(dst Destination, list []string) (string, bool) {
	text := dst.Text()
	for _, prefix := range list {
		if strings.HasPrefix(text, prefix) {
			return prefix, true
		}
	}
	return "", false
}
