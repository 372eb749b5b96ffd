package releasenotes

import "strings"

// DiffAdded returns the lines of newText that do not appear anywhere in
// oldText. Lines are compared byte-for-byte after splitting on "\n".
//
// A line repeated in newText is reported once, at its first position, and a
// line already present in oldText is never reported even if it now occurs
// more often.
func DiffAdded(oldText, newText string) []string {
	seen := make(map[string]struct{})
	for _, l := range strings.Split(oldText, "\n") {
		seen[l] = struct{}{}
	}

	var added []string
	for _, l := range strings.Split(newText, "\n") {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		added = append(added, l)
	}
	return added
}
