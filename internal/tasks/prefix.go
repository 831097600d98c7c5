package tasks

import (
	"strings"
	"unicode"
)

// DefaultPrefix is used when no project name is available.
const DefaultPrefix = "TK"

// TaskPrefix derives a two-letter id prefix from a project name: its first
// letter plus the first consonant after it.
func TaskPrefix(name string) string {
	var letters []rune
	for _, r := range strings.ToUpper(name) {
		if r < unicode.MaxASCII && unicode.IsLetter(r) {
			letters = append(letters, r)
		}
	}
	if len(letters) == 0 {
		return DefaultPrefix
	}
	first := letters[0]
	for _, r := range letters[1:] {
		if !strings.ContainsRune("AEIOU", r) {
			return string([]rune{first, r})
		}
	}
	if len(letters) > 1 {
		return string([]rune{first, letters[1]})
	}
	return string([]rune{first, first})
}
