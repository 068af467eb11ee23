// Package command matches chat messages against command aliases. A
// message matches when its first whitespace-delimited token equals an
// alias, case-insensitively. No tokenization happens beyond a single
// split: the remainder after the first run of whitespace is the
// argument.
package command

import (
	"strings"
	"unicode"
)

// Matches reports whether the message's command token equals one of the
// aliases, case-insensitively. Empty messages never match.
func Matches(aliases []string, message string) bool {
	token, _ := split(message)
	if token == "" {
		return false
	}
	for _, alias := range aliases {
		if alias != "" && strings.EqualFold(alias, token) {
			return true
		}
	}
	return false
}

// MatchesAny reports whether the message matches any alias in a mapping
// of operation name to alias set.
func MatchesAny(operations map[string][]string, message string) bool {
	for _, aliases := range operations {
		if Matches(aliases, message) {
			return true
		}
	}
	return false
}

// Command returns the message's command token: the first
// whitespace-delimited token, or "" for an empty message.
func Command(message string) string {
	token, _ := split(message)
	return token
}

// Argument returns the remainder of the message after the first run of
// whitespace. The second return is false when there is no remainder.
func Argument(message string) (string, bool) {
	_, rest := split(message)
	return rest, rest != ""
}

// split separates the first token from the rest of the message,
// trimming the whitespace run between them.
func split(message string) (token, rest string) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", ""
	}
	idx := strings.IndexFunc(message, unicode.IsSpace)
	if idx < 0 {
		return message, ""
	}
	return message[:idx], strings.TrimLeftFunc(message[idx:], unicode.IsSpace)
}
