// Package sqlguard is the last-line keyword denylist applied to generated
// text before anything reaches a database.
//
// The check is a case-insensitive whole-word scan over the entire text,
// including string literals, comments and aliases. It does not parse SQL.
// False positives on identifiers such as a column named "delete" are a known
// limitation and must not be fixed by narrowing the match.
package sqlguard

import (
	"regexp"
	"strings"
)

const (
	ReasonForbiddenOperation = "ForbiddenOperation"

	DenialMessage = "Only SELECT statements are allowed. DDL/DML operations are not permitted."
)

var ForbiddenKeywords = []string{
	"create", "drop", "alter",
	"insert", "update", "delete", "truncate",
	"grant", "revoke",
}

var forbiddenPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(ForbiddenKeywords, "|") + `)\b`)

var readQueryPrefix = regexp.MustCompile(`(?i)^\s*(select|with)\b`)

type Decision struct {
	Accepted bool
	// Text is the input, unchanged.
	Text    string
	Keyword string
	Reason  string
	Message string
}

func Check(text string) Decision {
	match := forbiddenPattern.FindString(text)
	if match == "" {
		return Decision{Accepted: true, Text: text}
	}
	return Decision{
		Accepted: false,
		Text:     text,
		Keyword:  strings.ToLower(match),
		Reason:   ReasonForbiddenOperation,
		Message:  DenialMessage,
	}
}

// IsReadQuery reports whether accepted text looks like a statement rather
// than a prose answer.
func IsReadQuery(text string) bool {
	return readQueryPrefix.MatchString(text)
}
