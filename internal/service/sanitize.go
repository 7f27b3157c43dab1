package service

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// plainText strips markup from user and engine text and keeps the rest verbatim.
type plainText struct {
	policy *bluemonday.Policy
}

func newPlainText() plainText {
	return plainText{policy: bluemonday.StrictPolicy()}
}

// Clean removes tags, then undoes the entity escaping the policy applies to the kept text.
func (p plainText) Clean(value string) string {
	return strings.TrimSpace(html.UnescapeString(p.policy.Sanitize(value)))
}
