package setup

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

// MarkupStripper removes tags with bluemonday's strict policy and undoes its
// entity escaping, so plain text such as "Tom & Jerry" is stored as typed.
type MarkupStripper struct {
	policy *bluemonday.Policy
}

func NewMarkupStripper() MarkupStripper {
	return MarkupStripper{policy: bluemonday.StrictPolicy()}
}

func (m MarkupStripper) Sanitize(s string) string {
	return html.UnescapeString(m.policy.Sanitize(s))
}
