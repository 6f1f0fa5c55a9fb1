// Package normalize turns a raw dictation transcript into insertable text.
//
// The pipeline is fixed and order-sensitive: spoken commands, then domain
// terms, then punctuation spacing, then the user's own rules. Each table is
// applied in declaration order and later rules see earlier output.
package normalize

import (
	"strings"
)

// Normalizer applies the built-in tables followed by optional user rules.
type Normalizer struct {
	commands []substitution
	terms    []substitution
	user     *UserRules
}

// New builds a normalizer. user may be nil.
func New(user *UserRules) *Normalizer {
	return &Normalizer{commands: voiceCommands, terms: domainTerms, user: user}
}

// Normalize never fails for the built-in tables; the error keeps room for
// rule engines that can.
func (n *Normalizer) Normalize(text string) (string, error) {
	out := text
	for _, rule := range n.commands {
		out = rule.apply(out)
	}
	for _, rule := range n.terms {
		out = rule.apply(out)
	}
	out = spaceBeforePunct.ReplaceAllString(out, "$1")
	out = punctWithoutGap.ReplaceAllString(out, "$1 $2")
	out = strings.Trim(out, " \t")

	if n.user.Len() > 0 {
		out = n.user.Apply(out)
	}
	return out, nil
}

// Normalize runs the built-in pipeline without user rules.
func Normalize(text string) string {
	out, _ := New(nil).Normalize(text)
	return out
}
