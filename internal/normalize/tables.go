package normalize

import (
	"regexp"
	"strings"
)

// substitution is one compiled replacement shared by the built-in tables and
// user rules. Literal replacements are inserted as-is; expand enables $1
// references and firstOnly limits the rewrite to the leftmost match.
type substitution struct {
	re          *regexp.Regexp
	replacement string
	expand      bool
	firstOnly   bool
}

func (s substitution) apply(input string) string {
	switch {
	case !s.expand:
		return s.re.ReplaceAllLiteralString(input, s.replacement)
	case !s.firstOnly:
		return s.re.ReplaceAllString(input, s.replacement)
	}
	loc := s.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return input
	}
	out := s.re.ExpandString([]byte(input[:loc[0]]), s.replacement, input, loc)
	return string(out) + input[loc[1]:]
}

// phrasePattern quotes phrase and anchors each edge that is a word character
// to a word boundary.
func phrasePattern(phrase string) string {
	pattern := regexp.QuoteMeta(phrase)
	if isWordByte(phrase[0]) {
		pattern = `\b` + pattern
	}
	if isWordByte(phrase[len(phrase)-1]) {
		pattern += `\b`
	}
	return pattern
}

func isWordByte(char byte) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == '_'
}

// wordRule matches any of phrases as whole words, ignoring case. When
// absorbSpace is set, horizontal whitespace around the phrase is consumed with it.
func wordRule(replacement string, absorbSpace bool, phrases ...string) substitution {
	quoted := make([]string, 0, len(phrases))
	for _, phrase := range phrases {
		quoted = append(quoted, phrasePattern(phrase))
	}
	pattern := `(?:` + strings.Join(quoted, "|") + `)`
	if absorbSpace {
		pattern = `[ \t]*` + pattern + `[ \t]*`
	}
	return substitution{re: regexp.MustCompile(`(?i)` + pattern), replacement: replacement}
}

// Multi-word commands come before the single words they contain
// ("dubbele punt" before "punt").
var voiceCommands = []substitution{
	wordRule("\n\n", true, "nieuwe paragraaf", "new paragraph"),
	wordRule("\n", true, "nieuwe regel", "new line"),
	wordRule(";", false, "puntkomma", "semicolon"),
	wordRule(":", false, "dubbele punt", "colon"),
	wordRule(".", false, "punt", "period"),
	wordRule(",", false, "komma", "comma"),
	wordRule("?", false, "vraagteken", "question mark"),
	wordRule("!", false, "uitroepteken", "exclamation mark"),
	wordRule(" - ", true, "gedachtestreepje", "dash"),
	wordRule("(", false, "haakje open", "open bracket"),
	wordRule(")", false, "haakje sluiten", "close bracket"),
}

var domainTerms = []substitution{
	wordRule("JavaScript", false, "java script", "javascript"),
	wordRule("TypeScript", false, "type script", "typescript"),
	wordRule("GitHub", false, "git hub", "github"),
	wordRule("GitLab", false, "git lab", "gitlab"),
	wordRule("Kubernetes", false, "cuber netties", "kuber netes", "kubernetes"),
	wordRule("Postgres", false, "post gres", "postgres"),
	wordRule("Dockerfile", false, "docker file", "dockerfile"),
	wordRule("JSON", false, "jason", "json"),
	wordRule("API", false, "a p i", "api"),
	wordRule("SQL", false, "sql"),
	wordRule("npm", false, "n p m"),
	wordRule("README", false, "read me", "readme"),
}

var (
	spaceBeforePunct = regexp.MustCompile(`[ \t]+([.,!?:;])`)
	punctWithoutGap  = regexp.MustCompile(`([.,!?:;])([^\s.,!?:;])`)
)
