package normalize

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// DefaultRuleIterations bounds how often user rules are re-applied.
const DefaultRuleIterations = 30

// UserRules are personal corrections applied after the built-in tables.
//
// A rules file holds one rule per line; blank lines and lines starting with
// '#' are skipped. "from => to" replaces whole words the same way the term
// table does. "s/pattern/replacement/flags" is a case-insensitive regular
// expression that rewrites the first match, or every match with the g flag;
// m and s enable multi-line and dot-all mode. The whole set is re-applied
// until the text stops changing.
type UserRules struct {
	subs  []substitution
	limit int
}

// LoadUserRules reads a rules file. A missing or empty path yields an empty set.
func LoadUserRules(path string, limit int) (*UserRules, error) {
	if limit <= 0 {
		limit = DefaultRuleIterations
	}
	rules := &UserRules{limit: limit}
	if strings.TrimSpace(path) == "" {
		return rules, nil
	}

	contents, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return rules, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}

	subs, err := parseRules(string(contents))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
	}
	rules.subs = subs
	return rules, nil
}

// Len returns the number of loaded rules.
func (u *UserRules) Len() int {
	if u == nil {
		return 0
	}
	return len(u.subs)
}

// Apply rewrites text until a full pass changes nothing.
func (u *UserRules) Apply(text string) string {
	if u.Len() == 0 {
		return text
	}
	for pass := 0; pass < u.limit; pass++ {
		before := text
		for _, sub := range u.subs {
			text = sub.apply(text)
		}
		if text == before {
			break
		}
	}
	return text
}

func parseRules(contents string) ([]substitution, error) {
	var subs []substitution
	for index, raw := range strings.Split(contents, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var (
			sub substitution
			err error
		)
		switch {
		case isSedRule(line):
			sub, err = parseSedRule(line)
		case strings.Contains(line, "=>"):
			sub, err = parseLiteralRule(line)
		default:
			err = errors.New("unsupported rule format")
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func parseLiteralRule(line string) (substitution, error) {
	from, to, _ := strings.Cut(line, "=>")
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" {
		return substitution{}, errors.New("literal rule source cannot be empty")
	}
	return substitution{re: regexp.MustCompile(`(?i)` + phrasePattern(from)), replacement: to}, nil
}

func isSedRule(line string) bool {
	return len(line) > 1 && line[0] == 's' && !isWordByte(line[1]) && line[1] != ' ' && line[1] != '\t'
}

func parseSedRule(line string) (substitution, error) {
	delim := line[1]
	pattern, rest, ok := cutUnescaped(line[2:], delim)
	if !ok {
		return substitution{}, errors.New("unterminated regex pattern")
	}
	if pattern == "" {
		return substitution{}, errors.New("regex pattern cannot be empty")
	}
	replacement, flags, ok := cutUnescaped(rest, delim)
	if !ok {
		return substitution{}, errors.New("unterminated regex replacement")
	}

	sub := substitution{replacement: replacement, expand: true, firstOnly: true}
	modes := "i"
	for _, flag := range strings.TrimSpace(flags) {
		switch flag {
		case 'g':
			sub.firstOnly = false
		case 'm', 's':
			if !strings.ContainsRune(modes, flag) {
				modes += string(flag)
			}
		case 'i', ' ':
		default:
			return substitution{}, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}

	re, err := regexp.Compile("(?" + modes + ")" + pattern)
	if err != nil {
		return substitution{}, fmt.Errorf("invalid regex: %w", err)
	}
	sub.re = re
	return sub, nil
}

// cutUnescaped splits s around the first delim not preceded by a backslash.
// Escapes are kept so the regexp engine sees them.
func cutUnescaped(s string, delim byte) (before, after string, ok bool) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case delim:
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}
