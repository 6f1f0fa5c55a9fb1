package normalize

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRules(t *testing.T, contents string) string {
	t.Helper()

	rulesPath := filepath.Join(t.TempDir(), "substitutions.rules")
	if err := os.WriteFile(rulesPath, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write rules file: %v", err)
	}
	return rulesPath
}

func TestUserRulesLiteralAndRegex(t *testing.T) {
	t.Parallel()

	rulesPath := writeRules(t, `
# literal
pull request => PR
# regex with default case-insensitive
s/\bdeep\s*gram\b/Deepgram/g
`)

	rules, err := LoadUserRules(rulesPath, 30)
	if err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}
	if rules.Len() != 2 {
		t.Fatalf("expected 2 rules, got %d", rules.Len())
	}

	if output := rules.Apply("deep gram pull request"); output != "Deepgram PR" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestUserRulesIterateUntilStable(t *testing.T) {
	t.Parallel()

	rules, err := LoadUserRules(writeRules(t, "a => b\nb => c\n"), 5)
	if err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}

	if output := rules.Apply("a"); output != "c" {
		t.Fatalf("expected c, got %q", output)
	}
}

func TestUserRulesLiteralIsWholeWord(t *testing.T) {
	t.Parallel()

	rules, err := LoadUserRules(writeRules(t, "art => ART\n"), 5)
	if err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}

	if output := rules.Apply("party art"); output != "party ART" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestUserRulesLiteralStartingWithS(t *testing.T) {
	t.Parallel()

	rules, err := LoadUserRules(writeRules(t, "solid complaint => SOLID-compliant\n"), 30)
	if err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}

	if output := rules.Apply("solid complaint plan"); output != "SOLID-compliant plan" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestUserRulesLiteralWithPunctuationEdge(t *testing.T) {
	t.Parallel()

	rules, err := LoadUserRules(writeRules(t, "c++ => C++\n"), 5)
	if err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}

	if output := rules.Apply("i write c++ daily"); output != "i write C++ daily" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestUserRulesRegexExpandsGroups(t *testing.T) {
	t.Parallel()

	rules, err := LoadUserRules(writeRules(t, `s|(\w+) dot com|${1}.com|g`+"\n"), 5)
	if err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}

	if output := rules.Apply("mail example dot com and test dot com"); output != "mail example.com and test.com" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestUserRulesStopAtIterationLimit(t *testing.T) {
	t.Parallel()

	rules, err := LoadUserRules(writeRules(t, `s/x/xx/`+"\n"), 3)
	if err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}

	if output := rules.Apply("x"); output != "xxxx" {
		t.Fatalf("expected three passes, got %q", output)
	}
}

func TestLoadUserRulesMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	rules, err := LoadUserRules(filepath.Join(t.TempDir(), "absent.rules"), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rules.Len() != 0 {
		t.Fatalf("expected no rules, got %d", rules.Len())
	}
	if output := rules.Apply("unchanged"); output != "unchanged" {
		t.Fatalf("unexpected output: %q", output)
	}

	var nilRules *UserRules
	if output := nilRules.Apply("unchanged"); output != "unchanged" {
		t.Fatalf("nil rules changed text: %q", output)
	}
}

func TestSedRuleWithoutGlobalReplacesFirstMatchOnly(t *testing.T) {
	t.Parallel()

	rule, err := parseSedRule(`s/foo/bar/`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if output := rule.apply("foo foo"); output != "bar foo" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestParseSedRuleErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"unsupported flag":     `s/foo/bar/x`,
		"empty pattern":        `s//bar/`,
		"unterminated pattern": `s/foo`,
		"unterminated replace": `s/foo/bar`,
		"invalid expression":   `s/(foo/bar/`,
	}
	for name, line := range cases {
		line := line
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := parseSedRule(line); err == nil {
				t.Fatalf("expected error for %q", line)
			}
		})
	}
}

func TestSedRuleKeepsEscapedDelimiter(t *testing.T) {
	t.Parallel()

	rule, err := parseSedRule(`s/and\/or/or/g`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if output := rule.apply("this and/or that"); output != "this or that" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestParseRulesUnsupportedLine(t *testing.T) {
	t.Parallel()

	if _, err := parseRules("not-a-rule"); err == nil {
		t.Fatalf("expected unsupported rule format error")
	}
}
