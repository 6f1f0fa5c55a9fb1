package normalize

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizeConsumesCommandTokens(t *testing.T) {
	t.Parallel()

	if got := Normalize("new line test period"); got != "\ntest." {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestNormalizeVoiceCommands(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"hello comma world period":              "hello, world.",
		"is it done question mark":              "is it done?",
		"wow exclamation mark":                  "wow!",
		"first new paragraph second":            "first\n\nsecond",
		"dit is een test punt":                  "dit is een test.",
		"lijst dubbele punt appels komma peren": "lijst: appels, peren",
		"open bracket note close bracket":       "( note )",
		"one dash two":                          "one - two",
		"een puntkomma twee":                    "een; twee",
		"Period at the start":                   ". at the start",
		"NEW LINE shouting":                     "\nshouting",
		"punctuation stays punctual":            "punctuation stays punctual",
	}

	for input, want := range cases {
		input := input
		want := want
		t.Run(input, func(t *testing.T) {
			t.Parallel()
			if got := Normalize(input); got != want {
				t.Fatalf("Normalize(%q) = %q, want %q", input, got, want)
			}
		})
	}
}

func TestNormalizeDomainTerms(t *testing.T) {
	t.Parallel()

	got := Normalize("push the java script to git hub and deploy on cuber netties")
	want := "push the JavaScript to GitHub and deploy on Kubernetes"
	if got != want {
		t.Fatalf("unexpected output: %q", got)
	}

	if got := Normalize("parse the jason from the a p i"); got != "parse the JSON from the API" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestNormalizeDomainTermsAreWholeWord(t *testing.T) {
	t.Parallel()

	if got := Normalize("jasonville"); got != "jasonville" {
		t.Fatalf("expected partial word untouched, got %q", got)
	}
}

func TestNormalizePunctuationSpacing(t *testing.T) {
	t.Parallel()

	if got := Normalize("one ,two .three"); got != "one, two. three" {
		t.Fatalf("unexpected output: %q", got)
	}
	if got := Normalize("wait?!really"); got != "wait?! really" {
		t.Fatalf("unexpected output: %q", got)
	}
	if got := Normalize("end.\nnext"); got != "end.\nnext" {
		t.Fatalf("line break after punctuation must be kept: %q", got)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"new line test period",
		"hello comma world period how are you question mark",
		"a dash b dash c",
		"first new paragraph second new line third",
		"ellipsis... and more,,, commas",
		"  padded text with trailing comma  ",
		"type script and post gres, then docker file!done",
		"",
	}

	for _, input := range inputs {
		once := Normalize(input)
		twice := Normalize(once)
		if once != twice {
			t.Fatalf("not idempotent for %q: %q then %q", input, once, twice)
		}
	}
}

func TestNormalizerAppliesUserRulesLast(t *testing.T) {
	t.Parallel()

	rulesPath := filepath.Join(t.TempDir(), "substitutions.rules")
	if err := os.WriteFile(rulesPath, []byte("JavaScript => JS\n"), 0o600); err != nil {
		t.Fatalf("failed to write rules file: %v", err)
	}

	user, err := LoadUserRules(rulesPath, 10)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	got, err := New(user).Normalize("java script period")
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if got != "JS." {
		t.Fatalf("unexpected output: %q", got)
	}
}
