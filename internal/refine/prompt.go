package refine

import (
	"fmt"
	"strings"

	"vochat/internal/domain"
)

// MaxOutputTokens bounds one model reply.
const MaxOutputTokens = 1024

const promptRules = "\n\nRules:\n" +
	"- Remove filler words (eh, uhm, nou, zeg maar for Dutch / um, uh, like for English)\n" +
	"- Fix grammar and punctuation\n" +
	"- Keep the meaning intact\n" +
	"- Keep the SAME language as the input\n" +
	"- Output ONLY the refined text, no explanations"

// SystemPrompt renders the style directive for a profile. The profile must
// already carry defaults.
func SystemPrompt(p domain.Profile) string {
	var b strings.Builder
	b.WriteString("You are a text refinement assistant. Your job is to take raw voice transcriptions and polish them into clean, well-formatted text.\n\n")
	fmt.Fprintf(&b, "Tone: %s\nLanguage: %s\n\n", p.Tone, p.Language)
	fmt.Fprintf(&b, "IMPORTANT: The input text is in %s. You MUST output the refined text in the SAME language as the input.\n", languageName(p.Language))

	f := p.Formatting
	if f.Bullets {
		b.WriteString("\nFormat as bullet points when appropriate.")
	}
	if f.MaxLength > 0 {
		fmt.Fprintf(&b, "\nKeep output under %d characters.", f.MaxLength)
	}
	if f.Capitalization != "" {
		fmt.Fprintf(&b, "\nCapitalization style: %s", f.Capitalization)
	}
	if f.Paragraphs {
		b.WriteString("\nSeparate distinct thoughts into paragraphs.")
	}
	if f.PreserveCode {
		b.WriteString("\nPreserve code snippets, variable names, and technical terms exactly as spoken.")
	}

	b.WriteString(promptRules)
	return b.String()
}

func languageName(tag string) string {
	if tag == "nl-NL" {
		return "Dutch (Nederlands)"
	}
	return tag
}

// CountWords counts whitespace-separated words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
