package ai

import (
	"regexp"
	"strings"

	"github.com/zhouzirui/persona-studio/backend/internal/model/chat"
)

const groundingAddendum = `

When your answer relies on information from the web, cite every source inline as a markdown link in the form [title](https://example.com/page).`

// BuildSystemPrompt returns the system prompt sent upstream for a persona. Grounded personas
// are asked to cite sources as markdown links, which is how sources are recovered from the
// stream for providers without a native citation channel.
func BuildSystemPrompt(systemInstruction string, grounding bool) string {
	prompt := strings.TrimSpace(systemInstruction)
	if grounding {
		prompt += groundingAddendum
	}
	return prompt
}

var markdownLink = regexp.MustCompile(`\[([^\]\n]+)\]\((https?://[^\s)]+)\)`)

// ExtractSources collects cited web links in order of first appearance, one per URI.
func ExtractSources(text string) []chat.Source {
	matches := markdownLink.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	sources := make([]chat.Source, 0, len(matches))
	for _, m := range matches {
		title := strings.TrimSpace(m[1])
		uri := m[2]
		if title == "" {
			continue
		}
		if _, dup := seen[uri]; dup {
			continue
		}
		seen[uri] = struct{}{}
		sources = append(sources, chat.Source{URI: uri, Title: title})
	}
	return sources
}
