package provider

import "strings"

// resolution rules, applied in order, first match wins. Tests are
// case-sensitive prefix or exact matches.
var resolveRules = []struct {
	provider Provider
	prefixes []string
	exact    []string
}{
	{provider: OpenAI, prefixes: []string{"gpt-", "o1-"}, exact: []string{"davinci", "curie"}},
	{provider: Claude, prefixes: []string{"claude-", "claude_"}, exact: []string{"claude"}},
	{provider: Google, prefixes: []string{"gemini-", "bison-", "chat-bison", "text-bison"}},
	{provider: Copilot, prefixes: []string{"copilot-"}, exact: []string{"github-copilot"}},
}

// Resolve maps a model identifier onto a provider variant. An override
// naming a known provider wins unconditionally; an unrecognized override is
// ignored. Every input resolves: models matching no rule go to Local.
func Resolve(model, override string) Provider {
	if override != "" {
		if p, ok := Parse(override); ok {
			return p
		}
	}

	for _, rule := range resolveRules {
		for _, prefix := range rule.prefixes {
			if strings.HasPrefix(model, prefix) {
				return rule.provider
			}
		}
		for _, exact := range rule.exact {
			if model == exact {
				return rule.provider
			}
		}
	}

	return Local
}
