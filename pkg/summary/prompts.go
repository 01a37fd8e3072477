package summary

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

const historyPlaceholder = "{{history}}"

// PromptSet is the system/user prompt pair sent to the provider.
type PromptSet struct {
	Version int    `yaml:"version"`
	System  string `yaml:"system"`
	User    string `yaml:"user"`
}

// ParsePromptSet decodes a YAML prompt set.
func ParsePromptSet(data []byte) (PromptSet, error) {
	var p PromptSet
	if err := yaml.Unmarshal(data, &p); err != nil {
		return PromptSet{}, fmt.Errorf("failed to parse prompt set: %w", err)
	}
	if strings.TrimSpace(p.System) == "" || !strings.Contains(p.User, historyPlaceholder) {
		return PromptSet{}, fmt.Errorf("prompt set needs a system prompt and a user prompt containing %s", historyPlaceholder)
	}
	return p, nil
}

// DefaultPromptSet returns the embedded prompt set.
func DefaultPromptSet() PromptSet {
	p, err := ParsePromptSet(defaultPrompts)
	if err != nil {
		panic(err)
	}
	return p
}

// Render fills the user prompt with the utterances.
func (p PromptSet) Render(utterances []string) (system, user string) {
	return strings.TrimSpace(p.System), strings.ReplaceAll(p.User, historyPlaceholder, strings.Join(utterances, "\n"))
}
