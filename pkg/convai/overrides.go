package convai

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// OverridesFileName is the optional agent override file in the home directory.
const OverridesFileName = ".assistant_vocal_agent.yaml"

// Overrides replaces parts of the agent's configured behaviour for one
// conversation.
type Overrides struct {
	Prompt       string `yaml:"prompt"`
	FirstMessage string `yaml:"first_message"`
	Language     string `yaml:"language"`
}

// DefaultOverridesPath returns ~/.assistant_vocal_agent.yaml.
func DefaultOverridesPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, OverridesFileName), nil
}

// LoadOverrides reads path. A missing file yields nil without error.
func LoadOverrides(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read overrides: %w", err)
	}

	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to parse overrides %s: %w", path, err)
	}
	if o.empty() {
		return nil, nil
	}
	return &o, nil
}

func (o *Overrides) empty() bool {
	return o == nil || (o.Prompt == "" && o.FirstMessage == "" && o.Language == "")
}

func (o *Overrides) configOverride() *configOverride {
	if o.empty() {
		return nil
	}
	out := &configOverride{Agent: agentOverride{
		FirstMessage: o.FirstMessage,
		Language:     o.Language,
	}}
	if o.Prompt != "" {
		out.Agent.Prompt = &promptOverride{Prompt: o.Prompt}
	}
	return out
}
