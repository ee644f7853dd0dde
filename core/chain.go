package core

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// ChainDefinition is the declarative description of a chain: a name,
// optional seed context, and an ordered list of steps. Unknown top-level
// keys are ignored for forward compatibility.
type ChainDefinition struct {
	Name           string                 `yaml:"name"`
	Description    string                 `yaml:"description,omitempty"`
	InitialContext map[string]interface{} `yaml:"initial_context,omitempty"`
	Steps          []StepSpec             `yaml:"steps"`
}

// StepSpec configures one step invocation. Params are exposed to the
// step function and merged into its render context; OutputKey names the
// context key the step's return value is written to, with the empty
// string meaning no write. Keys outside this set are collected into
// Unknown and rejected during validation.
type StepSpec struct {
	Name            string                 `yaml:"name"`
	Function        string                 `yaml:"function"`
	PromptTemplates []string               `yaml:"prompt_templates,omitempty"`
	Params          map[string]interface{} `yaml:"params,omitempty"`
	OutputKey       string                 `yaml:"output_key,omitempty"`

	Unknown map[string]interface{} `yaml:",inline"`
}

// LoadChain parses a chain definition and validates its structure.
func LoadChain(r io.Reader) (*ChainDefinition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading chain definition: %w", err)
	}
	var def ChainDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("parsing chain: %v", err)}
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadChainFile reads a chain definition from a file.
func LoadChainFile(fsys afero.Fs, path string) (*ChainDefinition, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("reading chain file %q: %w", path, err)
	}
	return LoadChain(strings.NewReader(string(data)))
}

// Validate checks the definition's structure. Step function resolution
// is deferred to run time.
func (d *ChainDefinition) Validate() error {
	if d.Name == "" {
		return &ConfigError{Reason: "chain name is required"}
	}
	if len(d.Steps) == 0 {
		return &ConfigError{Reason: fmt.Sprintf("chain %q has no steps", d.Name)}
	}
	seen := make(map[string]bool, len(d.Steps))
	for i, step := range d.Steps {
		if step.Name == "" {
			return &ConfigError{Reason: fmt.Sprintf("step %d has no name", i)}
		}
		if seen[step.Name] {
			return &ConfigError{Reason: fmt.Sprintf("duplicate step name %q", step.Name)}
		}
		seen[step.Name] = true
		if step.Function == "" {
			return &ConfigError{Reason: fmt.Sprintf("step %q has no function", step.Name)}
		}
		if len(step.Unknown) > 0 {
			keys := make([]string, 0, len(step.Unknown))
			for k := range step.Unknown {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			return &ConfigError{Reason: fmt.Sprintf("step %q has unknown keys: %s", step.Name, strings.Join(keys, ", "))}
		}
	}
	return nil
}
