// Copyright 2026 The Frenum Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// RuleKind distinguishes automatically evaluated rules from rules
// that require human or external judgment.
type RuleKind string

const (
	// KindDeterministic rules are evaluated by the engine and
	// contribute to coverage.
	KindDeterministic RuleKind = "deterministic"

	// KindSemantic rules are configured but never evaluated
	// automatically; they are reported separately.
	KindSemantic RuleKind = "semantic"
)

// Phase is the execution phase a rule applies to.
type Phase string

const (
	// PhasePre rules run before tool execution.
	PhasePre Phase = "pre"

	// PhasePost rules run against post-execution state.
	PhasePost Phase = "post"
)

// RuleConfig is one configured rule instance. Built once at policy
// load time and read-only thereafter.
type RuleConfig struct {
	// Name uniquely identifies the rule within a policy. Uniqueness
	// is a policy invariant checked by lint, not by the engine.
	Name string `yaml:"name"`

	// Type is the catalogue type identifier.
	Type string `yaml:"type"`

	// Params holds evaluator-specific configuration.
	Params map[string]any `yaml:"params"`

	// AppliesTo is the ordered list of tool-name glob patterns the
	// rule is scoped to. ["*"] (the default) applies to all tools.
	AppliesTo []string `yaml:"applies_to"`

	// Kind is deterministic (default) or semantic.
	Kind RuleKind `yaml:"kind"`

	// Phase is pre (default) or post.
	Phase Phase `yaml:"phase"`
}

// Config is the top-level policy configuration loaded from YAML.
type Config struct {
	// PolicyVersion is an opaque version string recorded in audit
	// records and reports. Default: "1.0.0".
	PolicyVersion string `yaml:"policy_version"`

	// Rules is the ordered rule list. Order is policy-significant:
	// the first blocking rule wins.
	Rules []RuleConfig `yaml:"rules"`
}

// validate applies defaults and checks a policy config for
// structural errors. Configs fail loud at load time; an invalid rule
// never reaches evaluation silently.
func (cfg *Config) validate() error {
	if cfg.PolicyVersion == "" {
		cfg.PolicyVersion = "1.0.0"
	}

	for i := range cfg.Rules {
		r := &cfg.Rules[i]
		if r.Name == "" {
			return fmt.Errorf("engine: rule at index %d missing 'name'", i)
		}
		if r.Type == "" {
			return fmt.Errorf("engine: rule %q missing 'type'", r.Name)
		}
		if !KnownRuleType(r.Type) {
			return fmt.Errorf("engine: rule %q has unknown type %q (valid: %v)", r.Name, r.Type, ValidRuleTypes())
		}

		switch r.Kind {
		case "":
			r.Kind = KindDeterministic
		case KindDeterministic, KindSemantic:
		default:
			return fmt.Errorf("engine: rule %q has invalid kind %q (valid: deterministic, semantic)", r.Name, r.Kind)
		}

		switch r.Phase {
		case "":
			r.Phase = PhasePre
		case PhasePre, PhasePost:
		default:
			return fmt.Errorf("engine: rule %q has invalid phase %q (valid: pre, post)", r.Name, r.Phase)
		}

		// Only default an absent applies_to. An explicit empty list
		// is preserved (and flagged by lint) rather than widened.
		if r.AppliesTo == nil {
			r.AppliesTo = []string{"*"}
		}
	}

	return nil
}

// ParseConfig parses and validates a policy config from YAML bytes.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("engine: parse policy: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FileStore loads policy configuration from a YAML file on disk.
type FileStore struct {
	path string
}

// NewFileStore creates a policy store that reads from path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads and parses the policy file. Returns an error if the
// file cannot be read or contains invalid rules.
func (s *FileStore) Load() (*Config, error) {
	absPath, err := filepath.Abs(s.path)
	if err != nil {
		return nil, fmt.Errorf("engine: resolve path %q: %w", s.path, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("engine: read policy file: %w", err)
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("engine: policy file %s: %w", s.path, err)
	}
	return cfg, nil
}

// Path returns the file path this store reads from.
func (s *FileStore) Path() string {
	return s.path
}
