// Contract Configuration Loader
//
// Loads the five contract configurations, the skill table, and the state
// vocabulary from a YAML file, with ${VAR} environment variable
// substitution applied before parsing.

package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/internal/contracts"
)

// ContractConfig holds everything the orchestrator needs beyond the
// service environment: the five contract parameter blocks, the admissible
// skills, the state vocabulary, and the boot-time transition table.
type ContractConfig struct {
	Percept contracts.PerceptConfig `yaml:"percept"`
	Model   contracts.ModelConfig   `yaml:"model"`
	Value   contracts.ValueConfig   `yaml:"value"`
	Risk    contracts.RiskConfig    `yaml:"risk"`
	Exec    contracts.ExecConfig    `yaml:"exec"`

	StateVocab []string              `yaml:"state_vocab"`
	Skills     []contracts.SkillSpec `yaml:"skills"`

	// BootTransitions seeds T_ver at startup. Each row is keyed by
	// "state|action" and maps next-state tokens to integer mass in units
	// of 1/2^S.
	BootTransitions map[string]map[string]int64 `yaml:"boot_transitions"`
}

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadContractConfig reads, env-substitutes, parses, and validates the
// contract configuration at path.
func LoadContractConfig(path string) (*ContractConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read contract config: %w", err)
	}

	substituted := envVarRe.ReplaceAllStringFunc(string(raw), func(m string) string {
		name := envVarRe.FindStringSubmatch(m)[1]
		return os.Getenv(name)
	})

	var cfg ContractConfig
	if err := yaml.Unmarshal([]byte(substituted), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse contract config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the parsed contract configuration.
func (c *ContractConfig) Validate() error {
	if c.Percept.NViews < 1 {
		return fmt.Errorf("percept.n_views must be >= 1")
	}
	if c.Percept.AgreeK < 1 || c.Percept.AgreeK > c.Percept.NViews {
		return fmt.Errorf("percept.agree_k must be in [1, n_views]")
	}
	if c.Model.KMax < 1 {
		return fmt.Errorf("model.k_max must be >= 1")
	}
	if c.Value.Horizon < 1 {
		return fmt.Errorf("value.horizon must be >= 1")
	}
	if c.Value.NRollouts < 1 {
		return fmt.Errorf("value.n_rollouts must be >= 1")
	}
	if c.Risk.AbstainAction == "" {
		return fmt.Errorf("risk.abstain_action cannot be empty")
	}
	for _, sk := range c.Skills {
		if sk.Name == "" {
			return fmt.Errorf("skill with empty name")
		}
		if sk.MaxTraceLen < 1 {
			return fmt.Errorf("skill %q: max_trace_len must be >= 1", sk.Name)
		}
	}
	for key := range c.BootTransitions {
		if _, _, err := splitRowKey(key); err != nil {
			return err
		}
	}
	return nil
}

// SkillTable converts the skill list into the name-keyed map the
// orchestrator consumes.
func (c *ContractConfig) SkillTable() map[string]contracts.SkillSpec {
	out := make(map[string]contracts.SkillSpec, len(c.Skills))
	for _, sk := range c.Skills {
		out[sk.Name] = sk
	}
	return out
}

// BootTVer builds the initial verified transition table from
// BootTransitions.
func (c *ContractConfig) BootTVer() (contracts.TVer, error) {
	t := contracts.TVer{}
	for key, row := range c.BootTransitions {
		state, action, err := splitRowKey(key)
		if err != nil {
			return nil, err
		}
		var total int64
		cp := make(map[string]int64, len(row))
		for s2, m := range row {
			if m < 0 {
				return nil, fmt.Errorf("boot transition %q: negative mass for %q", key, s2)
			}
			if m > 0 {
				cp[s2] = m
				total += m
			}
		}
		if total <= 0 {
			return nil, fmt.Errorf("boot transition %q: row total must be > 0", key)
		}
		t.Set(state, action, cp)
	}
	return t, nil
}

func splitRowKey(key string) (state, action string, err error) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			if i == 0 || i == len(key)-1 {
				break
			}
			return key[:i], key[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("malformed transition key %q (want \"state|action\")", key)
}
