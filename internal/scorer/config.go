package scorer

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// HeuristicConfig holds the keyword weights for the heuristic strategy.
type HeuristicConfig struct {
	// RoleWeights maps a role or title keyword to the points it adds.
	RoleWeights map[string]float64 `yaml:"role_weights"`

	// InterestKeywords each add InterestWeight when present.
	InterestKeywords []string `yaml:"interest_keywords"`
	InterestWeight   float64  `yaml:"interest_weight"`

	// Locations add LocationWeight once, for the first match.
	Locations      []string `yaml:"locations"`
	LocationWeight float64  `yaml:"location_weight"`
}

// DefaultHeuristicConfig returns the built-in weights.
func DefaultHeuristicConfig() HeuristicConfig {
	return HeuristicConfig{
		RoleWeights: map[string]float64{
			"ceo":             20,
			"chief executive": 20,
			"founder":         15,
			"president":       15,
			"director":        10,
			"vp":              10,
			"vice president":  10,
			"executive":       10,
			"manager":         8,
			"head":            8,
			"leader":          5,
			"officer":         5,
			"hr":              5,
			"human resources": 5,
			"professional":    3,
		},
		InterestKeywords: []string{
			"development", "growth", "transition", "leadership", "change",
			"transform", "burnout", "balance", "career",
		},
		InterestWeight: 10,
		Locations: []string{
			"london", "uk", "united kingdom", "england",
			"manchester", "birmingham", "leeds", "bristol",
		},
		LocationWeight: 15,
	}
}

// LoadHeuristicConfig reads weights from a YAML file. Sections missing from
// the file keep their defaults.
func LoadHeuristicConfig(path string) (HeuristicConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return HeuristicConfig{}, eris.Wrapf(err, "scorer: read config %s", path)
	}

	var file HeuristicConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return HeuristicConfig{}, eris.Wrap(err, "scorer: parse config")
	}

	cfg := DefaultHeuristicConfig()
	if file.RoleWeights != nil {
		cfg.RoleWeights = file.RoleWeights
	}
	if file.InterestKeywords != nil {
		cfg.InterestKeywords = file.InterestKeywords
	}
	if file.InterestWeight != 0 {
		cfg.InterestWeight = file.InterestWeight
	}
	if file.Locations != nil {
		cfg.Locations = file.Locations
	}
	if file.LocationWeight != 0 {
		cfg.LocationWeight = file.LocationWeight
	}

	if err := ValidateConfig(cfg); err != nil {
		return HeuristicConfig{}, err
	}
	return cfg, nil
}

// ValidateConfig checks that a HeuristicConfig is internally consistent.
func ValidateConfig(c HeuristicConfig) error {
	var errs []string

	for term, w := range c.RoleWeights {
		if strings.TrimSpace(term) == "" {
			errs = append(errs, "role_weights contains an empty term")
		}
		if w < 0 {
			errs = append(errs, fmt.Sprintf("role_weights[%s] must be >= 0", term))
		}
	}
	if c.InterestWeight < 0 {
		errs = append(errs, "interest_weight must be >= 0")
	}
	if c.LocationWeight < 0 {
		errs = append(errs, "location_weight must be >= 0")
	}
	if len(c.RoleWeights) == 0 && len(c.InterestKeywords) == 0 && len(c.Locations) == 0 {
		errs = append(errs, "at least one of role_weights, interest_keywords or locations is required")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
