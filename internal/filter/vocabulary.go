package filter

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Vocabulary is the exclusion term list used by the keyword stage.
type Vocabulary struct {
	Terms []string `yaml:"terms"`
}

// DefaultVocabulary returns the built-in exclusion terms: competitor
// self-identification and promotional calls to action seen on the four
// supported platforms.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{Terms: []string{
		// Self-identification.
		"coach",
		"mentor",
		"mentorship",
		"consultant",
		"consulting",
		"trainer",
		"advisor",
		"strategist",
		"speaker",
		// Promotional calls to action.
		"business coaching",
		"grow your brand",
		"scale your business",
		"free webinar",
		"free consultation",
		"free discovery call",
		"book a call",
		"dm me for help",
		"follow me for tips",
		"link in bio",
	}}
}

// LoadVocabulary reads a vocabulary from a YAML file.
func LoadVocabulary(path string) (Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, eris.Wrapf(err, "filter: read vocabulary %s", path)
	}

	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return Vocabulary{}, eris.Wrap(err, "filter: parse vocabulary")
	}
	if len(v.normalized()) == 0 {
		return Vocabulary{}, eris.Errorf("filter: vocabulary %s has no terms", path)
	}
	return v, nil
}

// normalized returns the lower-cased, trimmed, de-duplicated terms.
func (v Vocabulary) normalized() []string {
	seen := make(map[string]bool, len(v.Terms))
	out := make([]string, 0, len(v.Terms))
	for _, t := range v.Terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
