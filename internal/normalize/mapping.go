package normalize

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lead-cli/internal/model"
)

// Mapping describes how one platform's raw records map onto a Lead. Adding
// a source means adding an entry here, not a branch in downstream code.
type Mapping struct {
	// Aliases fill a canonical key from the first present alternative when
	// the canonical key itself is absent.
	Aliases map[string][]string `yaml:"aliases"`

	// URLKeys are tried in order for the identity URL.
	URLKeys []string `yaml:"url_keys"`

	// NameKeys are tried in order for the display name.
	NameKeys []string `yaml:"name_keys"`

	// UsernameKeys back the platform:username identity when no URL exists.
	UsernameKeys []string `yaml:"username_keys"`

	// TextKeys are concatenated, in order, into the primary text.
	TextKeys []string `yaml:"text_keys"`

	// Keywords, when set, derive matched_keywords from the primary text for
	// records that do not already carry it.
	Keywords []string `yaml:"keywords"`
}

// DefaultMappings returns the built-in mapping table.
func DefaultMappings() map[model.Platform]Mapping {
	return map[model.Platform]Mapping{
		model.PlatformLinkedIn: {
			Aliases: map[string][]string{
				"profile_url":        {"linkedin_url", "url"},
				"name":               {"full_name"},
				model.FieldHeadline:  {"title", "occupation"},
				model.FieldLocation:  {"geo", "region"},
				model.FieldInterests: {"skills"},
			},
			URLKeys:      []string{"profile_url"},
			NameKeys:     []string{"name"},
			UsernameKeys: []string{"public_identifier", model.FieldUsername},
			TextKeys:     []string{model.FieldHeadline, model.FieldJobTitle, "about", "summary", model.FieldInterests, "recent_activity", "engagement"},
		},
		model.PlatformReddit: {
			Aliases: map[string][]string{
				model.FieldPostTitle:   {"title"},
				model.FieldPostContent: {"selftext", "body"},
				model.FieldUsername:    {"author"},
				"post_url":             {"url", "permalink"},
			},
			URLKeys:      []string{"post_url"},
			NameKeys:     []string{model.FieldUsername},
			UsernameKeys: []string{model.FieldUsername},
			TextKeys:     []string{model.FieldPostTitle, model.FieldPostContent},
		},
		model.PlatformTwitter: {
			Aliases: map[string][]string{
				"profile_url":       {"url"},
				"bio":               {"description"},
				"tweet_text":        {"text", "full_text"},
				model.FieldUsername: {"screen_name", "handle"},
				"name":              {"display_name"},
			},
			URLKeys:      []string{"profile_url", "tweet_url"},
			NameKeys:     []string{"name", model.FieldUsername},
			UsernameKeys: []string{model.FieldUsername},
			TextKeys:     []string{"bio", "tweet_text"},
		},
		model.PlatformInstagram: {
			Aliases: map[string][]string{
				"profile_url":  {"url"},
				"bio":          {"biography"},
				"comment_text": {"comment", "text"},
				"full_name":    {"name"},
			},
			URLKeys:      []string{"profile_url", "post_url"},
			NameKeys:     []string{"full_name", model.FieldUsername},
			UsernameKeys: []string{model.FieldUsername},
			TextKeys:     []string{"bio", "caption", "comment_text"},
		},
	}
}

// LoadMappings reads mapping overrides from a YAML file keyed by platform
// and layers them over the defaults. A platform entry in the file replaces
// the default entry for that platform.
func LoadMappings(path string) (map[model.Platform]Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "normalize: read mappings %s", path)
	}

	var raw map[string]Mapping
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "normalize: parse mappings")
	}

	out := DefaultMappings()
	for name, m := range raw {
		p, err := model.ParsePlatform(name)
		if err != nil {
			return nil, eris.Wrapf(err, "normalize: mappings key %q", name)
		}
		if len(m.URLKeys) == 0 && len(m.UsernameKeys) == 0 {
			return nil, eris.Errorf("normalize: mapping for %s needs url_keys or username_keys", p)
		}
		out[p] = m
	}
	return out, nil
}

// WithKeywords returns a copy of mappings with per-platform keyword lists
// applied. Platforms absent from keywords keep their current list.
func WithKeywords(mappings map[model.Platform]Mapping, keywords map[string][]string) (map[model.Platform]Mapping, error) {
	out := make(map[model.Platform]Mapping, len(mappings))
	for p, m := range mappings {
		out[p] = m
	}
	for name, kws := range keywords {
		p, err := model.ParsePlatform(name)
		if err != nil {
			return nil, eris.Wrapf(err, "normalize: keywords key %q", name)
		}
		m := out[p]
		m.Keywords = kws
		out[p] = m
	}
	return out, nil
}
