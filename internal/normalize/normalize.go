// Package normalize maps raw, platform-specific records onto the canonical
// model.Lead shape.
package normalize

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/lead-cli/internal/model"
)

// ErrNoIdentity is returned when a record carries neither a URL nor a
// username to derive an identity key from.
var ErrNoIdentity = eris.New("normalize: record has no url or username")

// RawRecord is one record as emitted by a source adapter.
type RawRecord map[string]any

// Normalizer converts raw records into leads. It is safe for concurrent use.
type Normalizer struct {
	mappings map[model.Platform]Mapping
	fold     cases.Caser
	now      func() time.Time
}

// New creates a Normalizer from a mapping table. A nil table uses the
// defaults.
func New(mappings map[model.Platform]Mapping) *Normalizer {
	if mappings == nil {
		mappings = DefaultMappings()
	}
	return &Normalizer{
		mappings: mappings,
		fold:     cases.Fold(),
		now:      time.Now,
	}
}

// Normalize converts raw into a Lead with status new. Missing optional
// values become empty strings; the display name falls back to
// model.UnknownName.
func (n *Normalizer) Normalize(platform model.Platform, raw RawRecord) (model.Lead, error) {
	m, ok := n.mappings[platform]
	if !ok {
		return model.Lead{}, eris.Errorf("normalize: no mapping for platform %q", platform)
	}

	fields := make(map[string]string, len(raw)+2)
	for k, v := range raw {
		fields[k] = cleanText(stringify(v))
	}
	for canonical, alts := range m.Aliases {
		if fields[canonical] != "" {
			continue
		}
		if v := first(fields, alts); v != "" {
			fields[canonical] = v
		}
	}

	var parts []string
	for _, k := range m.TextKeys {
		if v := fields[k]; v != "" {
			parts = append(parts, v)
		}
	}
	text := strings.Join(parts, " ")

	name := first(fields, m.NameKeys)
	if name == "" {
		name = model.UnknownName
	}

	key, canonical, err := identityKey(platform, fields, m)
	if err != nil {
		return model.Lead{}, err
	}
	if canonical != "" {
		fields[model.FieldURL] = canonical
	}

	if len(m.Keywords) > 0 && fields[model.FieldMatchedKeywords] == "" {
		if found := n.matchKeywords(text, m.Keywords); len(found) > 0 {
			fields[model.FieldMatchedKeywords] = strings.Join(found, ", ")
		}
	}

	for k, v := range fields {
		if v == "" {
			delete(fields, k)
		}
	}

	return model.Lead{
		IdentityKey: key,
		Platform:    platform,
		DisplayName: name,
		PrimaryText: text,
		Fields:      fields,
		Status:      model.StatusNew,
		CreatedAt:   n.now().UTC(),
	}, nil
}

// matchKeywords returns the keywords from list that occur in text, in list
// order, compared case-insensitively.
func (n *Normalizer) matchKeywords(text string, list []string) []string {
	folded := n.fold.String(text)
	var out []string
	for _, kw := range list {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(folded, n.fold.String(kw)) {
			out = append(out, kw)
		}
	}
	return out
}

func identityKey(platform model.Platform, fields map[string]string, m Mapping) (key, canonical string, err error) {
	if raw := first(fields, m.URLKeys); raw != "" {
		if c, ok := CanonicalURL(raw); ok {
			return c, c, nil
		}
	}
	if user := first(fields, m.UsernameKeys); user != "" {
		user = strings.TrimPrefix(strings.ToLower(user), "@")
		return string(platform) + ":" + user, "", nil
	}
	return "", "", ErrNoIdentity
}

// CanonicalURL trims raw, lower-cases scheme and host, and drops the
// fragment and any trailing slash. ok is false when raw is not an absolute
// URL.
func CanonicalURL(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String(), true
}

func first(fields map[string]string, keys []string) string {
	for _, k := range keys {
		if v := fields[k]; v != "" {
			return v
		}
	}
	return ""
}

// cleanText applies NFKC and collapses runs of whitespace.
func cleanText(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s := stringify(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(t, ", ")
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+stringify(t[k]))
		}
		return strings.Join(parts, "; ")
	default:
		return fmt.Sprint(t)
	}
}
