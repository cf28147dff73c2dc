package source

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-cli/internal/model"
	"github.com/sells-group/lead-cli/internal/normalize"
	"github.com/sells-group/lead-cli/internal/resilience"
)

var digits = regexp.MustCompile(`\d+`)

// RedditConfig configures RedditAdapter.
type RedditConfig struct {
	BaseURL    string
	Subreddits []string
	Keywords   []string
	MaxLeads   int
	UserAgent  string
	Timeout    time.Duration
	// RateHz bounds listing page requests per second.
	RateHz float64
}

// RedditAdapter scrapes old.reddit listing pages and keeps posts that
// mention a configured keyword.
type RedditAdapter struct {
	cfg     RedditConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewRedditAdapter creates a RedditAdapter. client may be nil.
func NewRedditAdapter(cfg RedditConfig, client *http.Client) *RedditAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://old.reddit.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "lead-cli/1.0"
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	limit := rate.Inf
	if cfg.RateHz > 0 {
		limit = rate.Limit(cfg.RateHz)
	}
	return &RedditAdapter{cfg: cfg, client: client, limiter: rate.NewLimiter(limit, 1)}
}

// Name implements Adapter.
func (a *RedditAdapter) Name() string { return "reddit" }

// Platform implements Adapter.
func (a *RedditAdapter) Platform() model.Platform { return model.PlatformReddit }

// Fetch implements Adapter. A subreddit that fails to load is logged and
// skipped; Fetch errors only when every subreddit failed.
func (a *RedditAdapter) Fetch(ctx context.Context) ([]normalize.RawRecord, error) {
	log := zap.L().With(zap.String("component", "source.reddit"))

	var (
		out    []normalize.RawRecord
		failed int
	)
	for _, sub := range a.cfg.Subreddits {
		if a.cfg.MaxLeads > 0 && len(out) >= a.cfg.MaxLeads {
			break
		}
		if err := a.limiter.Wait(ctx); err != nil {
			return out, eris.Wrap(err, "source: reddit rate limit")
		}

		doc, err := a.fetchDocument(ctx, sub)
		if err != nil {
			failed++
			log.Warn("subreddit fetch failed", zap.String("subreddit", sub), zap.Error(err))
			continue
		}

		recs := a.extractPosts(doc, sub)
		log.Debug("subreddit scraped", zap.String("subreddit", sub), zap.Int("matched", len(recs)))
		for _, r := range recs {
			if a.cfg.MaxLeads > 0 && len(out) >= a.cfg.MaxLeads {
				break
			}
			out = append(out, r)
		}
	}

	if failed > 0 && failed == len(a.cfg.Subreddits) {
		return nil, eris.Errorf("source: reddit: all %d subreddits failed", failed)
	}
	return out, nil
}

func (a *RedditAdapter) fetchDocument(ctx context.Context, sub string) (*goquery.Document, error) {
	pageURL := strings.TrimRight(a.cfg.BaseURL, "/") + "/r/" + url.PathEscape(sub) + "/new/"

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "source: reddit build request")
	}
	req.Header.Set("User-Agent", a.cfg.UserAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "source: reddit get %s", pageURL)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("source: reddit %s returned %s", pageURL, resp.Status)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "source: reddit parse document")
	}
	return doc, nil
}

func (a *RedditAdapter) extractPosts(doc *goquery.Document, sub string) []normalize.RawRecord {
	var out []normalize.RawRecord

	doc.Find("div.thing").Each(func(_ int, s *goquery.Selection) {
		if promoted, _ := s.Attr("data-promoted"); promoted == "true" {
			return
		}

		title := strings.TrimSpace(s.Find("a.title").First().Text())
		body := strings.TrimSpace(s.Find("div.md").First().Text())
		if title == "" {
			return
		}

		matched := matchAny(title+" "+body, a.cfg.Keywords)
		if len(a.cfg.Keywords) > 0 && len(matched) == 0 {
			return
		}

		author, _ := s.Attr("data-author")
		if author == "" {
			author = strings.TrimSpace(s.Find("a.author").First().Text())
		}

		link, _ := s.Attr("data-permalink")
		if link == "" {
			link, _ = s.Find("a.title").First().Attr("href")
		}
		link = absolute(a.cfg.BaseURL, link)

		score, _ := s.Attr("data-score")
		if score == "" {
			score = strings.TrimSpace(s.Find("div.score.unvoted").First().Text())
		}
		comments, _ := s.Attr("data-comments-count")
		if comments == "" {
			comments = digits.FindString(s.Find("a.comments").First().Text())
		}

		rec := normalize.RawRecord{
			"title":         title,
			"selftext":      body,
			"author":        author,
			"url":           link,
			"subreddit":     sub,
			"score_raw":     score,
			"comment_count": comments,
		}
		if len(matched) > 0 {
			rec[model.FieldMatchedKeywords] = strings.Join(matched, ", ")
		}
		out = append(out, rec)
	})

	return out
}

func matchAny(text string, keywords []string) []string {
	lower := strings.ToLower(text)
	var hits []string
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" && strings.Contains(lower, k) {
			hits = append(hits, k)
		}
	}
	return hits
}

func absolute(base, ref string) string {
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if r.IsAbs() {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
