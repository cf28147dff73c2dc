package main

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-cli/internal/config"
	"github.com/sells-group/lead-cli/internal/export"
	"github.com/sells-group/lead-cli/internal/filter"
	"github.com/sells-group/lead-cli/internal/llm"
	"github.com/sells-group/lead-cli/internal/message"
	"github.com/sells-group/lead-cli/internal/model"
	"github.com/sells-group/lead-cli/internal/normalize"
	"github.com/sells-group/lead-cli/internal/pipeline"
	"github.com/sells-group/lead-cli/internal/router"
	"github.com/sells-group/lead-cli/internal/scorer"
	"github.com/sells-group/lead-cli/internal/source"
	"github.com/sells-group/lead-cli/internal/store"
	"github.com/sells-group/lead-cli/pkg/notion"
	"github.com/sells-group/lead-cli/pkg/salesforce"
)

// closableStore is a Store backed by a connection that must be released.
type closableStore interface {
	store.Store
	Close() error
}

// leadEnv holds the shared components every command builds from config.
// Fields a mode does not need stay nil.
type leadEnv struct {
	Store     closableStore
	Router    *router.Router
	Pipeline  *pipeline.Pipeline
	Generator *message.Generator
	Adapters  []source.Adapter

	locker store.KeyLocker
	redis  *redis.Client
}

// Close releases the store and lock connections.
func (e *leadEnv) Close() {
	if e.redis != nil {
		if err := e.redis.Close(); err != nil {
			zap.L().Warn("close redis", zap.Error(err))
		}
	}
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

// initEnv validates cfg for mode, opens and migrates the store, and wires the
// components that mode uses.
func initEnv(ctx context.Context, mode string) (*leadEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	env := &leadEnv{Store: st}

	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	if err := env.wire(ctx, mode); err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

func (e *leadEnv) wire(ctx context.Context, mode string) error {
	switch mode {
	case "query":
		e.Router = router.New(e.Store, nil)
		return nil
	case "messages":
		if err := e.initLocker(ctx); err != nil {
			return err
		}
		return e.initGenerator()
	}

	var backend llm.Backend
	if cfg.LLM.Enabled() {
		b, err := llm.New(cfg.LLM, true)
		if err != nil {
			return eris.Wrap(err, "init llm")
		}
		backend = b
	}

	q, err := buildQualifier(cfg.Scoring, backend)
	if err != nil {
		return err
	}
	f, err := buildFilter(cfg.Filter, backend)
	if err != nil {
		return err
	}
	n, err := buildNormalizer(cfg.Normalize)
	if err != nil {
		return err
	}

	if err := e.initLocker(ctx); err != nil {
		return err
	}

	exp, err := buildExporter(cfg.Export)
	if err != nil {
		return err
	}
	opts := []router.Option{router.WithLocker(e.locker)}
	if exp.Len() > 0 {
		opts = append(opts, router.WithExporter(exp))
	}
	e.Router = router.New(e.Store, q, opts...)
	e.Pipeline = pipeline.New(n, f, q, e.Router, e.Store)

	adapters, err := buildAdapters(cfg.Sources)
	if err != nil {
		return err
	}
	e.Adapters = adapters

	if mode == "schedule" && cfg.Schedule.MessagesCron != "" {
		return e.initGenerator()
	}
	return nil
}

func (e *leadEnv) initLocker(ctx context.Context) error {
	locker, client, err := buildLocker(ctx, cfg.Lock)
	if err != nil {
		return err
	}
	e.locker, e.redis = locker, client
	return nil
}

// initGenerator builds the message generator on the env's key locker so
// message writes and rescores on one key are serialized.
func (e *leadEnv) initGenerator() error {
	backend, err := llm.New(cfg.LLM, false)
	if err != nil {
		return eris.Wrap(err, "init llm")
	}
	e.Generator = message.New(backend, e.Store, messageConfig(cfg.Message), message.WithLocker(e.locker))
	return nil
}

func initStore(ctx context.Context, sc config.StoreConfig) (closableStore, error) {
	var opts []store.Option
	if sc.TimeoutSecs > 0 {
		opts = append(opts, store.WithTimeout(time.Duration(sc.TimeoutSecs)*time.Second))
	}

	switch sc.Driver {
	case "postgres":
		st, err := store.NewPostgres(ctx, sc.DatabaseURL, &store.PoolConfig{
			MaxConns: sc.MaxConns,
			MinConns: sc.MinConns,
		}, opts...)
		if err != nil {
			return nil, eris.Wrap(err, "init postgres store")
		}
		return st, nil
	case "sqlite":
		st, err := store.NewSQLite(sc.SQLitePath, opts...)
		if err != nil {
			return nil, eris.Wrap(err, "init sqlite store")
		}
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver %q", sc.Driver)
	}
}

// buildLocker returns the Redis locker when an address is configured and the
// in-process locker otherwise. The returned client is nil for the latter.
func buildLocker(ctx context.Context, lc config.LockConfig) (store.KeyLocker, *redis.Client, error) {
	if lc.RedisAddr == "" {
		return store.NewStripedLocker(0), nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     lc.RedisAddr,
		Password: lc.RedisPassword,
		DB:       lc.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, eris.Wrapf(err, "ping redis %s", lc.RedisAddr)
	}

	zap.L().Info("using redis key locker", zap.String("addr", lc.RedisAddr))
	return store.NewRedisLocker(client, store.RedisLockConfig{
		TTL: time.Duration(lc.TTLSecs) * time.Second,
	}), client, nil
}

func buildQualifier(sc config.ScoringConfig, backend llm.Backend) (*scorer.Qualifier, error) {
	var strategy scorer.Strategy
	switch sc.Strategy {
	case "ai":
		if backend == nil {
			return nil, eris.New("ai scoring requires an llm backend")
		}
		strategy = scorer.NewAI(backend, scorer.AIConfig{})
	default:
		hc := scorer.DefaultHeuristicConfig()
		if sc.ConfigPath != "" {
			loaded, err := scorer.LoadHeuristicConfig(sc.ConfigPath)
			if err != nil {
				return nil, eris.Wrap(err, "load scoring config")
			}
			hc = loaded
		}
		h, err := scorer.NewHeuristic(hc)
		if err != nil {
			return nil, eris.Wrap(err, "init heuristic scorer")
		}
		strategy = h
	}

	q, err := scorer.NewQualifier(strategy, sc.Threshold)
	if err != nil {
		return nil, eris.Wrap(err, "init qualifier")
	}
	return q, nil
}

func buildFilter(fc config.FilterConfig, backend llm.Backend) (*filter.Filter, error) {
	vocab := filter.DefaultVocabulary()
	if fc.VocabularyPath != "" {
		v, err := filter.LoadVocabulary(fc.VocabularyPath)
		if err != nil {
			return nil, eris.Wrap(err, "load competitor vocabulary")
		}
		vocab = v
	}

	var ai *filter.AIStage
	if fc.AIEnabled && backend != nil {
		ai = filter.NewAIStage(backend, fc.ExcerptChars)
	}
	return filter.New(filter.NewKeywordStage(vocab), ai), nil
}

func buildNormalizer(nc config.NormalizeConfig) (*normalize.Normalizer, error) {
	mappings := normalize.DefaultMappings()
	if nc.MappingsPath != "" {
		m, err := normalize.LoadMappings(nc.MappingsPath)
		if err != nil {
			return nil, eris.Wrap(err, "load field mappings")
		}
		mappings = m
	}
	if len(nc.Keywords) > 0 {
		m, err := normalize.WithKeywords(mappings, nc.Keywords)
		if err != nil {
			return nil, eris.Wrap(err, "apply keyword lists")
		}
		mappings = m
	}
	return normalize.New(mappings), nil
}

func buildExporter(ec config.ExportConfig) (*export.Exporter, error) {
	var targets []export.Target
	if ec.XLSXPath != "" {
		targets = append(targets, export.NewXLSXSheet(ec.XLSXPath, ec.SheetName))
	}
	if ec.NotionToken != "" && ec.NotionDBID != "" {
		client := notion.NewClient(ec.NotionToken, notion.WithRateLimit(float64(ec.NotionRateHz)))
		targets = append(targets, export.NewNotionDatabase(client, ec.NotionDBID))
	}
	if sc := ec.Salesforce; sc.ClientID != "" {
		pemData, err := os.ReadFile(sc.KeyPath)
		if err != nil {
			return nil, eris.Wrap(err, "read salesforce JWT private key")
		}
		client, err := salesforce.Dial(salesforce.Creds{
			LoginURL: sc.LoginURL,
			Username: sc.Username,
			ClientID: sc.ClientID,
			PEM:      string(pemData),
		}, salesforce.WithRateLimit(sc.RateHz))
		if err != nil {
			return nil, eris.Wrap(err, "init salesforce")
		}
		targets = append(targets, export.NewSalesforceLeads(client, sc.LeadSource))
	}
	return export.New(targets...), nil
}

func buildAdapters(sc config.SourcesConfig) ([]source.Adapter, error) {
	var adapters []source.Adapter
	for _, f := range sc.Files {
		p, err := model.ParsePlatform(f.Platform)
		if err != nil {
			return nil, eris.Wrapf(err, "source %s", f.Path)
		}
		adapters = append(adapters, source.NewFileAdapter(f.Path, p))
	}
	if sc.Reddit.Enabled {
		adapters = append(adapters, source.NewRedditAdapter(source.RedditConfig{
			BaseURL:    sc.Reddit.BaseURL,
			Subreddits: sc.Reddit.Subreddits,
			Keywords:   sc.Reddit.Keywords,
			MaxLeads:   sc.Reddit.MaxLeads,
			UserAgent:  sc.Reddit.UserAgent,
			Timeout:    time.Duration(sc.Reddit.TimeoutSecs) * time.Second,
			RateHz:     sc.Reddit.RateHz,
		}, nil))
	}
	return adapters, nil
}

func messageConfig(mc config.MessageConfig) message.Config {
	return message.Config{
		MaxAttempts:    mc.MaxAttempts,
		InitialBackoff: time.Duration(mc.InitialBackoffMs) * time.Millisecond,
		Delay:          time.Duration(mc.DelayMs) * time.Millisecond,
		MaxTokens:      mc.MaxTokens,
		Temperature:    mc.Temperature,
	}
}
