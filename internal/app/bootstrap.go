package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"topictree/internal/auth"
	"topictree/internal/config"
	"topictree/internal/export"
	"topictree/internal/gitrepo"
	"topictree/internal/kvstore"
	"topictree/internal/llm"
	"topictree/internal/logger"
	"topictree/internal/metrics"
	"topictree/internal/nlp"
	"topictree/internal/objstore"
	"topictree/internal/redisstore"
	"topictree/internal/resolver"
	"topictree/internal/search"
	"topictree/internal/store"
	"topictree/internal/tagger"
	"topictree/internal/tree"
	"topictree/internal/treestore"
)

// Runtime is everything a binary needs once the configuration is applied.
type Runtime struct {
	Config  config.Config
	Logger  *logger.Logger
	Metrics *metrics.Metrics
	Store   *treestore.Store
	Search  *search.Service
	Service *Service
	Keys    *auth.Keyring

	closers []func() error
}

// Close releases backend connections in reverse order of creation.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func (rt *Runtime) onClose(fn func() error) {
	rt.closers = append(rt.closers, fn)
}

// Bootstrap opens the configured backend, search indexes and topic
// collaborators and wires them into a Service.
func Bootstrap(ctx context.Context, cfg config.Config, log *logger.Logger) (*Runtime, error) {
	if log == nil {
		log = logger.NewNop()
	}
	rt := &Runtime{Config: cfg, Logger: log, Metrics: metrics.New()}
	ready := false
	defer func() {
		if !ready {
			_ = rt.Close()
		}
	}()

	backend, fallbacks, redisClient, err := rt.openBackend(ctx)
	if err != nil {
		return nil, err
	}

	var locker treestore.Locker
	if cfg.Lock == "redis" {
		if redisClient == nil {
			rs, err := redisstore.NewStore(cfg.RedisURL)
			if err != nil {
				return nil, fmt.Errorf("lock redis: %w", err)
			}
			rt.onClose(rs.Close)
			redisClient = rs.Client()
		}
		locker = redisstore.NewLocker(redisClient)
	}

	var meili *search.Meili
	if cfg.MeiliURL != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		rt.onClose(func() error { meili.Close(); return nil })
	}

	var searchSvc *search.Service
	st := treestore.New(backend, treestore.Options{
		Locker:  locker,
		LockTTL: cfg.LockTTL,
		AfterSave: func(ctx context.Context, id string, t *tree.Tree) {
			rt.Metrics.TreeSaves.WithLabelValues(cfg.Store).Inc()
			searchSvc.IndexTree(ctx, id, t)
		},
	})
	searchSvc = search.NewService(meili, log, append(fallbacks, search.NewScan(st))...)

	res, subtopics, err := topicCollaborators(cfg, log)
	if err != nil {
		return nil, err
	}
	tg := tagger.New(st, res, nlp.NounExtractor{Max: cfg.MaxSubtopics}, subtopics, log, rt.Metrics)

	keys := auth.NewKeyring(cfg.APIKey, cfg.APIKeyHash, cfg.ReadAPIKey)
	if !keys.Enabled() {
		log.Warn("no API keys configured, every request gets writer access")
	}

	rt.Store = st
	rt.Search = searchSvc
	rt.Keys = keys
	rt.Service = New(Deps{
		Store:  st,
		Tagger: tg,
		Search: searchSvc,
		Export: export.NewService(st, nil),
		Logger: log,
	})
	log.Info("runtime ready", "store", cfg.Store, "lock", cfg.Lock, "meili", meili != nil)
	ready = true
	return rt, nil
}

// openBackend returns the tree backend, any extra searchers it provides
// and, for the redis store, the client a redis locker can share.
func (rt *Runtime) openBackend(ctx context.Context) (treestore.Backend, []search.Searcher, *redis.Client, error) {
	cfg := rt.Config
	switch cfg.Store {
	case "memory":
		return treestore.NewMemoryBackend(), nil, nil, nil
	case "git":
		svc := gitrepo.New(cfg.DataDir)
		if err := svc.Ping(ctx); err != nil {
			return nil, nil, nil, err
		}
		return svc, nil, nil, nil
	case "postgres":
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		rt.onClose(db.Close)
		applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("migrations failed: %w", err)
		}
		if len(applied) > 0 {
			rt.Logger.Info("applied migrations", "versions", applied)
		}
		return store.NewPostgresStore(db), []search.Searcher{search.NewPgFTS(db)}, nil, nil
	case "redis":
		rs, err := redisstore.NewStore(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		rt.onClose(rs.Close)
		return rs, nil, rs.Client(), nil
	case "minio":
		obj, err := objstore.New(ctx, objstore.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return obj, nil, nil, nil
	case "badger":
		kv, err := kvstore.Open(kvstore.Config{Path: cfg.DataDir, SyncWrites: true, Logger: rt.Logger})
		if err != nil {
			return nil, nil, nil, err
		}
		rt.onClose(kv.Close)
		return kv, nil, nil, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// topicCollaborators uses the LLM endpoint when a key is configured and
// otherwise falls back to lexical scoring with noun-derived main topics.
func topicCollaborators(cfg config.Config, log *logger.Logger) (*resolver.Resolver, tagger.SubtopicGenerator, error) {
	if cfg.LLMAPIKey == "" {
		log.Warn("no LLM API key configured, using lexical scoring and noun topics")
		res, err := resolver.New(resolver.LexicalScorer{}, nil, nlp.FirstNoun, cfg.MainThreshold)
		return res, nil, err
	}

	client, err := llm.NewClient(llm.Config{
		APIKey:         cfg.LLMAPIKey,
		BaseURL:        cfg.LLMBaseURL,
		Model:          cfg.LLMModel,
		EmbeddingModel: cfg.LLMEmbeddingModel,
		Timeout:        cfg.LLMTimeout,
	}, log)
	if err != nil {
		return nil, nil, err
	}
	res, err := resolver.New(
		llm.NewEmbeddingScorer(client),
		llm.NewMainTopicGenerator(client),
		nlp.FirstNoun,
		cfg.MainThreshold,
	)
	if err != nil {
		return nil, nil, err
	}
	return res, llm.NewSubtopicGenerator(client, cfg.MaxSubtopics), nil
}
