package bootstrap

import (
	"context"
	"errors"
	"time"

	"campaign_worker/adapter/out/delivery"
	"campaign_worker/adapter/out/graph"
	"campaign_worker/adapter/out/messaging"
	"campaign_worker/adapter/out/mongodb"
	"campaign_worker/adapter/out/persistence"
	"campaign_worker/config"
	"campaign_worker/core/agent/llm"
	"campaign_worker/core/agent/rag"
	"campaign_worker/core/port/out"
	"campaign_worker/core/service/analytics"
	deliveryservice "campaign_worker/core/service/delivery"
	"campaign_worker/core/service/experiment"
	"campaign_worker/core/service/generation"
	"campaign_worker/core/service/pipeline"
	"campaign_worker/core/service/review"
	"campaign_worker/core/service/safety"
	"campaign_worker/core/service/segment"
	"campaign_worker/infra/database"
	"campaign_worker/pkg/logger"
	"campaign_worker/pkg/metrics"
	"campaign_worker/pkg/snowflake"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	// archiveRetention sets expires_at on archived runs.
	archiveRetention = 90 * 24 * time.Hour

	embeddingCacheSize = 1000
	embeddingCacheTTL  = time.Hour
)

type Dependencies struct {
	Config *config.Config
	Policy *config.PolicyConfig

	// Connections (nil when not configured)
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	SQLite  *persistence.SQLStateStore
	Redis   *redis.Client
	MongoDB *mongo.Client
	Neo4j   neo4j.DriverWithContext

	// Ports
	Store   out.StateStore
	Search  out.SimilaritySearch
	LLM     out.LLMCompleter
	Sender  out.MessageSender
	Events  out.EventPublisher
	Jobs    out.JobProducer
	Archive out.RunArchive

	LLMClient *llm.Client
	IDs       *snowflake.Generator

	// Services
	Segmenter *segment.Segmenter
	Retriever *rag.Retriever
	Generator *generation.Generator
	Assigner  *experiment.Assigner
	Gate      *safety.Gate
	Selector  *analytics.Selector
	Delivery  *deliveryservice.Service
	Reviews   *review.Service
	Pipeline  *pipeline.Coordinator
}

// NewDependencies opens every configured backend and wires the pipeline.
// The returned cleanup closes connections in reverse order.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return fail(err)
	}
	deps.Policy = policy

	ids, err := snowflake.NewGenerator(cfg.SnowflakeNode)
	if err != nil {
		return fail(err)
	}
	deps.IDs = ids

	// =========================================================================
	// Connections
	// =========================================================================

	if cfg.RedisURL != "" {
		client, err := database.NewRedis(ctx, cfg.RedisURL, nil)
		if err != nil {
			if needsRedis(cfg) {
				return fail(err)
			}
			logger.Warn("Redis connection failed, continuing without it: %v", err)
		} else {
			deps.Redis = client
			cleanups = append(cleanups, func() { _ = client.Close() })
			logger.Info("Redis connected")
		}
	}

	if cfg.DatabaseURL != "" && (cfg.StoreBackend == config.StorePostgres || cfg.SearchBackend == config.SearchPGVector) {
		pgCfg := database.DefaultPostgresConfig()
		if cfg.SearchBackend == config.SearchPGVector {
			pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, pgCfg)
			if err != nil {
				return fail(err)
			}
			deps.DB = pool
			cleanups = append(cleanups, pool.Close)
		}
		if cfg.StoreBackend == config.StorePostgres {
			db, err := database.NewPostgresSQLX(ctx, "postgres", cfg.DatabaseURL, pgCfg)
			if err != nil {
				return fail(err)
			}
			deps.SQLDB = db
			cleanups = append(cleanups, func() { _ = db.Close() })
		}
		logger.Info("Postgres connected")
	}

	if cfg.MongoDBURL != "" {
		client, err := mongodb.Connect(ctx, cfg.MongoDBURL, mongodb.DefaultClientConfig())
		if err != nil {
			if cfg.StoreBackend == config.StoreMongo {
				return fail(err)
			}
			logger.Warn("MongoDB connection failed, run archive disabled: %v", err)
		} else {
			deps.MongoDB = client
			cleanups = append(cleanups, func() { _ = client.Disconnect(context.Background()) })
			logger.Info("MongoDB connected")
		}
	}

	if cfg.SearchBackend == config.SearchNeo4j {
		driver, err := graph.NewDriver(ctx, cfg.Neo4jURL, cfg.Neo4jUsername, cfg.Neo4jPassword)
		if err != nil {
			return fail(err)
		}
		deps.Neo4j = driver
		cleanups = append(cleanups, func() { _ = driver.Close(context.Background()) })
		logger.Info("Neo4j connected")
	}

	// =========================================================================
	// Ports
	// =========================================================================

	if err := deps.initStore(ctx, &cleanups); err != nil {
		return fail(err)
	}
	deps.initLLM()
	if err := deps.initSearch(ctx); err != nil {
		return fail(err)
	}
	if err := deps.initSender(&cleanups); err != nil {
		return fail(err)
	}
	deps.initEvents(&cleanups)

	if deps.MongoDB != nil {
		archive := mongodb.NewRunArchive(deps.MongoDB.Database(cfg.MongoDBName), archiveRetention)
		if err := archive.EnsureIndexes(ctx); err != nil {
			logger.Warn("Run archive index creation failed: %v", err)
		}
		deps.Archive = archive
	}

	// =========================================================================
	// Services
	// =========================================================================

	if err := deps.initServices(); err != nil {
		return fail(err)
	}

	logger.WithFields(map[string]any{
		"store":    cfg.StoreBackend,
		"search":   cfg.SearchBackend,
		"delivery": cfg.DeliveryBackend,
		"llm":      cfg.LLMEnabled(),
		"dry_run":  cfg.DryRun,
	}).Info("Dependencies initialized")

	return deps, cleanup, nil
}

func needsRedis(cfg *config.Config) bool {
	return cfg.StoreBackend == config.StoreRedis || cfg.DeliveryBackend == config.DeliveryStream
}

func (d *Dependencies) initStore(ctx context.Context, cleanups *[]func()) error {
	cfg := d.Config
	switch cfg.StoreBackend {
	case config.StoreRedis:
		d.Store = persistence.NewRedisStateStore(d.Redis, cfg.StateTTL)

	case config.StorePostgres:
		store := persistence.NewPostgresStateStore(d.SQLDB)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		d.Store = store

	case config.StoreSQLite:
		store, err := persistence.OpenSQLiteStateStore(cfg.SQLitePath)
		if err != nil {
			return err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return err
		}
		metrics.RegisterPool("sqlite", store.DB())
		d.SQLite = store
		d.Store = store
		*cleanups = append(*cleanups, func() { _ = store.Close() })

	case config.StoreMongo:
		if d.MongoDB == nil {
			return errors.New("mongo store requires a MongoDB connection")
		}
		store := mongodb.NewStateStore(d.MongoDB.Database(cfg.MongoDBName))
		if err := store.EnsureIndexes(ctx); err != nil {
			logger.Warn("State store index creation failed: %v", err)
		}
		d.Store = store

	default:
		d.Store = persistence.NewMemoryStateStore()
	}
	return nil
}

func (d *Dependencies) initLLM() {
	cfg := d.Config
	if !cfg.LLMEnabled() {
		logger.Info("OPENAI_API_KEY not set, using template variants")
		return
	}

	d.LLMClient = llm.NewClientWithConfig(llm.ClientConfig{
		APIKey:         cfg.OpenAIAPIKey,
		BaseURL:        cfg.OpenAIBaseURL,
		Model:          cfg.LLMModel,
		EmbeddingModel: cfg.LLMEmbeddingModel,
		MaxTokens:      cfg.LLMMaxTokens,
		Temperature:    cfg.LLMTemperature,
		Timeout:        time.Duration(cfg.LLMTimeoutSec) * time.Second,
	})

	rc := llm.DefaultResilienceConfig()
	if cfg.LLMMaxRetries >= 0 {
		rc.MaxRetries = uint64(cfg.LLMMaxRetries)
	}
	d.LLM = llm.NewResilientCompleter(d.LLMClient, rc)
}

// initSearch always loads the local corpus. pgvector and neo4j sit in front
// of it behind a FallbackSearch.
func (d *Dependencies) initSearch(ctx context.Context) error {
	cfg := d.Config
	weights := d.Policy.Retrieval

	corpus, err := rag.LoadCorpus(cfg.CorpusPath)
	if err != nil {
		logger.WithError(err).Warn("Corpus not loaded, local retrieval returns nothing")
		corpus = rag.NewCorpusSearch(nil)
	}
	if weights.OverlapWeight > 0 || weights.RecencyWeight > 0 {
		corpus = corpus.WithRanker(rag.NewRanker().WithWeights(weights.OverlapWeight, weights.RecencyWeight))
	}
	d.Search = corpus

	switch cfg.SearchBackend {
	case config.SearchPGVector:
		if d.LLMClient == nil {
			logger.Warn("pgvector search needs embeddings; falling back to the local corpus")
			return nil
		}
		embedder := rag.NewEmbedder(d.LLMClient, rag.NewEmbeddingCache(embeddingCacheSize, embeddingCacheTTL))
		store := rag.NewVectorStore(d.DB)

		// 비어 있는 테이블이면 corpus로 초기 인덱싱
		if n, err := store.Count(ctx); err == nil && n == 0 && len(corpus.Documents()) > 0 {
			indexed, err := rag.NewIndexer(embedder, store).Index(ctx, corpus.Documents())
			if err != nil {
				logger.WithError(err).Warn("Initial snippet indexing failed")
			} else {
				logger.Info("Indexed %d corpus snippets into pgvector", indexed)
			}
		}

		d.Search = rag.NewFallbackSearch("pgvector", rag.NewVectorSearch(embedder, store, 0), corpus)

	case config.SearchNeo4j:
		snippets := graph.NewSnippetSearch(d.Neo4j, cfg.Neo4jDatabase)
		if err := snippets.EnsureIndexes(ctx); err != nil {
			logger.WithError(err).Warn("Neo4j full-text index creation failed")
		}
		d.Search = rag.NewFallbackSearch("neo4j", snippets, corpus)
	}
	return nil
}

func (d *Dependencies) initSender(cleanups *[]func()) error {
	cfg := d.Config
	switch cfg.DeliveryBackend {
	case config.DeliveryKafka:
		sender := delivery.NewKafkaSender(cfg.KafkaBrokers, cfg.KafkaDeliveryTopic)
		*cleanups = append(*cleanups, func() { _ = sender.Close() })
		d.Sender = sender
	case config.DeliveryWebhook:
		d.Sender = delivery.NewWebhookSender(cfg.WebhookURL, time.Duration(cfg.WebhookTimeoutSec)*time.Second, nil)
	case config.DeliveryStream:
		if d.Redis == nil {
			return errors.New("stream delivery requires a Redis connection")
		}
		d.Sender = delivery.NewStreamSender(messaging.NewRedisProducer(d.Redis))
	default:
		d.Sender = delivery.NewMockSender()
	}
	return nil
}

// initEvents prefers Kafka for events and uses Redis streams otherwise.
// The job producer is always the Redis stream.
func (d *Dependencies) initEvents(cleanups *[]func()) {
	cfg := d.Config

	var producer *messaging.RedisProducer
	if d.Redis != nil {
		producer = messaging.NewRedisProducer(d.Redis)
		d.Jobs = producer
	}

	switch {
	case len(cfg.KafkaBrokers) > 0:
		publisher := messaging.NewKafkaEventPublisher(cfg.KafkaBrokers, cfg.KafkaEventsTopic)
		*cleanups = append(*cleanups, func() { _ = publisher.Close() })
		d.Events = publisher
	case producer != nil:
		d.Events = producer
	default:
		d.Events = out.NopEventPublisher{}
	}
}

func (d *Dependencies) initServices() error {
	cfg, policy := d.Config, d.Policy

	assigner, err := experiment.NewAssigner(policy.Experiment.Split, policy.Experiment.Seed, policy.Experiment.ID)
	if err != nil {
		return err
	}
	d.Assigner = assigner

	topK := cfg.RetrievalTopK
	if topK <= 0 {
		topK = policy.Retrieval.TopK
	}

	d.Segmenter = segment.NewSegmenter()
	d.Retriever = rag.NewRetriever(d.Search, topK)
	d.Generator = generation.NewGenerator(d.LLM).
		WithTimeout(time.Duration(cfg.LLMTimeoutSec) * time.Second).
		OnFallback(metrics.IncGenerationFallback)
	d.Gate = safety.NewGate(policy.Safety.ProhibitedTerms, policy.PIIChecks())
	d.Selector = analytics.NewSelector()
	d.Delivery = deliveryservice.NewService(d.Sender, cfg.DryRun)
	d.Reviews = review.NewService(d.Store).WithArchive(d.Archive)

	coord, err := pipeline.NewCoordinator(pipeline.Config{
		Store:     d.Store,
		Segmenter: d.Segmenter,
		Retriever: d.Retriever,
		Generator: d.Generator,
		Assigner:  d.Assigner,
		Gate:      d.Gate,
		Review:    d.Reviews,
		Selector:  d.Selector,
		Delivery:  d.Delivery,
		Events:    d.Events,
		Archive:   d.Archive,
		IDs:       d.IDs,
		TopK:      topK,
	})
	if err != nil {
		return err
	}
	d.Pipeline = coord
	return nil
}
