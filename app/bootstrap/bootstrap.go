package bootstrap

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/paperhub/backend-go/internal/auth"
	"github.com/paperhub/backend-go/internal/config"
	"github.com/paperhub/backend-go/internal/database"
	"github.com/paperhub/backend-go/internal/kafka"
	"github.com/paperhub/backend-go/internal/knowledge"
	"github.com/paperhub/backend-go/internal/logger"
	"github.com/paperhub/backend-go/internal/services"
	"github.com/paperhub/backend-go/internal/storage"
	"go.uber.org/zap"
)

// App encapsulates lifecycle resources that need to be cleaned up on shutdown.
type App struct {
	cleanupTasks []func() error

	JWTService          *auth.JWTService
	DocumentService     *services.DocumentService
	QueryService        *services.QueryService
	ConversationService *services.ConversationService

	Embedder    knowledge.Embedder
	ChatModel   knowledge.ChatModel
	Indexer     knowledge.FulltextIndexer
	VectorStore knowledge.VectorStore
	ObjectStore *storage.ObjectStore
}

// Global app instance for controllers to access
var globalApp *App

// GetApp returns the global app instance
func GetApp() *App {
	return globalApp
}

// SetGlobalApp sets the global app instance
func SetGlobalApp(app *App) {
	globalApp = app
}

// Init bootstraps configuration, logger, database connections and the
// retrieval pipeline required by the Beego application.
func Init() (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	if err := logger.InitLogger(); err != nil {
		return nil, err
	}

	if err := config.LoadConfig(); err != nil {
		return nil, err
	}
	cfg := config.AppConfig

	app := &App{}

	db, err := database.InitDB()
	if err != nil {
		return nil, err
	}
	app.cleanupTasks = append(app.cleanupTasks, func() error {
		return database.CloseDB()
	})

	// Redis is optional. Failure shouldn't block the app.
	if _, err := database.InitRedis(); err != nil {
		logger.Warn("Failed to initialize Redis", zap.Error(err))
	} else if database.RedisClient != nil {
		app.cleanupTasks = append(app.cleanupTasks, func() error {
			return database.CloseRedis()
		})
	}

	// MinIO is optional. Failure shouldn't block the app.
	if store, err := storage.NewObjectStore(cfg.Storage); err != nil {
		logger.Warn("Failed to initialize MinIO", zap.Error(err))
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := store.EnsureBucket(ctx); err != nil {
			logger.Warn("Failed to ensure MinIO bucket", zap.Error(err))
		}
		cancel()
		app.ObjectStore = store
	}

	// Fulltext backend: Elasticsearch preferred, ILIKE fallback otherwise.
	switch cfg.Search.Provider {
	case "elasticsearch":
		indexer, err := knowledge.NewElasticsearchIndexer(
			cfg.Search.Elasticsearch.Addresses,
			cfg.Search.Elasticsearch.Username,
			cfg.Search.Elasticsearch.Password,
			cfg.Search.Elasticsearch.APIKey,
			cfg.Search.Elasticsearch.Index,
		)
		if err != nil {
			logger.Warn("Failed to initialize Elasticsearch, falling back to database search", zap.Error(err))
			app.Indexer = knowledge.NewDatabaseIndexer(db)
		} else {
			app.Indexer = indexer
		}
	default:
		app.Indexer = knowledge.NewDatabaseIndexer(db)
	}

	// Vector backend: Milvus preferred, in-process cosine fallback otherwise.
	switch cfg.Vector.Provider {
	case "milvus":
		vectors, err := knowledge.NewMilvusVectorStore(knowledge.MilvusOptions{
			Address:    cfg.Vector.Milvus.Address,
			Username:   cfg.Vector.Milvus.Username,
			Password:   cfg.Vector.Milvus.Password,
			Collection: cfg.Vector.Milvus.Collection,
			Database:   cfg.Vector.Milvus.Database,
			Distance:   cfg.Vector.Milvus.Distance,
			UseTLS:     cfg.Vector.Milvus.TLS,
			VectorSize: cfg.AI.EmbeddingDimensions,
		})
		if err != nil {
			logger.Warn("Failed to initialize Milvus, falling back to database vectors", zap.Error(err))
			app.VectorStore = knowledge.NewDatabaseVectorStore(db)
		} else {
			app.VectorStore = vectors
		}
	default:
		app.VectorStore = knowledge.NewDatabaseVectorStore(db)
	}

	app.Embedder = knowledge.NewOpenAIEmbedder(knowledge.OpenAIEmbedderOptions{
		APIKey:     cfg.AI.OpenAIAPIKey,
		BaseURL:    cfg.AI.BaseURL,
		Model:      cfg.AI.EmbeddingModel,
		Dimensions: cfg.AI.EmbeddingDimensions,
	})
	app.ChatModel = knowledge.NewOpenAIChatModel(knowledge.OpenAIChatOptions{
		APIKey:      cfg.AI.OpenAIAPIKey,
		BaseURL:     cfg.AI.BaseURL,
		Model:       cfg.AI.ChatModel,
		MaxTokens:   cfg.AI.MaxTokens,
		Temperature: cfg.AI.Temperature,
	})
	if !app.Embedder.Ready() || !app.ChatModel.Ready() {
		logger.Warn("OpenAI API key not configured, retrieval pipeline will be degraded")
	}

	// Kafka is optional. Failure shouldn't block the app.
	if cfg.Kafka.Enabled {
		if err := kafka.InitProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic); err != nil {
			logger.Warn("Failed to initialize Kafka producer", zap.Error(err))
		} else {
			app.cleanupTasks = append(app.cleanupTasks, func() error {
				producer := kafka.GetProducer()
				if producer != nil {
					return producer.Close()
				}
				return nil
			})
		}
	}

	cache := services.NewRedisChunkCache(cfg.Redis.TTL)
	assembler := services.NewContextAssembler(db, cache)
	rewriter := knowledge.NewQueryRewriter(app.ChatModel, services.QueryPrompt, cfg.Retrieval.MaxQueries)
	retriever := knowledge.NewHybridRetriever(app.Indexer, app.VectorStore, app.Embedder, knowledge.HybridRetrieverOptions{
		PerQueryLimit: cfg.Retrieval.PerQueryLimit,
		FulltextLimit: cfg.Retrieval.FulltextLimit,
	})

	app.JWTService = auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, 24*time.Hour)
	app.QueryService = services.NewQueryService(rewriter, retriever, assembler, app.ChatModel)
	app.DocumentService = services.NewDocumentService(db, app.ObjectStore, app.Embedder, app.Indexer, app.VectorStore, cache)
	app.ConversationService = services.NewConversationService(db)

	return app, nil
}

// Shutdown flushes logs and closes resources gracefully.
func (a *App) Shutdown() {
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			log.Printf("Cleanup error: %v\n", err)
		}
	}
	logger.Sync()
}
