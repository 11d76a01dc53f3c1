package backend

import (
	"context"
	"fmt"

	"bil/internal/amqp"
	"bil/internal/attachment"
	"bil/internal/cache"
	"bil/internal/history"
	"bil/internal/log"
	"bil/internal/services"
	"bil/internal/storage"
	"bil/internal/storage/file"
	"bil/internal/storage/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	ledger, err := f.createLedger(config)
	if err != nil {
		return nil, err
	}

	opts := services.Options{
		Metrics: config.Metrics,
		Logger:  config.Logger,
	}

	if config.CacheSize > 0 && config.CacheTTL > 0 {
		lru := cache.NewLRUCache[services.CachedProject](config.CacheSize, config.CacheTTL)
		if config.Metrics != nil {
			lru.Observe("project", config.Metrics)
		}
		lru.StartCleanup(ctx, config.CacheTTL)
		opts.Cache = lru
	}

	if config.HistoryEnabled {
		git := history.NewGit(config.GitBinary)
		if git.Available() {
			opts.History = git
		} else {
			f.logger.WarnContext(ctx, "History enabled but git binary not found, continuing without history",
				"git_binary", config.GitBinary)
		}
	}

	if config.Publish && config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without change events", log.FieldError, err)
		} else {
			opts.Publisher = client
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	attachments := attachment.NewStore(config.DataDir, config.AttachmentMaxBytes)
	service := services.NewLedgerService(ledger, attachments, config.DataDir, opts)

	f.logger.InfoContext(ctx, "Initialized ledger backend",
		"backend", config.Type,
		"data_dir", config.DataDir,
		"history_enabled", opts.History != nil,
		"amqp_enabled", opts.Publisher != nil,
		"cache_enabled", opts.Cache != nil)

	return &BackendResult{
		Service: service,
		Cleanup: service.Close,
	}, nil
}

func (f *DefaultFactory) createLedger(config Config) (storage.Ledger, error) {
	switch config.Type {
	case FileBackend:
		store, err := file.New(config.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize file store: %w", err)
		}
		return store, nil
	case SQLiteBackend:
		repo, err := sqlite.NewRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}
