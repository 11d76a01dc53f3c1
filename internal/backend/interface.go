package backend

import (
	"context"
	"time"

	"bil/internal/log"
	"bil/internal/metrics"
	"bil/internal/services"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the ledger service and optional cleanup function
type BackendResult struct {
	Service *services.LedgerService
	Cleanup CleanupFunc
}

// Factory creates ledger services based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	DataDir            string
	SQLiteDBPath       string
	AttachmentMaxBytes int64

	CacheSize int
	CacheTTL  time.Duration

	HistoryEnabled bool
	GitBinary      string

	// Change events are published only when Publish is set and AMQPURL is not empty.
	Publish      bool
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	Metrics *metrics.Metrics
	Logger  *log.Logger
}

// BackendType represents the type of backend
type BackendType string

const (
	FileBackend   BackendType = "file"
	SQLiteBackend BackendType = "sqlite"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case FileBackend, SQLiteBackend:
		return true
	default:
		return false
	}
}
