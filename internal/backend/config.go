package backend

import (
	"fmt"

	"bil/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type: backendType,

		DataDir:            appConfig.DataDir,
		SQLiteDBPath:       appConfig.SQLiteDBPath,
		AttachmentMaxBytes: appConfig.AttachmentMaxBytes,

		CacheSize: appConfig.CacheSize,
		CacheTTL:  appConfig.CacheTTL,

		HistoryEnabled: appConfig.HistoryEnabled,
		GitBinary:      appConfig.GitBinary,

		Publish:      true,
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}
	if c.Type == SQLiteBackend && c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for sqlite backend")
	}
	return nil
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	return []string{FileBackend.String(), SQLiteBackend.String()}
}
