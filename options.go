package redismigrate

import (
	"crypto/tls"
	"time"

	"github.com/raniellyferreira/redis-live-migrator/filter"
	"github.com/raniellyferreira/redis-live-migrator/migration"
)

// Endpoint describes one side of the migration
type Endpoint = migration.Endpoint

// config holds the configuration for a Migrator
type config struct {
	// Connection endpoints
	source Endpoint
	target Endpoint

	// Migration identity
	migrationID string

	// Behavioral options
	realtimeSync bool
	batchSize    int64
	chunkSize    int

	// Cadence and timeouts
	metricInterval time.Duration
	connectTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration

	// Key filtering
	keyFilter migration.KeyFilter

	// Observability
	logger  Logger
	metrics MetricsCollector
}

// defaultConfig returns a configuration with sensible defaults
func defaultConfig() *config {
	return &config{
		realtimeSync:   true,
		batchSize:      migration.DefaultBatchSize,
		chunkSize:      migration.DefaultChunkSize,
		metricInterval: migration.DefaultMetricInterval,
		connectTimeout: 5 * time.Second,
		readTimeout:    30 * time.Second,
		writeTimeout:   10 * time.Second,
		logger:         &defaultLogger{},
	}
}

// Option represents a configuration option for a Migrator
type Option func(*config) error

// WithMigrationID sets the identifier carried in logs and events
//
// Example:
//
//	WithMigrationID("prod-cache-2024-03")
func WithMigrationID(id string) Option {
	return func(c *config) error {
		c.migrationID = id
		return nil
	}
}

// WithRealtimeSync controls whether the CDC subscriber is activated
// (default: true). When disabled the migrator runs as a one-shot snapshot.
//
// Example:
//
//	WithRealtimeSync(false)
func WithRealtimeSync(enabled bool) Option {
	return func(c *config) error {
		c.realtimeSync = enabled
		return nil
	}
}

// WithBatchSize sets the scanner page size (default: 5000)
//
// Example:
//
//	WithBatchSize(1000)
func WithBatchSize(size int64) Option {
	return func(c *config) error {
		if size <= 0 {
			return ErrInvalidConfig
		}
		c.batchSize = size
		return nil
	}
}

// WithChunkSize sets the replicator concurrency per page (default: 1000)
//
// Example:
//
//	WithChunkSize(100)
func WithChunkSize(size int) Option {
	return func(c *config) error {
		if size <= 0 {
			return ErrInvalidConfig
		}
		c.chunkSize = size
		return nil
	}
}

// WithMetricInterval sets the metric snapshot cadence (default: 5s)
//
// Example:
//
//	WithMetricInterval(10 * time.Second)
func WithMetricInterval(interval time.Duration) Option {
	return func(c *config) error {
		if interval <= 0 {
			return ErrInvalidConfig
		}
		c.metricInterval = interval
		return nil
	}
}

// WithConnectTimeout sets the connection timeout for both sides
//
// Example:
//
//	WithConnectTimeout(10 * time.Second)
func WithConnectTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout <= 0 {
			return ErrInvalidConfig
		}
		c.connectTimeout = timeout
		return nil
	}
}

// WithReadTimeout sets the read timeout for network operations
//
// Example:
//
//	WithReadTimeout(30 * time.Second)
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout <= 0 {
			return ErrInvalidConfig
		}
		c.readTimeout = timeout
		return nil
	}
}

// WithWriteTimeout sets the write timeout for network operations
//
// Example:
//
//	WithWriteTimeout(10 * time.Second)
func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout <= 0 {
			return ErrInvalidConfig
		}
		c.writeTimeout = timeout
		return nil
	}
}

// WithSourceAuth sets authentication credentials for the source connection,
// overriding any password carried on the source Endpoint
//
// Example:
//
//	WithSourceAuth("mypassword")
func WithSourceAuth(password string) Option {
	return func(c *config) error {
		c.source.Password = password
		return nil
	}
}

// WithTargetAuth sets authentication credentials for the target connection,
// overriding any password carried on the target Endpoint
//
// Example:
//
//	WithTargetAuth("mypassword")
func WithTargetAuth(password string) Option {
	return func(c *config) error {
		c.target.Password = password
		return nil
	}
}

// WithSourceTLS configures TLS for the source connection
//
// Example:
//
//	WithSourceTLS(redismigrate.SecureTLSConfig("redis.example.com"))
func WithSourceTLS(tlsConfig *tls.Config) Option {
	return func(c *config) error {
		c.source.TLS = tlsConfig
		return nil
	}
}

// WithTargetTLS configures TLS for the target connection
//
// Example:
//
//	WithTargetTLS(redismigrate.SecureTLSConfig("redis.example.com"))
func WithTargetTLS(tlsConfig *tls.Config) Option {
	return func(c *config) error {
		c.target.TLS = tlsConfig
		return nil
	}
}

// WithKeyFilter installs a Lua filter script evaluated per key before
// replication. See the filter package for the script contract.
//
// Example:
//
//	WithKeyFilter(`return string.sub(KEY, 1, 8) ~= "session:"`)
func WithKeyFilter(script string) Option {
	return func(c *config) error {
		f, err := filter.New(script)
		if err != nil {
			return err
		}
		c.keyFilter = f
		return nil
	}
}

// WithLogger sets a custom logger for the migrator
//
// Example:
//
//	WithLogger(myCustomLogger)
func WithLogger(logger Logger) Option {
	return func(c *config) error {
		if logger == nil {
			return ErrInvalidConfig
		}
		c.logger = logger
		return nil
	}
}

// WithMetrics enables metrics collection with the provided collector
//
// Example:
//
//	WithMetrics(myMetricsCollector)
func WithMetrics(collector MetricsCollector) Option {
	return func(c *config) error {
		c.metrics = collector
		return nil
	}
}

// SecureTLSConfig returns a TLS configuration with secure defaults for an
// endpoint. It enforces certificate verification and uses secure protocols;
// assign the result to Endpoint.TLS.
//
// Example:
//
//	target.TLS = redismigrate.SecureTLSConfig("redis.example.com")
func SecureTLSConfig(serverName string) *tls.Config {
	return &tls.Config{
		ServerName:               serverName,
		InsecureSkipVerify:       false,
		MinVersion:               tls.VersionTLS12,
		PreferServerCipherSuites: true,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		},
	}
}
