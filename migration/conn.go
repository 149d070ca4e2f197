package migration

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
)

// Endpoint describes one side of the migration
type Endpoint struct {
	Host     string
	Port     int
	Password string
	TLS      *tls.Config
}

// Addr returns the host:port form of the endpoint
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Timeouts carries the per-connection timeout settings
type Timeouts struct {
	Connect time.Duration
	Read    time.Duration
	Write   time.Duration
}

// ConnPair owns the three client sessions of the engine: one to the source,
// one to the target, and a duplicate of the source session reserved for
// pub/sub (RESP multiplexes poorly between subscriptions and
// request/response on one connection).
type ConnPair struct {
	Source     *redis.Client
	Target     *redis.Client
	Subscriber *redis.Client

	sourceAddr string
	targetAddr string

	mu     sync.Mutex
	closed bool

	logger Logger
}

// NewConnPair creates the three sessions. No connection is attempted until
// the first command; use Validate for the pre-flight check.
func NewConnPair(source, target Endpoint, timeouts Timeouts, logger Logger) *ConnPair {
	if logger == nil {
		logger = &defaultLogger{}
	}

	return &ConnPair{
		Source:     newClient(source, timeouts),
		Target:     newClient(target, timeouts),
		Subscriber: newClient(source, timeouts),
		sourceAddr: source.Addr(),
		targetAddr: target.Addr(),
		logger:     logger,
	}
}

// newClient builds a go-redis client with the engine's no-retry discipline:
// connection loss surfaces as an error event and recovery is a restart.
func newClient(e Endpoint, t Timeouts) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         e.Addr(),
		Password:     e.Password,
		TLSConfig:    e.TLS,
		DialTimeout:  t.Connect,
		ReadTimeout:  t.Read,
		WriteTimeout: t.Write,
		MaxRetries:   -1,
	})
}

// Validate performs the pre-flight check: both sides must answer a liveness
// probe, the target must accept authentication, and source and target must
// not be the same server. Any failure closes all partially opened sessions.
func (cp *ConnPair) Validate(ctx context.Context) error {
	if err := cp.validate(ctx); err != nil {
		cp.Close()
		return err
	}
	return nil
}

func (cp *ConnPair) validate(ctx context.Context) error {
	if err := cp.Source.Ping(ctx).Err(); err != nil {
		return &ConnectionError{Addr: cp.sourceAddr, Err: classifyError(err)}
	}

	if err := cp.Target.Ping(ctx).Err(); err != nil {
		return &ConnectionError{Addr: cp.targetAddr, Err: classifyError(err)}
	}

	same, err := cp.sameInstance(ctx)
	if err != nil {
		return err
	}
	if same {
		return &ConnectionError{Addr: cp.sourceAddr, Err: ErrSameInstance}
	}

	return nil
}

// sameInstance compares the stable server identity of both sides. The run_id
// from INFO server is authoritative; when either side hides INFO the check
// falls back to address equality.
func (cp *ConnPair) sameInstance(ctx context.Context) (bool, error) {
	srcID, srcErr := serverRunID(ctx, cp.Source)
	dstID, dstErr := serverRunID(ctx, cp.Target)

	if srcErr == nil && dstErr == nil && srcID != "" && dstID != "" {
		return srcID == dstID, nil
	}

	cp.logger.Debug("INFO server unavailable, falling back to address comparison",
		"sourceErr", srcErr, "targetErr", dstErr)
	return cp.sourceAddr == cp.targetAddr, nil
}

// serverRunID extracts run_id from an INFO server reply
func serverRunID(ctx context.Context, c *redis.Client) (string, error) {
	info, err := c.Info(ctx, "server").Result()
	if err != nil {
		return "", err
	}
	return parseRunID(info), nil
}

// parseRunID scans an INFO reply for the run_id field
func parseRunID(info string) string {
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimRight(line, "\r")
		if rest, ok := strings.CutPrefix(line, "run_id:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// classifyError maps an underlying failure to one of the kinded sentinels so
// callers can distinguish refusal, auth, timeout, resolution and reset
// failures with errors.Is
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "NOAUTH"),
		strings.Contains(msg, "WRONGPASS"),
		strings.Contains(msg, "invalid password"),
		strings.Contains(msg, "Client sent AUTH"):
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %v", ErrHostNotFound, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%w: %v", ErrConnRefused, err)
	}

	if errors.Is(err, syscall.ECONNRESET) {
		return fmt.Errorf("%w: %v", ErrConnReset, err)
	}

	return err
}

// Close closes all three sessions. It is idempotent and tolerates sessions
// that never opened.
func (cp *ConnPair) Close() {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if cp.closed {
		return
	}
	cp.closed = true

	for _, c := range []*redis.Client{cp.Source, cp.Target, cp.Subscriber} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			cp.logger.Debug("Error closing session", "error", err)
		}
	}
}
