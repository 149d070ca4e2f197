package migration

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// keyspacePattern covers every key of the source's logical database 0
const keyspacePattern = "__keyspace@0__:*"

// notifyParameter is the server setting that controls keyspace notifications
const notifyParameter = "notify-keyspace-events"

// intent classifies what a keyspace event means for the target
type intent int

const (
	intentIgnore intent = iota
	intentDelete
	intentExpire
	intentListRebuild
	intentEnqueue
)

// classifyOp maps a keyspace event name to its replication intent. List
// mutations are rebuilt inline because the delete-then-append cycle is
// already idempotent per trigger and gains nothing from coalescing.
func classifyOp(op string) intent {
	switch op {
	case "del", "expired":
		return intentDelete
	case "expire":
		return intentExpire
	case "lpush", "rpush", "lpop", "rpop", "lset", "lrem", "ltrim", "linsert":
		return intentListRebuild
	case "set", "hset", "sadd", "zadd":
		return intentEnqueue
	default:
		return intentIgnore
	}
}

// keyFromChannel extracts the key name from a keyspace channel such as
// "__keyspace@0__:mykey"
func keyFromChannel(channel string) (string, bool) {
	i := strings.Index(channel, ":")
	if i < 0 || i == len(channel)-1 {
		return "", false
	}
	return channel[i+1:], true
}

// hasNotifyCategories reports whether a notify-keyspace-events value already
// covers keyspace events (K), keyevent events (E) and all event classes (A)
func hasNotifyCategories(value string) bool {
	return strings.ContainsRune(value, 'K') &&
		strings.ContainsRune(value, 'E') &&
		strings.ContainsRune(value, 'A')
}

// Subscriber consumes the source's keyspace notification stream during the
// CDC phase. Direct intents (delete, TTL sync, list rebuild) are applied
// inline on the consumer task; everything else goes through the coalescing
// queue. Errors on direct intents become error events but never tear the
// stream down.
type Subscriber struct {
	source  *redis.Client
	target  *redis.Client
	session *redis.Client

	queue     *PendingSet
	replicate func(ctx context.Context, key string)
	enabled   *atomic.Bool

	emit    func(Event)
	logger  Logger
	metrics MetricsCollector

	pubsub *redis.PubSub
	done   chan struct{}
}

// NewSubscriber creates a subscriber over the pair's dedicated pub/sub
// session. enabled is the engine's sync gate: while false, notifications are
// dropped, not buffered.
func NewSubscriber(conns *ConnPair, queue *PendingSet, replicate func(ctx context.Context, key string),
	enabled *atomic.Bool, emit func(Event), logger Logger, metrics MetricsCollector) *Subscriber {

	if logger == nil {
		logger = &defaultLogger{}
	}
	return &Subscriber{
		source:    conns.Source,
		target:    conns.Target,
		session:   conns.Subscriber,
		queue:     queue,
		replicate: replicate,
		enabled:   enabled,
		emit:      emit,
		logger:    logger,
		metrics:   metrics,
		done:      make(chan struct{}),
	}
}

// EnsureNotifications verifies the source emits keyspace notifications for
// all keys and event classes, reconfiguring it when the current value lacks
// any of the required categories.
func (s *Subscriber) EnsureNotifications(ctx context.Context) error {
	res, err := s.source.ConfigGet(ctx, notifyParameter).Result()
	if err != nil {
		return &ConfigurationError{Parameter: notifyParameter, Err: classifyError(err)}
	}

	current := res[notifyParameter]
	if hasNotifyCategories(current) {
		return nil
	}

	s.logger.Info("Enabling keyspace notifications", "current", current)
	if err := s.source.ConfigSet(ctx, notifyParameter, "KEA").Err(); err != nil {
		return &ConfigurationError{Parameter: notifyParameter, Err: classifyError(err)}
	}
	return nil
}

// Subscribe opens the pattern subscription and waits for the server's
// confirmation before returning, so callers can rely on the stream being
// live before the bulk scan requests its first page. The consumer task runs
// until Close.
func (s *Subscriber) Subscribe(ctx context.Context) error {
	s.pubsub = s.session.PSubscribe(ctx, keyspacePattern)

	if _, err := s.pubsub.Receive(ctx); err != nil {
		_ = s.pubsub.Close()
		return &SubscriberError{Channel: keyspacePattern, Err: classifyError(err)}
	}

	go s.consume(ctx)
	s.logger.Info("Keyspace subscription active", "pattern", keyspacePattern)
	return nil
}

// Close tears down the subscription and waits for the consumer task to exit
func (s *Subscriber) Close() {
	if s.pubsub == nil {
		return
	}
	_ = s.pubsub.Close()
	<-s.done
}

// consume is the long-lived consumer task on the subscriber session. A
// receive error outside teardown is reported as an error event and closes
// the subscription; it is not re-established.
func (s *Subscriber) consume(ctx context.Context) {
	defer close(s.done)

	for {
		msg, err := s.pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() == nil && err != redis.ErrClosed {
				s.reportError("", err)
				_ = s.pubsub.Close()
			}
			return
		}
		if !s.enabled.Load() {
			continue
		}
		s.handle(ctx, msg.Channel, msg.Payload)
	}
}

// handle applies one (key, operation) notification
func (s *Subscriber) handle(ctx context.Context, channel, op string) {
	key, ok := keyFromChannel(channel)
	if !ok {
		s.logger.Debug("Malformed keyspace channel", "channel", channel)
		return
	}

	switch classifyOp(op) {
	case intentDelete:
		if err := s.target.Del(ctx, key).Err(); err != nil {
			s.reportError(key, err)
			return
		}
		s.emit(Event{Kind: EventKeyProcessed, Key: key, Op: OpDelete})

	case intentExpire:
		ttl, err := s.source.TTL(ctx, key).Result()
		if err != nil {
			s.reportError(key, err)
			return
		}
		if ttl > 0 {
			if err := s.target.Expire(ctx, key, ttl).Err(); err != nil {
				s.reportError(key, err)
				return
			}
		}
		s.emit(Event{Kind: EventKeyProcessed, Key: key, Op: OpExpire})

	case intentListRebuild:
		s.replicate(ctx, key)

	case intentEnqueue:
		s.queue.Add(ctx, key)
		if s.metrics != nil {
			s.metrics.RecordQueueDepth(int64(s.queue.Len()))
		}
	}
}

func (s *Subscriber) reportError(key string, err error) {
	serr := &SubscriberError{Channel: keyspacePattern, Err: classifyError(err)}
	s.logger.Error("Keyspace event handling failed", "key", key, "error", err)
	if s.metrics != nil {
		s.metrics.RecordError("subscriber")
	}
	s.emit(Event{Kind: EventError, Key: key, Err: serr})
}
