package migration

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyFilter decides per key whether to migrate and under which target name.
// A nil filter migrates every key unchanged.
type KeyFilter interface {
	// Decide returns the target key name and whether the key should be
	// migrated at all
	Decide(key string) (string, bool, error)
}

// Replicator copies the full observed state of one source key to the target.
// It is safe for concurrent use on distinct keys; per-key serialization is
// the caller's concern. The pending set never replicates one key twice at
// once, but the scanner and the subscriber's inline list rebuild may
// replicate a key while a drain is replicating it too.
type Replicator struct {
	source *redis.Client
	target *redis.Client
	stats  *Stats

	filter  KeyFilter
	logger  Logger
	metrics MetricsCollector
}

// NewReplicator creates a replicator over the connection pair
func NewReplicator(conns *ConnPair, stats *Stats, filter KeyFilter, logger Logger, metrics MetricsCollector) *Replicator {
	if logger == nil {
		logger = &defaultLogger{}
	}
	return &Replicator{
		source:  conns.Source,
		target:  conns.Target,
		stats:   stats,
		filter:  filter,
		logger:  logger,
		metrics: metrics,
	}
}

// Replicate copies key from source to target and reports the operation that
// was applied. Replicating the same key twice yields the same target state
// as once for every supported kind: scalar, map, set and sorted-set writes
// are idempotent, and the list path deletes before appending.
func (r *Replicator) Replicate(ctx context.Context, key string) (KeyOp, error) {
	targetKey := key
	if r.filter != nil {
		dst, ok, err := r.filter.Decide(key)
		if err != nil {
			return OpNone, &ReplicationError{Key: key, Err: err}
		}
		if !ok {
			r.logger.Debug("Key skipped by filter", "key", key)
			return OpNone, nil
		}
		if dst != "" {
			targetKey = dst
		}
	}

	start := time.Now()

	// A key that vanished between discovery and now is handled by the same
	// path as a del event: remove it on the target.
	n, err := r.source.Exists(ctx, key).Result()
	if err != nil {
		return OpNone, &ReplicationError{Key: key, Err: classifyError(err)}
	}
	if n == 0 {
		if err := r.target.Del(ctx, targetKey).Err(); err != nil {
			return OpNone, &ReplicationError{Key: key, Err: classifyError(err)}
		}
		r.stats.AddProcessed(1)
		return OpDelete, nil
	}

	typeName, err := r.source.Type(ctx, key).Result()
	if err != nil {
		return OpNone, &ReplicationError{Key: key, Err: classifyError(err)}
	}
	kind := KindOf(typeName)

	ttl, err := r.source.TTL(ctx, key).Result()
	if err != nil {
		return OpNone, &ReplicationError{Key: key, Err: classifyError(err)}
	}
	if ttl == -2 {
		// Vanished between the exists check and the TTL read
		if err := r.target.Del(ctx, targetKey).Err(); err != nil {
			return OpNone, &ReplicationError{Key: key, Err: classifyError(err)}
		}
		r.stats.AddProcessed(1)
		return OpDelete, nil
	}

	var bytes int64
	op := OpUpdate

	switch kind {
	case KindScalar:
		bytes, err = r.copyScalar(ctx, key, targetKey)
	case KindMap:
		bytes, err = r.copyMap(ctx, key, targetKey)
	case KindUnorderedSet:
		bytes, err = r.copySet(ctx, key, targetKey)
	case KindOrderedSet:
		bytes, err = r.copySortedSet(ctx, key, targetKey)
	case KindList:
		bytes, err = r.copyList(ctx, key, targetKey)
		op = OpListUpdate
	default:
		return OpNone, &UnsupportedTypeError{Key: key, Type: typeName}
	}
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Scalar vanished mid-read; the next event re-covers it
			return OpNone, nil
		}
		return OpNone, &ReplicationError{Key: key, Err: classifyError(err)}
	}

	if ttl > 0 {
		if err := r.target.Expire(ctx, targetKey, ttl).Err(); err != nil {
			return OpNone, &ReplicationError{Key: key, Err: classifyError(err)}
		}
	}

	r.stats.AddProcessed(1)
	r.stats.AddBytes(bytes)

	if r.metrics != nil {
		r.metrics.RecordKeyReplicated(kind.String(), time.Since(start))
		r.metrics.RecordBytesCopied(bytes)
	}

	return op, nil
}

func (r *Replicator) copyScalar(ctx context.Context, key, targetKey string) (int64, error) {
	val, err := r.source.Get(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if err := r.target.Set(ctx, targetKey, val, 0).Err(); err != nil {
		return 0, err
	}
	return int64(len(key) + len(val)), nil
}

func (r *Replicator) copyMap(ctx context.Context, key, targetKey string) (int64, error) {
	fields, err := r.source.HGetAll(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if len(fields) == 0 {
		return int64(len(key)), nil
	}
	if err := r.target.HSet(ctx, targetKey, fields).Err(); err != nil {
		return 0, err
	}

	bytes := int64(len(key))
	for f, v := range fields {
		bytes += int64(len(f) + len(v))
	}
	return bytes, nil
}

func (r *Replicator) copySet(ctx context.Context, key, targetKey string) (int64, error) {
	members, err := r.source.SMembers(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return int64(len(key)), nil
	}
	if err := r.target.SAdd(ctx, targetKey, stringArgs(members)...).Err(); err != nil {
		return 0, err
	}
	return int64(len(key)) + stringsSize(members), nil
}

func (r *Replicator) copySortedSet(ctx context.Context, key, targetKey string) (int64, error) {
	members, err := r.source.ZRangeWithScores(ctx, key, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return int64(len(key)), nil
	}
	if err := r.target.ZAdd(ctx, targetKey, members...).Err(); err != nil {
		return 0, err
	}

	bytes := int64(len(key))
	for _, z := range members {
		if m, ok := z.Member.(string); ok {
			bytes += int64(len(m))
		}
	}
	return bytes, nil
}

// copyList deletes the target key before appending. Lists accumulate when
// re-pushed, so the delete preserves ordering and length across repeated
// replications. The delete/append pair rides one pipeline but is not atomic;
// a failure in between leaves an empty key until the next event re-triggers
// replication.
func (r *Replicator) copyList(ctx context.Context, key, targetKey string) (int64, error) {
	items, err := r.source.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return 0, err
	}

	pipe := r.target.Pipeline()
	pipe.Del(ctx, targetKey)
	if len(items) > 0 {
		pipe.RPush(ctx, targetKey, stringArgs(items)...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int64(len(key)) + stringsSize(items), nil
}

// stringArgs widens a string slice for variadic go-redis calls
func stringArgs(vals []string) []interface{} {
	args := make([]interface{}, len(vals))
	for i, v := range vals {
		args[i] = v
	}
	return args
}

// stringsSize sums UTF-8 byte lengths
func stringsSize(vals []string) int64 {
	var n int64
	for _, v := range vals {
		n += int64(len(v))
	}
	return n
}
