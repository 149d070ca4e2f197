package redismigrate_test

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	redismigrate "github.com/raniellyferreira/redis-live-migrator"
)

// End-to-end tests require two distinct Redis instances. Set
// REDIS_SOURCE_ADDR and REDIS_TARGET_ADDR, or start instances at the
// defaults below. The tests flush both instances.
const (
	defaultSourceAddr = "localhost:6379"
	defaultTargetAddr = "localhost:6380"
)

func e2eAddrs() (string, string) {
	source := os.Getenv("REDIS_SOURCE_ADDR")
	if source == "" {
		source = defaultSourceAddr
	}
	target := os.Getenv("REDIS_TARGET_ADDR")
	if target == "" {
		target = defaultTargetAddr
	}
	return source, target
}

func isRedisAvailable(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func splitAddr(t *testing.T, addr string) redismigrate.Endpoint {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("Invalid address %q: %v", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("Invalid port in %q: %v", addr, err)
	}
	return redismigrate.Endpoint{Host: host, Port: port}
}

// e2eSetup skips unless both instances are reachable, flushes them, and
// returns raw clients for seeding and verification
func e2eSetup(t *testing.T) (*redis.Client, *redis.Client, redismigrate.Endpoint, redismigrate.Endpoint) {
	t.Helper()

	sourceAddr, targetAddr := e2eAddrs()
	if !isRedisAvailable(sourceAddr) || !isRedisAvailable(targetAddr) {
		t.Skipf("Redis not available at %s and %s - skipping e2e test. Set REDIS_SOURCE_ADDR and REDIS_TARGET_ADDR", sourceAddr, targetAddr)
	}

	ctx := context.Background()
	source := redis.NewClient(&redis.Options{Addr: sourceAddr})
	target := redis.NewClient(&redis.Options{Addr: targetAddr})
	t.Cleanup(func() {
		source.Close()
		target.Close()
	})

	if err := source.FlushAll(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush source: %v", err)
	}
	if err := target.FlushAll(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush target: %v", err)
	}

	return source, target, splitAddr(t, sourceAddr), splitAddr(t, targetAddr)
}

// waitForScan starts the migrator and blocks until the bulk sweep finishes
func waitForScan(t *testing.T, m *redismigrate.Migrator) {
	t.Helper()

	done := make(chan struct{})
	m.OnScanComplete(func() { close(done) })

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(60 * time.Second):
		t.Fatal("Bulk scan did not complete in time")
	}
}

// eventually polls cond until it holds or the deadline passes
func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestE2EEmptySource(t *testing.T) {
	_, _, sourceEp, targetEp := e2eSetup(t)

	m, err := redismigrate.New(sourceEp, targetEp,
		redismigrate.WithRealtimeSync(false),
	)
	if err != nil {
		t.Fatalf("Failed to create migrator: %v", err)
	}
	defer m.Close()

	waitForScan(t, m)

	stats := m.Stats()
	if stats.Total != 0 || stats.Processed != 0 {
		t.Errorf("Expected 0/0 keys, got %d/%d", stats.Processed, stats.Total)
	}
	if stats.Percent != 100 {
		t.Errorf("Expected 100%% on empty source, got %f", stats.Percent)
	}
}

func TestE2EScalars(t *testing.T) {
	source, target, sourceEp, targetEp := e2eSetup(t)
	ctx := context.Background()

	var wantBytes int64
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("k%d", i)
		val := fmt.Sprintf("v%d", i)
		if err := source.Set(ctx, key, val, 0).Err(); err != nil {
			t.Fatalf("Seed failed: %v", err)
		}
		wantBytes += int64(len(key) + len(val))
	}

	m, err := redismigrate.New(sourceEp, targetEp,
		redismigrate.WithRealtimeSync(false),
	)
	if err != nil {
		t.Fatalf("Failed to create migrator: %v", err)
	}
	defer m.Close()

	waitForScan(t, m)

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("k%d", i)
		val, err := target.Get(ctx, key).Result()
		if err != nil {
			t.Fatalf("Target missing %s: %v", key, err)
		}
		if want := fmt.Sprintf("v%d", i); val != want {
			t.Errorf("Target %s = %q, want %q", key, val, want)
		}
	}

	stats := m.Stats()
	if stats.Processed != 100 || stats.Total != 100 {
		t.Errorf("Counters = %d/%d, want 100/100", stats.Processed, stats.Total)
	}
	if stats.Bytes != wantBytes {
		t.Errorf("Bytes = %d, want %d", stats.Bytes, wantBytes)
	}
}

func TestE2EMixedTypes(t *testing.T) {
	source, target, sourceEp, targetEp := e2eSetup(t)
	ctx := context.Background()

	if err := source.Set(ctx, "s1", "hello", 0).Err(); err != nil {
		t.Fatal(err)
	}
	if err := source.HSet(ctx, "h1", map[string]string{"a": "1", "b": "2"}).Err(); err != nil {
		t.Fatal(err)
	}
	if err := source.SAdd(ctx, "u1", "x", "y", "z").Err(); err != nil {
		t.Fatal(err)
	}
	if err := source.ZAdd(ctx, "z1",
		redis.Z{Score: 1.5, Member: "m1"},
		redis.Z{Score: 2.5, Member: "m2"},
	).Err(); err != nil {
		t.Fatal(err)
	}
	if err := source.RPush(ctx, "l1", "alpha", "beta", "gamma").Err(); err != nil {
		t.Fatal(err)
	}

	m, err := redismigrate.New(sourceEp, targetEp,
		redismigrate.WithRealtimeSync(false),
	)
	if err != nil {
		t.Fatalf("Failed to create migrator: %v", err)
	}
	defer m.Close()

	waitForScan(t, m)

	if val, _ := target.Get(ctx, "s1").Result(); val != "hello" {
		t.Errorf("s1 = %q, want hello", val)
	}

	fields, _ := target.HGetAll(ctx, "h1").Result()
	if fields["a"] != "1" || fields["b"] != "2" || len(fields) != 2 {
		t.Errorf("h1 = %v", fields)
	}

	members, _ := target.SMembers(ctx, "u1").Result()
	if len(members) != 3 {
		t.Errorf("u1 has %d members, want 3", len(members))
	}

	zs, _ := target.ZRangeWithScores(ctx, "z1", 0, -1).Result()
	if len(zs) != 2 || zs[0].Member != "m1" || zs[0].Score != 1.5 || zs[1].Member != "m2" || zs[1].Score != 2.5 {
		t.Errorf("z1 = %v", zs)
	}

	items, _ := target.LRange(ctx, "l1", 0, -1).Result()
	if len(items) != 3 || items[0] != "alpha" || items[1] != "beta" || items[2] != "gamma" {
		t.Errorf("l1 = %v, want [alpha beta gamma]", items)
	}
}

func TestE2ETTLPreserved(t *testing.T) {
	source, target, sourceEp, targetEp := e2eSetup(t)
	ctx := context.Background()

	if err := source.Set(ctx, "k1", "v1", 60*time.Second).Err(); err != nil {
		t.Fatal(err)
	}

	m, err := redismigrate.New(sourceEp, targetEp,
		redismigrate.WithRealtimeSync(false),
	)
	if err != nil {
		t.Fatalf("Failed to create migrator: %v", err)
	}
	defer m.Close()

	waitForScan(t, m)

	ttl, err := target.TTL(ctx, "k1").Result()
	if err != nil {
		t.Fatal(err)
	}
	if ttl < 55*time.Second || ttl > 60*time.Second {
		t.Errorf("Target TTL = %v, want within [55s, 60s]", ttl)
	}
}

func TestE2ELiveUpdateDuringScan(t *testing.T) {
	source, target, sourceEp, targetEp := e2eSetup(t)
	ctx := context.Background()

	pipe := source.Pipeline()
	for i := 0; i < 10000; i++ {
		pipe.Set(ctx, fmt.Sprintf("k%d", i), fmt.Sprintf("v%d", i), 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	m, err := redismigrate.New(sourceEp, targetEp,
		redismigrate.WithBatchSize(500),
		redismigrate.WithChunkSize(50),
	)
	if err != nil {
		t.Fatalf("Failed to create migrator: %v", err)
	}
	defer m.Close()

	done := make(chan struct{})
	m.OnScanComplete(func() { close(done) })

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Overwrite a key while the sweep is running; the subscriber re-covers it
	if err := source.Set(ctx, "k5000", "updated", 0).Err(); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(120 * time.Second):
		t.Fatal("Bulk scan did not complete in time")
	}

	eventually(t, 10*time.Second, func() bool {
		val, err := target.Get(ctx, "k5000").Result()
		return err == nil && val == "updated"
	}, "Target k5000 never converged to the updated value")

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestE2EDeletionInSteadyState(t *testing.T) {
	source, target, sourceEp, targetEp := e2eSetup(t)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if err := source.Set(ctx, fmt.Sprintf("k%d", i), "v", 0).Err(); err != nil {
			t.Fatal(err)
		}
	}

	m, err := redismigrate.New(sourceEp, targetEp)
	if err != nil {
		t.Fatalf("Failed to create migrator: %v", err)
	}
	defer m.Close()

	waitForScan(t, m)

	if err := source.Del(ctx, "k42").Err(); err != nil {
		t.Fatal(err)
	}

	eventually(t, 10*time.Second, func() bool {
		n, err := target.Exists(ctx, "k42").Result()
		return err == nil && n == 0
	}, "Target k42 still present after source deletion")

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestE2EPauseResume(t *testing.T) {
	source, target, sourceEp, targetEp := e2eSetup(t)
	ctx := context.Background()

	if err := source.Set(ctx, "k1", "v1", 0).Err(); err != nil {
		t.Fatal(err)
	}

	m, err := redismigrate.New(sourceEp, targetEp)
	if err != nil {
		t.Fatalf("Failed to create migrator: %v", err)
	}
	defer m.Close()

	waitForScan(t, m)

	if err := m.PauseSync(); err != nil {
		t.Fatalf("PauseSync failed: %v", err)
	}

	// Changes during the pause are dropped, not buffered
	if err := source.Set(ctx, "k1", "while-paused", 0).Err(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Second)
	if val, _ := target.Get(ctx, "k1").Result(); val == "while-paused" {
		t.Error("Paused migrator applied a change")
	}

	if err := m.ResumeSync(); err != nil {
		t.Fatalf("ResumeSync failed: %v", err)
	}

	// New changes after resume are applied
	if err := source.Set(ctx, "k1", "after-resume", 0).Err(); err != nil {
		t.Fatal(err)
	}
	eventually(t, 10*time.Second, func() bool {
		val, err := target.Get(ctx, "k1").Result()
		return err == nil && val == "after-resume"
	}, "Change after resume never reached the target")

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestE2ENoWritesAfterStop(t *testing.T) {
	source, target, sourceEp, targetEp := e2eSetup(t)
	ctx := context.Background()

	if err := source.Set(ctx, "k1", "v1", 0).Err(); err != nil {
		t.Fatal(err)
	}

	m, err := redismigrate.New(sourceEp, targetEp)
	if err != nil {
		t.Fatalf("Failed to create migrator: %v", err)
	}
	defer m.Close()

	waitForScan(t, m)

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if err := source.Set(ctx, "k1", "after-stop", 0).Err(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Second)

	if val, _ := target.Get(ctx, "k1").Result(); val == "after-stop" {
		t.Error("Stopped migrator wrote to the target")
	}
}

func TestE2EKeyFilter(t *testing.T) {
	source, target, sourceEp, targetEp := e2eSetup(t)
	ctx := context.Background()

	if err := source.Set(ctx, "tmp:scratch", "x", 0).Err(); err != nil {
		t.Fatal(err)
	}
	if err := source.Set(ctx, "user:1", "alice", 0).Err(); err != nil {
		t.Fatal(err)
	}

	m, err := redismigrate.New(sourceEp, targetEp,
		redismigrate.WithRealtimeSync(false),
		redismigrate.WithKeyFilter(`
			if string.sub(KEY, 1, 4) == "tmp:" then
				return false
			end
			return "migrated:" .. KEY
		`),
	)
	if err != nil {
		t.Fatalf("Failed to create migrator: %v", err)
	}
	defer m.Close()

	waitForScan(t, m)

	if n, _ := target.Exists(ctx, "tmp:scratch").Result(); n != 0 {
		t.Error("Filtered key reached the target")
	}
	if val, _ := target.Get(ctx, "migrated:user:1").Result(); val != "alice" {
		t.Errorf("Renamed key = %q, want alice", val)
	}
}
