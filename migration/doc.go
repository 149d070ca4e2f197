// Package migration implements the live key-value migration engine.
//
// This package coordinates two asynchronous streams of work against a single
// writer: a cursor-paginated bulk sweep of the source keyspace and an
// unbounded change feed driven by the source's keyspace notifications. It
// covers:
//   - Connection pair management with pre-flight validation
//   - Type-aware per-key replication for the five container kinds plus TTLs
//   - Bounded-concurrency bulk scanning
//   - Keyspace event classification and inline/queued application
//   - A coalescing update queue with a single drain worker
//   - Progress counters and periodic metric snapshots
//
// Basic usage:
//
//	engine := migration.NewEngine(migration.Config{
//		Source:       migration.Endpoint{Host: "localhost", Port: 6379},
//		Target:       migration.Endpoint{Host: "localhost", Port: 6380},
//		RealtimeSync: true,
//	})
//	if err := engine.Start(context.Background()); err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Stop()
//
// Most callers should use the root redismigrate package instead, which adds
// functional options and structured logging on top of this engine.
package migration
