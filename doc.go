// Package redismigrate provides live, online migration of one Redis
// instance into another while the source continues to accept writes.
//
// The migrator combines a one-shot bulk snapshot of the source keyspace with
// an overlapping change-data-capture phase driven by keyspace notifications,
// and exposes progress and metric events while it runs.
//
// Basic usage:
//
//	m, err := redismigrate.New(
//		redismigrate.Endpoint{Host: "old-redis", Port: 6379},
//		redismigrate.Endpoint{Host: "new-redis", Port: 6379},
//		redismigrate.WithMigrationID("cache-move"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer m.Close()
//
//	if err := m.Start(context.Background()); err != nil {
//		log.Fatal(err)
//	}
//
//	// Observe progress
//	stats := m.Stats()
//	fmt.Printf("migrated %d/%d keys\n", stats.Processed, stats.Total)
//
// The library supports:
//
//   - Type-aware replication of strings, hashes, sets, sorted sets and lists
//   - TTL preservation
//   - Realtime change capture with per-key update coalescing
//   - Pause/resume of the change feed
//   - Lua-scripted key filtering and renaming
//   - Progress, metric and per-key events
package redismigrate
