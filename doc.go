// Package daad implements a record-oriented storage engine on top of an
// append-only, rate-limited messaging substrate with a hard per-message
// payload limit. The concrete substrate is NATS JetStream.
//
// # Data Model
//
// Each logical table maps to one message channel (a JetStream stream); each
// stored record maps to a chain of messages linked by embedded forward
// references:
//
//	┌──────────────┐     ┌──────────────┐     ┌──────────────┐
//	│ u1 [1/3]     │     │ u1 [2/3]     │     │ u1 [3/3]     │
//	│ payload: ... │────►│ payload: ... │────►│ payload: ... │
//	│ next: 12     │     │ next: 11     │     │ next: -      │
//	└──────────────┘     └──────────────┘     └──────────────┘
//	  seq 13 (head)         seq 12               seq 11 (tail)
//
// Records are serialized to JSON and split into chunks small enough to fit
// under the substrate's payload cap. Because a forward link needs the
// identifier the server assigns only at creation, chains are written tail
// first: the last chunk goes out first, and each earlier chunk links to the
// one already created. The head (chunk 1) is created last and is the only
// message discoverable by scanning channel history; the rest are reachable
// by link traversal only.
//
// # Packages
//
// Core engine:
//   - record: payload chunking, chain labels, tail-first chain encoding and
//     forward-link reconstruction
//   - table: schema validation, CRUD orchestration, bounded-window head
//     discovery, write-populated lookup cache, two-phase delete with
//     per-message fallback
//   - channel: the substrate adapter contract the engine depends on
//   - channel/natschannel: JetStream-backed adapter (streams, sequences,
//     header-borne labels and links, age-gated bulk deletion)
//   - channel/memchannel: in-memory adapter with failure injection for tests
//
// Infrastructure:
//   - natsclient: NATS connection management with circuit breaker and
//     health monitoring
//   - config: JSON configuration with DAAD_* environment overrides
//   - metric: Prometheus metrics registry and /metrics server
//   - errors: classified error handling (transient/invalid/fatal)
//   - pkg/cache: generic no-eviction cache with statistics
//   - pkg/retry: exponential backoff with jitter
//
// # Usage
//
// Provision a channel, bind a table and operate on records:
//
//	store, _ := natschannel.Provision(ctx, client, "daad", "users")
//
//	schema, _ := table.NewSchema([]string{"id", "name", "note"}, "id")
//	users, _ := table.New("users", schema, table.DefaultConfig(), deps)
//	users.Bind(store)
//
//	users.Insert(ctx, table.Record{"id": "u1", "name": "alice"})
//	rec, _ := users.Find(ctx, "u1")
//	users.Delete(ctx, "u1")
//
// # Limits
//
// The engine trades strictness for substrate simplicity. There are no
// transactions: update is delete-then-insert and a failure between the two
// leaves the identity absent. There is no secondary index: find and query
// scan a bounded retrieval window of recent history, so heads older than
// the window silently fall out of discovery. Bulk deletion is refused by
// the substrate for messages past its age threshold; deletes then fall
// back to per-message removal, best effort.
package daad
