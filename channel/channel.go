// Package channel defines the pluggable Channel Store Adapter contract.
//
// A channel is an append-only sequence of messages in the messaging substrate.
// Each table owns one channel; records are stored as chains of chunk messages
// linked by forward references. The Store interface is the only surface the
// engine sees, so substrates are interchangeable:
//   - natschannel.Store: NATS JetStream backend (one stream per channel)
//   - memchannel.Store: in-memory backend for tests
//
// Message identifiers are assigned by the substrate at creation time and are
// opaque to the engine. Substrates enforce a per-message payload size limit;
// the engine's chunk bound must stay under it with margin for label and link
// metadata.
package channel

import (
	"context"
	"errors"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrNotFound indicates the requested message does not exist.
	ErrNotFound = errors.New("channel: message not found")

	// ErrBulkRejected indicates the substrate refused a bulk deletion,
	// typically because a message exceeds its age threshold. Callers are
	// expected to fall back to per-message deletes.
	ErrBulkRejected = errors.New("channel: bulk delete rejected")

	// ErrPayloadTooLarge indicates a payload exceeds the substrate's
	// per-message size limit.
	ErrPayloadTooLarge = errors.New("channel: payload exceeds size limit")
)

// Message is one unit of the substrate's message type. Next is the identifier
// of the following chunk in a record chain; empty means no forward link.
type Message struct {
	ID      string
	Label   string
	Payload string
	Next    string
}

// Store provides send/fetch/delete primitives against one channel of the
// messaging substrate.
//
// All operations are context-aware; cancellation and timeouts are inherited
// from the substrate's own request semantics and surface as propagated errors.
// Implementations must be safe for concurrent use from multiple goroutines.
type Store interface {
	// Send creates a new message carrying label, payload and an optional
	// forward link, and returns it with its substrate-assigned identifier.
	// Fails with a transport or rate-limit error on rejection, and with
	// ErrPayloadTooLarge when payload exceeds the substrate limit.
	Send(ctx context.Context, label, payload, next string) (*Message, error)

	// Get fetches a message by identifier. Returns ErrNotFound when absent.
	Get(ctx context.Context, id string) (*Message, error)

	// Recent returns up to limit messages from the channel's recent history,
	// most recent first. Fewer than limit are returned near channel creation.
	// Only this bounded window is scannable; older messages remain reachable
	// by identifier only.
	Recent(ctx context.Context, limit int) ([]*Message, error)

	// BulkDelete removes the given messages in one operation. Returns
	// ErrBulkRejected when the substrate refuses the batch (any message
	// older than its age threshold); the caller must fall back to Delete.
	BulkDelete(ctx context.Context, ids []string) error

	// Delete removes a single message. Deleting an absent message returns
	// ErrNotFound.
	Delete(ctx context.Context, id string) error
}
