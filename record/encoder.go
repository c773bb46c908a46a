package record

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/TotoCodeFR/DaaD/channel"
	"github.com/TotoCodeFR/DaaD/errors"
)

// Encoder writes records to a channel store as linked message chains.
//
// Chains are created tail-first: the last chunk is sent before the one that
// links to it, because a forward link needs the identifier the substrate
// assigns only at creation time. The head is therefore the last message
// created, which also guarantees it is never visible in channel history
// before the rest of its chain exists.
type Encoder struct {
	store     channel.Store
	chunkSize int
	logger    *slog.Logger
}

// NewEncoder creates an Encoder over the given store. A chunkSize of zero
// or less falls back to DefaultChunkSize.
func NewEncoder(store channel.Store, chunkSize int, logger *slog.Logger) *Encoder {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Encoder{
		store:     store,
		chunkSize: chunkSize,
		logger:    logger,
	}
}

// ChunkSize returns the configured maximum chunk payload size.
func (e *Encoder) ChunkSize() int {
	return e.chunkSize
}

// Write serializes doc, chunks the result and creates the message chain for
// identity. It returns the head message and the identifiers of every created
// message in chain order (head first). Messages already created are not
// rolled back when a later send fails; the partial chain is headless and
// therefore unreachable by head discovery.
func (e *Encoder) Write(ctx context.Context, identity string, doc map[string]any) (*channel.Message, []string, error) {
	if identity == "" {
		return nil, nil, errors.WrapInvalid(nil, "record", "Write", "identity is empty")
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, errors.WrapInvalid(err, "record", "Write", "serialize record")
	}

	chunks := Chunk(string(data), e.chunkSize)
	count := len(chunks)

	// Tail-first: send chunk count, then count-1, ..., each carrying the
	// id of the previously sent chunk as its forward link.
	ids := make([]string, count)
	next := ""
	var head *channel.Message
	for i := count - 1; i >= 0; i-- {
		msg, err := e.store.Send(ctx, Label(identity, i+1, count), chunks[i], next)
		if err != nil {
			return nil, nil, errors.Wrap(err, "record", "Write", "send chunk")
		}
		ids[i] = msg.ID
		next = msg.ID
		head = msg
	}

	e.logger.Debug("record written",
		"identity", identity,
		"chunks", count,
		"head", head.ID,
	)
	return head, ids, nil
}
