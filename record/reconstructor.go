package record

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/TotoCodeFR/DaaD/channel"
	"github.com/TotoCodeFR/DaaD/errors"
)

// Reconstructor rebuilds records from message chains by following forward
// links from a head message.
type Reconstructor struct {
	store  channel.Store
	logger *slog.Logger
}

// NewReconstructor creates a Reconstructor over the given store.
func NewReconstructor(store channel.Store, logger *slog.Logger) *Reconstructor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconstructor{
		store:  store,
		logger: logger,
	}
}

// Rebuild walks the chain starting at head, concatenates the chunk payloads
// and decodes the record. It returns the decoded document and the
// identifiers of every message visited, including on failure, so callers can
// still clean up a partially traversed chain.
//
// A chain whose link points at a missing message, whose walk exceeds the
// length the head label declares (a corrupted or cyclic link) or whose
// mid-chain fragment is empty yields ErrChainBroken; a complete chain whose
// payload does not decode yields ErrDecodeFailed. Both wrap into non-fatal
// classified errors that callers surface as an absent record.
func (r *Reconstructor) Rebuild(ctx context.Context, head *channel.Message) (map[string]any, []string, error) {
	if head == nil {
		return nil, nil, errors.WrapInvalid(nil, "record", "Rebuild", "head is nil")
	}

	identity, _, count, err := ParseLabel(head.Label)
	if err != nil {
		return nil, nil, errors.WrapInvalid(err, "record", "Rebuild", "parse head label")
	}

	ids := make([]string, 0, count)
	ids = append(ids, head.ID)

	var text strings.Builder
	text.WriteString(head.Payload)

	msg := head
	for msg.Next != "" {
		// The head label declares the chain length; a walk that outlives
		// it is following corrupted or cyclic links.
		if len(ids) >= count {
			r.logger.Debug("chain exceeds declared length",
				"identity", identity,
				"count", count,
				"link", msg.Next,
			)
			return nil, ids, errors.Wrap(errors.ErrChainBroken, "record", "Rebuild", "chain length overrun")
		}

		next, err := r.store.Get(ctx, msg.Next)
		if err != nil {
			r.logger.Debug("chain broken",
				"identity", identity,
				"missing", msg.Next,
				"visited", len(ids),
			)
			return nil, ids, errors.Wrap(errors.ErrChainBroken, "record", "Rebuild", "follow link")
		}
		ids = append(ids, next.ID)
		if next.Payload == "" {
			r.logger.Debug("chain fragment is empty",
				"identity", identity,
				"id", next.ID,
			)
			return nil, ids, errors.Wrap(errors.ErrChainBroken, "record", "Rebuild", "empty fragment")
		}
		text.WriteString(next.Payload)
		msg = next
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(text.String()), &doc); err != nil {
		r.logger.Debug("record decode failed",
			"identity", identity,
			"chunks", len(ids),
		)
		return nil, ids, errors.Wrap(errors.ErrDecodeFailed, "record", "Rebuild", "decode record")
	}

	return doc, ids, nil
}
