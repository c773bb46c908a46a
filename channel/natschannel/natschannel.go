// Package natschannel implements the channel store over NATS JetStream.
//
// Each channel is one stream. Message identifiers are the stream sequences
// JetStream assigns at publish time, rendered as decimal strings; labels and
// forward links travel in message headers. Stream retention supplies the
// substrate's append-only history, and the server's age threshold gives bulk
// deletion its rejection behavior.
package natschannel

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/TotoCodeFR/DaaD/channel"
	"github.com/TotoCodeFR/DaaD/errors"
	"github.com/TotoCodeFR/DaaD/pkg/retry"
)

const (
	// HeaderLabel carries the chunk label.
	HeaderLabel = "Daad-Label"
	// HeaderNext carries the forward link to the next chunk's sequence.
	HeaderNext = "Daad-Next"

	// DefaultMaxPayload is the per-message payload cap enforced before
	// publish, leaving margin for headers under the substrate limit.
	DefaultMaxPayload = 4000

	// DefaultBulkMaxAge is the age past which the substrate refuses bulk
	// deletion and single-message deletes must be used instead.
	DefaultBulkMaxAge = 14 * 24 * time.Hour
)

// Store is a JetStream-backed channel store.
type Store struct {
	js      jetstream.JetStream
	stream  jetstream.Stream
	subject string

	maxPayload int
	bulkMaxAge time.Duration
	retryCfg   retry.Config
	logger     *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithMaxPayload overrides the per-message payload cap.
func WithMaxPayload(limit int) Option {
	return func(s *Store) {
		if limit > 0 {
			s.maxPayload = limit
		}
	}
}

// WithBulkMaxAge overrides the bulk-delete age threshold.
func WithBulkMaxAge(age time.Duration) Option {
	return func(s *Store) {
		if age > 0 {
			s.bulkMaxAge = age
		}
	}
}

// WithRetryConfig overrides the publish retry policy.
func WithRetryConfig(cfg retry.Config) Option {
	return func(s *Store) {
		s.retryCfg = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// StreamName derives the stream name for a channel under a prefix. Stream
// names must not contain dots or spaces.
func StreamName(prefix, channelName string) string {
	clean := func(s string) string {
		s = strings.ReplaceAll(s, ".", "_")
		s = strings.ReplaceAll(s, " ", "_")
		return strings.ToUpper(s)
	}
	return clean(prefix) + "_" + clean(channelName)
}

// Subject derives the publish subject for a channel under a prefix.
func Subject(prefix, channelName string) string {
	return prefix + "." + channelName
}

// Provisioner supplies the JetStream context and stream creation. It is
// implemented by *natsclient.Client, which routes stream provisioning
// through its circuit breaker accounting.
type Provisioner interface {
	JetStream() (jetstream.JetStream, error)
	CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

// Provision creates or updates the stream backing channelName and returns a
// Store bound to it. Safe to call repeatedly; the stream configuration is
// idempotent.
func Provision(ctx context.Context, p Provisioner, prefix, channelName string, opts ...Option) (*Store, error) {
	if p == nil {
		return nil, errors.WrapInvalid(nil, "natschannel", "Provision", "provisioner is nil")
	}
	if prefix == "" || channelName == "" {
		return nil, errors.WrapInvalid(nil, "natschannel", "Provision", "prefix and channel name are required")
	}

	js, err := p.JetStream()
	if err != nil {
		return nil, errors.Wrap(err, "natschannel", "Provision", "get jetstream context")
	}
	if js == nil {
		return nil, errors.WrapInvalid(nil, "natschannel", "Provision", "jetstream context is nil")
	}

	s := &Store{
		js:         js,
		subject:    Subject(prefix, channelName),
		maxPayload: DefaultMaxPayload,
		bulkMaxAge: DefaultBulkMaxAge,
		retryCfg:   retry.DefaultConfig(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	stream, err := p.CreateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName(prefix, channelName),
		Subjects:  []string{s.subject},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		Discard:   jetstream.DiscardOld,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "natschannel", "Provision", "create stream")
	}
	s.stream = stream

	s.logger.Info("channel provisioned",
		"stream", StreamName(prefix, channelName),
		"subject", s.subject,
	)
	return s, nil
}

// Send publishes one chunk message and returns it with its server-assigned
// sequence as id. Transient publish failures are retried with backoff.
func (s *Store) Send(ctx context.Context, label, payload, next string) (*channel.Message, error) {
	if len(payload) > s.maxPayload {
		return nil, fmt.Errorf("payload length %d: %w", len(payload), channel.ErrPayloadTooLarge)
	}

	msg := &nats.Msg{
		Subject: s.subject,
		Header:  nats.Header{},
		Data:    []byte(payload),
	}
	msg.Header.Set(HeaderLabel, label)
	if next != "" {
		msg.Header.Set(HeaderNext, next)
	}

	ack, err := retry.DoWithResult(ctx, s.retryCfg, func() (*jetstream.PubAck, error) {
		ack, err := s.js.PublishMsg(ctx, msg)
		if err != nil && !errors.IsTransient(err) {
			return nil, retry.NonRetryable(err)
		}
		return ack, err
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "natschannel", "Send", "publish chunk")
	}

	return &channel.Message{
		ID:      strconv.FormatUint(ack.Sequence, 10),
		Label:   label,
		Payload: payload,
		Next:    next,
	}, nil
}

// Get fetches one message by sequence id.
func (s *Store) Get(ctx context.Context, id string) (*channel.Message, error) {
	seq, err := parseID(id)
	if err != nil {
		return nil, err
	}

	raw, err := s.stream.GetMsg(ctx, seq)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrMsgNotFound) {
			return nil, fmt.Errorf("sequence %s: %w", id, channel.ErrNotFound)
		}
		return nil, errors.WrapTransient(err, "natschannel", "Get", "fetch message")
	}
	return fromRaw(raw), nil
}

// Recent returns up to limit messages, most recent first. Deleted sequences
// leave gaps in the stream; the walk skips them without consuming the limit
// budget beyond available history.
func (s *Store) Recent(ctx context.Context, limit int) ([]*channel.Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	info, err := s.stream.Info(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "natschannel", "Recent", "fetch stream info")
	}
	if info.State.Msgs == 0 {
		return nil, nil
	}

	msgs := make([]*channel.Message, 0, limit)
	first := info.State.FirstSeq
	for seq := info.State.LastSeq; seq >= first && len(msgs) < limit; seq-- {
		raw, err := s.stream.GetMsg(ctx, seq)
		if err != nil {
			if stderrors.Is(err, jetstream.ErrMsgNotFound) {
				continue
			}
			return nil, errors.WrapTransient(err, "natschannel", "Recent", "fetch message")
		}
		msgs = append(msgs, fromRaw(raw))
		if seq == first {
			break
		}
	}
	return msgs, nil
}

// BulkDelete removes all ids in one pass, but only when every message is
// younger than the age threshold. One over-age message rejects the whole
// batch with ErrBulkRejected; callers then fall back to Delete per id, which
// has no age restriction. Ids already gone from the stream are skipped.
func (s *Store) BulkDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	cutoff := time.Now().Add(-s.bulkMaxAge)
	live := make([]uint64, 0, len(ids))
	for _, id := range ids {
		seq, err := parseID(id)
		if err != nil {
			return err
		}
		raw, err := s.stream.GetMsg(ctx, seq)
		if err != nil {
			if stderrors.Is(err, jetstream.ErrMsgNotFound) {
				continue
			}
			return errors.WrapTransient(err, "natschannel", "BulkDelete", "inspect message")
		}
		if raw.Time.Before(cutoff) {
			return fmt.Errorf("sequence %s older than %s: %w", id, s.bulkMaxAge, channel.ErrBulkRejected)
		}
		live = append(live, seq)
	}

	for _, seq := range live {
		if err := s.stream.DeleteMsg(ctx, seq); err != nil && !stderrors.Is(err, jetstream.ErrMsgNotFound) {
			return errors.WrapTransient(err, "natschannel", "BulkDelete", "delete message")
		}
	}
	return nil
}

// Delete removes a single message regardless of age.
func (s *Store) Delete(ctx context.Context, id string) error {
	seq, err := parseID(id)
	if err != nil {
		return err
	}
	if err := s.stream.DeleteMsg(ctx, seq); err != nil {
		if stderrors.Is(err, jetstream.ErrMsgNotFound) {
			return fmt.Errorf("sequence %s: %w", id, channel.ErrNotFound)
		}
		return errors.WrapTransient(err, "natschannel", "Delete", "delete message")
	}
	return nil
}

func parseID(id string) (uint64, error) {
	seq, err := strconv.ParseUint(id, 10, 64)
	if err != nil || seq == 0 {
		return 0, errors.WrapInvalid(err, "natschannel", "parseID",
			fmt.Sprintf("id %q is not a stream sequence", id))
	}
	return seq, nil
}

func fromRaw(raw *jetstream.RawStreamMsg) *channel.Message {
	return &channel.Message{
		ID:      strconv.FormatUint(raw.Sequence, 10),
		Label:   raw.Header.Get(HeaderLabel),
		Payload: string(raw.Data),
		Next:    raw.Header.Get(HeaderNext),
	}
}

var _ channel.Store = (*Store)(nil)
