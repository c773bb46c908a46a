// Package table implements the record CRUD engine. A Table owns one channel
// of the messaging substrate, a schema and a write-populated lookup cache,
// and exposes insert/find/query/update/delete over chained messages.
//
// Tables start uninitialized and become ready when bound to a channel store.
// Operations assume serialized access per table instance; only the cache is
// internally thread-safe.
package table

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/TotoCodeFR/DaaD/channel"
	"github.com/TotoCodeFR/DaaD/errors"
	"github.com/TotoCodeFR/DaaD/metric"
	"github.com/TotoCodeFR/DaaD/pkg/cache"
	"github.com/TotoCodeFR/DaaD/record"
)

// DefaultRetrievalWindow bounds how far back Find and Query scan channel
// history for chain heads. Heads older than the window are silently
// undiscoverable.
const DefaultRetrievalWindow = 100

// Config holds per-table tuning.
type Config struct {
	// ChunkSize bounds per-message payload fragments. Zero means
	// record.DefaultChunkSize.
	ChunkSize int

	// RetrievalWindow bounds head-discovery scans. Zero means
	// DefaultRetrievalWindow.
	RetrievalWindow int
}

// DefaultConfig returns the standard table configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:       record.DefaultChunkSize,
		RetrievalWindow: DefaultRetrievalWindow,
	}
}

// Dependencies carries the shared infrastructure a Table uses.
type Dependencies struct {
	Logger  *slog.Logger
	Metrics *metric.Metrics
}

// chainEntry is what the cache holds per identity: the last written record
// snapshot and the ids of the messages composing its chain.
type chainEntry struct {
	Record Record
	IDs    []string
}

// DeleteResult reports what a delete did. Found is false for a no-op on an
// absent identity. Fallback marks that the bulk path was rejected and
// per-message deletes ran instead; Failed lists ids the fallback could not
// remove.
type DeleteResult struct {
	Found    bool
	Deleted  []string
	Failed   []string
	Fallback bool
}

// Table is the per-channel record engine.
type Table struct {
	name   string
	schema Schema
	config Config

	store   channel.Store
	encoder *record.Encoder
	rebuild *record.Reconstructor
	cache   cache.Cache[chainEntry]

	logger  *slog.Logger
	metrics *metric.Metrics
	ready   bool
}

// New builds an unbound table. Record operations fail with ErrTableNotReady
// until Bind attaches a channel store.
func New(name string, schema Schema, config Config, deps Dependencies) (*Table, error) {
	if name == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidSchema, "table", "New", "table name is empty")
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = record.DefaultChunkSize
	}
	if config.RetrievalWindow <= 0 {
		config.RetrievalWindow = DefaultRetrievalWindow
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	c, err := cache.New[chainEntry]()
	if err != nil {
		return nil, errors.Wrap(err, "table", "New", "create cache")
	}

	return &Table{
		name:    name,
		schema:  schema,
		config:  config,
		cache:   c,
		logger:  deps.Logger.With("table", name),
		metrics: deps.Metrics,
	}, nil
}

// Bind attaches the channel store and moves the table to ready. Binding
// twice is an error.
func (t *Table) Bind(store channel.Store) error {
	if t.ready {
		return errors.Wrap(errors.ErrAlreadyBound, "table", "Bind", "bind channel")
	}
	if store == nil {
		return errors.WrapInvalid(nil, "table", "Bind", "store is nil")
	}

	t.store = store
	t.encoder = record.NewEncoder(store, t.config.ChunkSize, t.logger)
	t.rebuild = record.NewReconstructor(store, t.logger)
	t.ready = true

	t.logger.Info("table ready",
		"chunk_size", t.config.ChunkSize,
		"retrieval_window", t.config.RetrievalWindow,
	)
	return nil
}

// Name returns the table name, which is also its channel identity.
func (t *Table) Name() string {
	return t.name
}

// Schema returns the table schema.
func (t *Table) Schema() Schema {
	return t.schema
}

// CacheStats exposes lookup-cache statistics.
func (t *Table) CacheStats() cache.StatsSummary {
	return t.cache.Stats().Summary()
}

func (t *Table) checkReady(method string) error {
	if !t.ready {
		return errors.Wrap(errors.ErrTableNotReady, "table", method, "check state")
	}
	return nil
}

func (t *Table) observe(operation string, start time.Time, err error) {
	if t.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	t.metrics.RecordTableOperation(t.name, operation, status)
	t.metrics.RecordOperationDuration(t.name, operation, time.Since(start))
}

// Insert writes rec as a new message chain and caches the chain under its
// identity. Duplicate identities are not checked; a second insert for the
// same primary key creates an independent chain and discovery order between
// the two is scan-dependent.
func (t *Table) Insert(ctx context.Context, rec Record) (*channel.Message, error) {
	start := time.Now()
	head, err := t.insert(ctx, rec)
	t.observe("insert", start, err)
	return head, err
}

func (t *Table) insert(ctx context.Context, rec Record) (*channel.Message, error) {
	if err := t.checkReady("Insert"); err != nil {
		return nil, err
	}

	pk, err := t.schema.identity(rec)
	if err != nil {
		return nil, err
	}

	head, ids, err := t.encoder.Write(ctx, pk, rec)
	if err != nil {
		return nil, errors.Wrap(err, "table", "Insert", "write chain")
	}

	if _, err := t.cache.Set(pk, chainEntry{Record: rec, IDs: ids}); err != nil {
		// Cache population is an optimization; the chain is already
		// durable.
		t.logger.Warn("cache set failed", "pk", pk, "error", err)
	}

	if t.metrics != nil {
		t.metrics.RecordChunksWritten(t.name, len(ids))
		t.metrics.RecordChainLength(t.name, len(ids))
	}
	t.logger.Debug("record inserted", "pk", pk, "chunks", len(ids), "head", head.ID)
	return head, nil
}

// Find scans recent channel history for the chain head matching pk and
// reconstructs the record. An absent identity returns (nil, nil); the cache
// is never consulted for reads.
func (t *Table) Find(ctx context.Context, pk string) (Record, error) {
	start := time.Now()
	rec, _, err := t.find(ctx, pk)
	t.observe("find", start, err)
	return rec, err
}

// find returns the record and the ids of its chain. Broken chains count as
// not found for readers, but the ids visited before the failure are still
// returned so delete can remove the remnants.
func (t *Table) find(ctx context.Context, pk string) (Record, []string, error) {
	if err := t.checkReady("Find"); err != nil {
		return nil, nil, err
	}
	if pk == "" {
		return nil, nil, errors.WrapInvalid(errors.ErrMissingPrimaryKey, "table", "Find", "primary key is empty")
	}

	head, err := t.findHead(ctx, pk)
	if err != nil {
		return nil, nil, err
	}
	if head == nil {
		return nil, nil, nil
	}

	doc, ids, err := t.rebuild.Rebuild(ctx, head)
	if err != nil {
		t.recordRebuildFailure(err)
		t.logger.Debug("reconstruction failed", "pk", pk, "head", head.ID, "error", err)
		return nil, ids, nil
	}
	return Record(doc), ids, nil
}

// findHead scans the retrieval window for the head message of pk's chain.
func (t *Table) findHead(ctx context.Context, pk string) (*channel.Message, error) {
	msgs, err := t.store.Recent(ctx, t.config.RetrievalWindow)
	if err != nil {
		return nil, errors.Wrap(err, "table", "Find", "scan channel history")
	}
	for _, msg := range msgs {
		if record.IsHeadFor(msg.Label, pk) {
			return msg, nil
		}
	}
	return nil, nil
}

// Query scans the retrieval window for all chain heads, reconstructs each
// and returns the records satisfying predicate. Broken chains are skipped.
// Result order follows channel history order, not insertion order.
func (t *Table) Query(ctx context.Context, predicate func(Record) bool) ([]Record, error) {
	start := time.Now()
	recs, err := t.query(ctx, predicate)
	t.observe("query", start, err)
	return recs, err
}

func (t *Table) query(ctx context.Context, predicate func(Record) bool) ([]Record, error) {
	if err := t.checkReady("Query"); err != nil {
		return nil, err
	}
	if predicate == nil {
		predicate = func(Record) bool { return true }
	}

	msgs, err := t.store.Recent(ctx, t.config.RetrievalWindow)
	if err != nil {
		return nil, errors.Wrap(err, "table", "Query", "scan channel history")
	}

	var results []Record
	for _, msg := range msgs {
		if !record.IsHead(msg.Label) {
			continue
		}
		doc, _, err := t.rebuild.Rebuild(ctx, msg)
		if err != nil {
			t.recordRebuildFailure(err)
			t.logger.Debug("skipping broken chain", "head", msg.ID, "label", msg.Label)
			continue
		}
		if rec := Record(doc); predicate(rec) {
			results = append(results, rec)
		}
	}
	return results, nil
}

// Update replaces the record for rec's identity by deleting the old chain
// and inserting a new one. The two steps are not atomic: a failure between
// them leaves the identity absent, and a concurrent read during the window
// can observe neither state.
func (t *Table) Update(ctx context.Context, rec Record) (*channel.Message, error) {
	start := time.Now()
	head, err := t.update(ctx, rec)
	t.observe("update", start, err)
	return head, err
}

func (t *Table) update(ctx context.Context, rec Record) (*channel.Message, error) {
	if err := t.checkReady("Update"); err != nil {
		return nil, err
	}

	pk, err := t.schema.identity(rec)
	if err != nil {
		return nil, err
	}

	if _, err := t.delete(ctx, pk); err != nil {
		return nil, errors.Wrap(err, "table", "Update", "delete previous chain")
	}
	return t.insert(ctx, rec)
}

// Delete removes the chain for pk. An absent identity is a no-op, not an
// error. A broken chain is still deletable: the messages visited before the
// break are removed, so delete is the recovery path for a chain Find reports
// as absent. Deletion tries a single bulk delete of the whole chain first; when
// the substrate rejects the batch on its age threshold, it falls back to
// best-effort per-message deletes and reports ids that still failed. The
// cache entry is evicted on every path.
func (t *Table) Delete(ctx context.Context, pk string) (*DeleteResult, error) {
	start := time.Now()
	res, err := t.delete(ctx, pk)
	t.observe("delete", start, err)
	return res, err
}

func (t *Table) delete(ctx context.Context, pk string) (*DeleteResult, error) {
	if err := t.checkReady("Delete"); err != nil {
		return nil, err
	}
	if pk == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingPrimaryKey, "table", "Delete", "primary key is empty")
	}

	// The chain is resolved by scan, not from the cache, so delete sees
	// the same state a reader would.
	_, ids, err := t.find(ctx, pk)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		t.evict(pk)
		return &DeleteResult{Found: false}, nil
	}

	res := &DeleteResult{Found: true}
	err = t.store.BulkDelete(ctx, ids)
	switch {
	case err == nil:
		res.Deleted = ids
	case stderrors.Is(err, channel.ErrBulkRejected):
		res.Fallback = true
		if t.metrics != nil {
			t.metrics.RecordDeleteFallback(t.name)
		}
		t.logger.Debug("bulk delete rejected, falling back", "pk", pk, "chunks", len(ids))
		for _, id := range ids {
			if derr := t.store.Delete(ctx, id); derr != nil {
				res.Failed = append(res.Failed, id)
				t.logger.Warn("fallback delete failed", "pk", pk, "id", id, "error", derr)
				continue
			}
			res.Deleted = append(res.Deleted, id)
		}
	default:
		t.evict(pk)
		return nil, errors.Wrap(err, "table", "Delete", "bulk delete chain")
	}

	t.evict(pk)
	t.logger.Debug("record deleted",
		"pk", pk,
		"deleted", len(res.Deleted),
		"failed", len(res.Failed),
		"fallback", res.Fallback,
	)
	return res, nil
}

func (t *Table) evict(pk string) {
	if _, err := t.cache.Delete(pk); err != nil {
		t.logger.Warn("cache evict failed", "pk", pk, "error", err)
	}
}

func (t *Table) recordRebuildFailure(err error) {
	if t.metrics == nil {
		return
	}
	reason := "decode"
	if stderrors.Is(err, errors.ErrChainBroken) {
		reason = "broken_chain"
	}
	t.metrics.RecordReconstructFailure(t.name, reason)
}
