package programstore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/blockflow/errors"
	"github.com/c360/blockflow/natsclient"
)

// DefaultBucket is the KV bucket holding program documents
const DefaultBucket = "blockflow_programs"

// Store errors
var (
	ErrExists          = stderrors.New("program already exists")
	ErrVersionConflict = stderrors.New("program was modified concurrently")
)

type storeConfig struct {
	bucket  string
	history uint8
	logger  *slog.Logger
}

// Option configures NewStore
type Option func(*storeConfig)

// WithBucket overrides the bucket name
func WithBucket(name string) Option {
	return func(c *storeConfig) { c.bucket = name }
}

// WithHistory sets how many revisions of each program are kept
func WithHistory(n uint8) Option {
	return func(c *storeConfig) { c.history = max(n, 1) }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *storeConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Store persists program documents in NATS KV
type Store struct {
	kv     *natsclient.KVStore
	logger *slog.Logger
	now    func() time.Time
}

// NewStore opens the program bucket, creating it on first use
func NewStore(ctx context.Context, client *natsclient.Client, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nats client cannot be nil: %w", errors.ErrMissingConfig),
			"programstore", "NewStore", "check client")
	}

	cfg := storeConfig{bucket: DefaultBucket, history: 10, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.bucket,
		Description: "blockflow program documents",
		History:     cfg.history,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "programstore", "NewStore", "create KV bucket")
	}
	return New(bucket, cfg.logger), nil
}

// New wraps an already opened bucket
func New(bucket jetstream.KeyValue, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "programstore")
	return &Store{
		kv:     natsclient.NewKVStore(bucket, logger),
		logger: logger,
		now:    time.Now,
	}
}

// Create stores doc as version 1. It fails with ErrExists when the ID is taken.
func (s *Store) Create(ctx context.Context, doc *Document) error {
	if doc == nil {
		return errors.WrapInvalid(fmt.Errorf("document cannot be nil: %w", errors.ErrInvalidData),
			"programstore", "Create", "check document")
	}
	if err := doc.Validate(); err != nil {
		return err
	}

	now := s.now().UTC()
	doc.Version = 1
	doc.CreatedAt = now
	doc.UpdatedAt = now

	data, err := json.Marshal(doc)
	if err != nil {
		return errors.WrapFatal(err, "programstore", "Create", "marshal document")
	}

	if _, err := s.kv.Create(ctx, doc.ID, data); err != nil {
		if natsclient.IsKVConflictError(err) {
			return errors.WrapInvalid(fmt.Errorf("%s: %w", doc.ID, ErrExists), "programstore", "Create", "create in KV")
		}
		return errors.WrapTransient(err, "programstore", "Create", "create in KV")
	}

	s.logger.Info("program created", "id", doc.ID, "name", doc.Name)
	return nil
}

// Get returns the current version of the program with the given ID
func (s *Store) Get(ctx context.Context, id string) (*Document, error) {
	if id == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("document ID cannot be empty: %w", errors.ErrInvalidData),
			"programstore", "Get", "check id")
	}

	entry, err := s.kv.Get(ctx, id)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, errors.WrapInvalid(fmt.Errorf("program %s: %w", id, errors.ErrKeyNotFound),
				"programstore", "Get", "get from KV")
		}
		return nil, errors.WrapTransient(err, "programstore", "Get", "get from KV")
	}
	return decode(entry.Value)
}

// Update replaces the stored program if doc.Version matches the stored
// version. On success doc.Version is incremented and UpdatedAt refreshed;
// CreatedAt always comes from the stored document.
func (s *Store) Update(ctx context.Context, doc *Document) error {
	if doc == nil {
		return errors.WrapInvalid(fmt.Errorf("document cannot be nil: %w", errors.ErrInvalidData),
			"programstore", "Update", "check document")
	}
	if err := doc.Validate(); err != nil {
		return err
	}

	var next Document
	err := s.kv.UpdateWithRetry(ctx, doc.ID, func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, errors.WrapInvalid(fmt.Errorf("program %s: %w", doc.ID, errors.ErrKeyNotFound),
				"programstore", "Update", "load current version")
		}
		stored, err := decode(current)
		if err != nil {
			return nil, err
		}
		if stored.Version != doc.Version {
			return nil, errors.WrapInvalid(
				fmt.Errorf("expected version %d, stored %d: %w", doc.Version, stored.Version, ErrVersionConflict),
				"programstore", "Update", "version check")
		}

		next = *doc
		next.Version = stored.Version + 1
		next.CreatedAt = stored.CreatedAt
		next.CreatedBy = stored.CreatedBy
		next.UpdatedAt = s.now().UTC()
		return json.Marshal(&next)
	})
	if err != nil {
		if errors.IsInvalid(err) || errors.IsFatal(err) {
			return err
		}
		return errors.WrapTransient(err, "programstore", "Update", "write to KV")
	}

	*doc = next
	s.logger.Info("program updated", "id", doc.ID, "version", doc.Version)
	return nil
}

// Delete removes the program. Older revisions stay reachable through History
// until the bucket history rolls them out.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.WrapInvalid(fmt.Errorf("document ID cannot be empty: %w", errors.ErrInvalidData),
			"programstore", "Delete", "check id")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, id); err != nil {
		return errors.WrapTransient(err, "programstore", "Delete", "delete from KV")
	}

	s.logger.Info("program deleted", "id", id)
	return nil
}

// List returns every stored program ordered by ID
func (s *Store) List(ctx context.Context) ([]*Document, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "programstore", "List", "list KV keys")
	}

	docs := make([]*Document, 0, len(keys))
	for _, key := range keys {
		doc, err := s.Get(ctx, key)
		if err != nil {
			if stderrors.Is(err, errors.ErrKeyNotFound) {
				// deleted after the key listing
				continue
			}
			return nil, errors.Wrap(err, "programstore", "List", fmt.Sprintf("get program %s", key))
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// History returns the retained versions of a program, oldest first.
// Delete markers are skipped.
func (s *Store) History(ctx context.Context, id string) ([]*Document, error) {
	entries, err := s.kv.History(ctx, id)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, errors.WrapInvalid(fmt.Errorf("program %s: %w", id, errors.ErrKeyNotFound),
				"programstore", "History", "read history")
		}
		return nil, errors.WrapTransient(err, "programstore", "History", "read history")
	}

	docs := make([]*Document, 0, len(entries))
	for _, e := range entries {
		if e.Deleted {
			continue
		}
		doc, err := decode(e.Value)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Change is one write seen by Watch. Document is nil for deletes.
type Change struct {
	ID       string
	Revision uint64
	Deleted  bool
	Document *Document
}

// Watch streams program writes made after the call. The channel closes when
// ctx is cancelled. Entries that fail to decode are logged and skipped.
func (s *Store) Watch(ctx context.Context) (<-chan Change, error) {
	w, err := s.kv.Watch(ctx, jetstream.AllKeys, jetstream.UpdatesOnly())
	if err != nil {
		return nil, errors.WrapTransient(err, "programstore", "Watch", "watch KV bucket")
	}

	out := make(chan Change)
	go func() {
		defer close(out)
		defer func() { _ = w.Stop() }()

		for {
			var entry jetstream.KeyValueEntry
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.Updates():
				if !ok {
					return
				}
				entry = e
			}
			if entry == nil {
				continue
			}

			change := Change{ID: entry.Key(), Revision: entry.Revision()}
			switch entry.Operation() {
			case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
				change.Deleted = true
			default:
				doc, err := decode(entry.Value())
				if err != nil {
					s.logger.Warn("skipping undecodable program", "id", entry.Key(), "error", err)
					continue
				}
				change.Document = doc
			}

			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapFatal(fmt.Errorf("%v: %w", err, errors.ErrParsingFailed),
			"programstore", "decode", "unmarshal document")
	}
	return &doc, nil
}
