package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"schedbot/internal/metrics"
	"schedbot/internal/storage"
	logx "schedbot/pkg/logx"
)

var (
	ErrEmptyAccount = errors.New("account id required")
	ErrEmptyMessage = errors.New("message required")
)

// Store is the authoritative CRUD layer over per-account schedule documents.
//
// Every mutation is a read-modify-write of the account's whole document. All
// mutations of one account are serialized by a per-account lock, so concurrent
// Create/Delete calls (including the runner's post-send deletes) never lose
// each other's writes. Different accounts proceed in parallel.
type Store struct {
	blobs     storage.BlobStore
	namespace string
	log       logx.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore returns a Store persisting into blobs under the given plugin identity.
func NewStore(blobs storage.BlobStore, pluginID string, log logx.Logger) (*Store, error) {
	if blobs == nil {
		return nil, errors.New("blob store required")
	}
	pluginID = strings.TrimSpace(pluginID)
	if pluginID == "" {
		return nil, errors.New("plugin id required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{
		blobs:     blobs,
		namespace: pluginID,
		log:       log.With(logx.String("comp", "schedule.store")),
		locks:     map[string]*sync.Mutex{},
	}, nil
}

// PluginID returns the namespace documents are stored under.
func (s *Store) PluginID() string { return s.namespace }

func (s *Store) lockFor(accountID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[accountID] = l
	}
	return l
}

// Get returns the account's document. An absent record yields an empty document.
func (s *Store) Get(ctx context.Context, accountID string) (Document, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, ErrEmptyAccount
	}
	return s.load(ctx, accountID)
}

func (s *Store) load(ctx context.Context, accountID string) (Document, error) {
	raw, ok, err := s.blobs.Get(ctx, s.namespace, accountID)
	if err != nil {
		return nil, fmt.Errorf("load schedule for %s: %w", accountID, err)
	}
	if !ok {
		return Document{}, nil
	}
	return decodeDocument(raw)
}

func (s *Store) save(ctx context.Context, accountID string, doc Document) error {
	doc.prune()
	b, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	if err := s.blobs.Put(ctx, s.namespace, accountID, b); err != nil {
		return fmt.Errorf("save schedule for %s: %w", accountID, err)
	}
	return nil
}

// Set replaces the account's whole document. It does not merge.
func (s *Store) Set(ctx context.Context, accountID string, doc Document) error {
	if strings.TrimSpace(accountID) == "" {
		return ErrEmptyAccount
	}
	l := s.lockFor(accountID)
	l.Lock()
	defer l.Unlock()
	return s.save(ctx, accountID, doc.Clone())
}

// mutate runs fn against a fresh copy of the document under the account lock
// and persists it only if fn reports a change.
func (s *Store) mutate(ctx context.Context, accountID string, fn func(doc Document) (changed bool)) (bool, error) {
	if strings.TrimSpace(accountID) == "" {
		return false, ErrEmptyAccount
	}
	l := s.lockFor(accountID)
	l.Lock()
	defer l.Unlock()

	doc, err := s.load(ctx, accountID)
	if err != nil {
		return false, err
	}
	if !fn(doc) {
		return false, nil
	}
	if err := s.save(ctx, accountID, doc); err != nil {
		return false, err
	}
	return true, nil
}

// Create reserves message for the minute of at and returns its reservation ID.
func (s *Store) Create(ctx context.Context, accountID string, at time.Time, message string) (ReservationID, error) {
	if message == "" {
		return 0, ErrEmptyMessage
	}
	key := BucketKey(at)
	var id ReservationID
	_, err := s.mutate(ctx, accountID, func(doc Document) bool {
		id = doc.NextID(key)
		b, ok := doc[key]
		if !ok {
			b = Bucket{}
			doc[key] = b
		}
		b[id] = message
		return true
	})
	if err != nil {
		return 0, err
	}
	metrics.IncCreated()
	s.log.Debug("reservation created", logx.String("account", accountID), logx.String("bucket", key), logx.Int("id", int(id)))
	return id, nil
}

// Delete removes one reservation from the bucket of at, pruning the bucket if it
// becomes empty. It reports whether an entry was removed; nothing is written otherwise.
func (s *Store) Delete(ctx context.Context, accountID string, at time.Time, id ReservationID) (bool, error) {
	key := BucketKey(at)
	removed, err := s.mutate(ctx, accountID, func(doc Document) bool {
		b, ok := doc[key]
		if !ok {
			return false
		}
		if _, ok := b[id]; !ok {
			return false
		}
		delete(b, id)
		if len(b) == 0 {
			delete(doc, key)
		}
		return true
	})
	if err != nil {
		return false, err
	}
	if removed {
		metrics.IncDeleted("entry")
		s.log.Debug("reservation deleted", logx.String("account", accountID), logx.String("bucket", key), logx.Int("id", int(id)))
	}
	return removed, nil
}

// DeleteBucket removes every reservation in the bucket of at. It reports whether
// the bucket existed.
func (s *Store) DeleteBucket(ctx context.Context, accountID string, at time.Time) (bool, error) {
	key := BucketKey(at)
	removed, err := s.mutate(ctx, accountID, func(doc Document) bool {
		if _, ok := doc[key]; !ok {
			return false
		}
		delete(doc, key)
		return true
	})
	if err != nil {
		return false, err
	}
	if removed {
		metrics.IncDeleted("bucket")
		s.log.Debug("bucket deleted", logx.String("account", accountID), logx.String("bucket", key))
	}
	return removed, nil
}

// List returns the account's reservations ordered by bucket then ID.
func (s *Store) List(ctx context.Context, accountID string) ([]Reservation, error) {
	doc, err := s.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return doc.Reservations(), nil
}
