package storage

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/segmentio/ksuid"
)

// PebbleStore keeps entries in an embedded Pebble database keyed by KSUID,
// so key order is arrival order.
type PebbleStore struct {
	db         *pebble.DB
	ids        *idSource
	maxEntries int

	mu    sync.Mutex
	count int
}

// NewPebbleStore opens or creates the database at path. maxEntries <= 0
// keeps everything.
func NewPebbleStore(path string, maxEntries int) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open pebble at %s", path)
	}

	s := &PebbleStore{db: db, ids: &idSource{}, maxEntries: maxEntries}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// load counts existing entries and seeds the id source with the newest key
func (s *PebbleStore) load() error {
	iter, err := s.db.NewIter(nil)
	if err != nil {
		return errors.Wrap(err, "open iterator")
	}
	defer iter.Close()

	for valid := iter.First(); valid; valid = iter.Next() {
		s.count++
	}
	if iter.Last() {
		id, err := ksuid.FromBytes(iter.Key())
		if err != nil {
			return errors.Wrapf(ErrCorruptEntry, "key: %v", err)
		}
		s.ids.observe(id)
	}
	return iter.Error()
}

// Append implements MessageStore. Entries beyond maxEntries are trimmed
// oldest first in the same batch.
func (s *PebbleStore) Append(ctx context.Context, topic string, payload []byte) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	now := time.Now()
	id, err := s.ids.next(now)
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{ID: id, Topic: topic, Payload: append([]byte(nil), payload...), ReceivedAt: now}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(id.Bytes(), encodeEntry(entry), nil); err != nil {
		return Entry{}, errors.Wrap(err, "stage entry")
	}

	trimmed := 0
	if s.maxEntries > 0 && s.count+1 > s.maxEntries {
		trimmed, err = s.trim(batch, s.count+1-s.maxEntries)
		if err != nil {
			return Entry{}, err
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return Entry{}, errors.Wrap(err, "commit entry")
	}
	s.count += 1 - trimmed
	return entry, nil
}

// trim stages deletes for the n oldest committed entries
func (s *PebbleStore) trim(batch *pebble.Batch, n int) (int, error) {
	iter, err := s.db.NewIter(nil)
	if err != nil {
		return 0, errors.Wrap(err, "open iterator")
	}
	defer iter.Close()

	deleted := 0
	for valid := iter.First(); valid && deleted < n; valid = iter.Next() {
		if err := batch.Delete(iter.Key(), nil); err != nil {
			return 0, errors.Wrap(err, "stage trim")
		}
		deleted++
	}
	return deleted, iter.Error()
}

// Recent implements MessageStore
func (s *PebbleStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	iter, err := s.db.NewIter(nil)
	if err != nil {
		return nil, errors.Wrap(err, "open iterator")
	}
	defer iter.Close()

	var entries []Entry
	for valid := iter.Last(); valid && len(entries) < limit; valid = iter.Prev() {
		entry, err := decodeEntry(iter.Value())
		if err != nil {
			return nil, errors.Wrapf(err, "key %x", iter.Key())
		}
		entries = append(entries, entry)
	}
	return entries, iter.Error()
}

// Count implements MessageStore
func (s *PebbleStore) Count(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count, nil
}

// Close implements MessageStore
func (s *PebbleStore) Close() error {
	return s.db.Close()
}
