package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/ical-alarm-relay/internal/domain/alarm"
	"github.com/oshokin/ical-alarm-relay/internal/logger"
)

// Store is the in-memory set of notified identities, in insertion order.
// It is not safe for concurrent use.
type Store struct {
	repo    Repository
	order   []string
	records map[string]alarm.Record
}

// Open loads the store from repo. A missing artifact is created empty.
// Any other load error, a corrupt artifact included, is returned.
func Open(ctx context.Context, repo Repository) (*Store, error) {
	s := &Store{
		repo:    repo,
		records: make(map[string]alarm.Record),
	}

	records, err := repo.Load(ctx)

	switch {
	case errors.Is(err, ErrNotFound):
		logger.Info(ctx, "State file not found, creating an empty one")

		if err := repo.Save(ctx, nil); err != nil {
			return nil, fmt.Errorf("create state: %w", err)
		}

		return s, nil
	case err != nil:
		return nil, fmt.Errorf("load state: %w", err)
	}

	for _, record := range records {
		if _, ok := s.records[record.UID]; !ok {
			s.order = append(s.order, record.UID)
		}

		s.records[record.UID] = record
	}

	logger.DebugKV(ctx, "State loaded", "alarms", len(s.order))

	return s, nil
}

// Len returns the number of stored identities.
func (s *Store) Len() int {
	return len(s.order)
}

// Has reports whether identity is stored.
func (s *Store) Has(identity string) bool {
	_, ok := s.records[identity]

	return ok
}

// Get returns the record stored for identity.
func (s *Store) Get(identity string) (alarm.Record, bool) {
	record, ok := s.records[identity]

	return record, ok
}

// IDs returns the stored identities in insertion order.
func (s *Store) IDs() []string {
	ids := make([]string, len(s.order))
	copy(ids, s.order)

	return ids
}

// Records returns the stored records in insertion order.
func (s *Store) Records() []alarm.Record {
	records := make([]alarm.Record, 0, len(s.order))
	for _, id := range s.order {
		records = append(records, s.records[id])
	}

	return records
}

// Upsert stores record unless its identity is already present.
// An existing record is never refreshed. It reports whether record was added.
func (s *Store) Upsert(record alarm.Record) bool {
	if s.Has(record.UID) {
		return false
	}

	s.order = append(s.order, record.UID)
	s.records[record.UID] = record

	return true
}

// Remove deletes identity and reports whether it was present.
func (s *Store) Remove(identity string) bool {
	if !s.Has(identity) {
		return false
	}

	delete(s.records, identity)

	for i, id := range s.order {
		if id == identity {
			s.order = append(s.order[:i], s.order[i+1:]...)

			break
		}
	}

	return true
}

// Persist writes the full store through the repository.
func (s *Store) Persist(ctx context.Context) error {
	if err := s.repo.Save(ctx, s.Records()); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}

	return nil
}
