package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-notes/inkwell-backend/internal/platform/envutil"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/logger"
)

// ReindexScheduler serializes every index mutation per note. Background
// runs hold a per-note lock; at most one is in flight for a note, and while
// it runs later requests collapse into a single pending slot, so a burst of
// edits produces one trailing rebuild with the newest inputs. The
// synchronous paths take the same lock, so a manual ingest or a delete can
// never interleave with a background rebuild of the same note.
type ReindexScheduler interface {
	Schedule(noteID, ownerID uuid.UUID, supplemental string)
	// Reindex rebuilds one note now, serialized against background runs
	// for the same note, and returns the resulting chunk count.
	Reindex(ctx context.Context, noteID, ownerID uuid.UUID, supplemental string) (int, error)
	// DropIndex removes a note's chunks under the same per-note lock.
	DropIndex(ctx context.Context, noteID uuid.UUID) error
	// Close stops accepting work and blocks until in-flight runs finish.
	Close()
}

type reindexRequest struct {
	ownerID      uuid.UUID
	supplemental string
}

type reindexScheduler struct {
	log     *logger.Logger
	indexer Indexer
	timeout time.Duration

	mu      sync.Mutex
	closed  bool
	running map[uuid.UUID]bool
	pending map[uuid.UUID]reindexRequest
	locks   map[uuid.UUID]*noteLock
	wg      sync.WaitGroup
}

// noteLock is reference-counted so the map does not grow with every note
// ever touched.
type noteLock struct {
	mu   sync.Mutex
	refs int
}

func NewReindexScheduler(baseLog *logger.Logger, indexer Indexer) ReindexScheduler {
	return &reindexScheduler{
		log:     baseLog.With("service", "ReindexScheduler"),
		indexer: indexer,
		timeout: envutil.Dur("REINDEX_TIMEOUT", 2*time.Minute),
		running: map[uuid.UUID]bool{},
		pending: map[uuid.UUID]reindexRequest{},
		locks:   map[uuid.UUID]*noteLock{},
	}
}

func (s *reindexScheduler) acquire(noteID uuid.UUID) *noteLock {
	s.mu.Lock()
	l := s.locks[noteID]
	if l == nil {
		l = &noteLock{}
		s.locks[noteID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return l
}

func (s *reindexScheduler) release(noteID uuid.UUID, l *noteLock) {
	l.mu.Unlock()
	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, noteID)
	}
	s.mu.Unlock()
}

func (s *reindexScheduler) Reindex(ctx context.Context, noteID, ownerID uuid.UUID, supplemental string) (int, error) {
	l := s.acquire(noteID)
	defer s.release(noteID, l)
	return s.indexer.Reindex(ctx, noteID, ownerID, supplemental)
}

func (s *reindexScheduler) DropIndex(ctx context.Context, noteID uuid.UUID) error {
	l := s.acquire(noteID)
	defer s.release(noteID, l)
	return s.indexer.DropIndex(ctx, noteID)
}

func (s *reindexScheduler) Schedule(noteID, ownerID uuid.UUID, supplemental string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	req := reindexRequest{ownerID: ownerID, supplemental: supplemental}
	if s.running[noteID] {
		// Latest request wins; anything queued before it is superseded.
		s.pending[noteID] = req
		return
	}

	s.running[noteID] = true
	s.wg.Add(1)
	go s.run(noteID, req)
}

func (s *reindexScheduler) run(noteID uuid.UUID, req reindexRequest) {
	defer s.wg.Done()

	for {
		s.runOnce(noteID, req)

		s.mu.Lock()
		next, ok := s.pending[noteID]
		if !ok {
			delete(s.running, noteID)
			s.mu.Unlock()
			return
		}
		delete(s.pending, noteID)
		s.mu.Unlock()
		req = next
	}
}

// runOnce executes one reindex on a detached context so a finished HTTP
// request cannot cancel the rebuild it triggered.
func (s *reindexScheduler) runOnce(noteID uuid.UUID, req reindexRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	l := s.acquire(noteID)
	defer s.release(noteID, l)

	count, err := s.indexer.Reindex(ctx, noteID, req.ownerID, req.supplemental)
	if err != nil {
		s.log.Warn("Background reindex failed", "note_id", noteID, "error", err.Error())
		return
	}
	s.log.Debug("Background reindex finished", "note_id", noteID, "chunks", count)
}

func (s *reindexScheduler) Close() {
	s.mu.Lock()
	s.closed = true
	// Pending work is dropped; in-flight runs are allowed to finish.
	s.pending = map[uuid.UUID]reindexRequest{}
	s.mu.Unlock()
	s.wg.Wait()
}
