package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-notes/inkwell-backend/internal/domain"
)

// blockingIndexer lets a test hold the first run open while more requests
// queue behind it.
type blockingIndexer struct {
	mu      sync.Mutex
	calls   []string
	release chan struct{}
	started chan struct{}
	first   atomic.Bool
}

func newBlockingIndexer() *blockingIndexer {
	return &blockingIndexer{
		release: make(chan struct{}),
		started: make(chan struct{}),
	}
}

func (b *blockingIndexer) Reindex(ctx context.Context, noteID, ownerID uuid.UUID, supplemental string) (int, error) {
	if b.first.CompareAndSwap(false, true) {
		close(b.started)
		<-b.release
	}
	b.mu.Lock()
	b.calls = append(b.calls, supplemental)
	b.mu.Unlock()
	return 1, nil
}

func (b *blockingIndexer) UploadPDF(ctx context.Context, ownerID uuid.UUID, filename, title string, data []byte) (*domain.Note, int, error) {
	return nil, 0, nil
}

func (b *blockingIndexer) DropIndex(ctx context.Context, noteID uuid.UUID) error {
	return nil
}

func (b *blockingIndexer) snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.calls))
	copy(out, b.calls)
	return out
}

func TestScheduleCollapsesBurstToLatest(t *testing.T) {
	idx := newBlockingIndexer()
	sched := NewReindexScheduler(testLogger(t), idx)

	noteID := uuid.New()
	owner := uuid.New()

	sched.Schedule(noteID, owner, "v1")
	<-idx.started
	// The first run is blocked; these all land while it is in flight.
	sched.Schedule(noteID, owner, "v2")
	sched.Schedule(noteID, owner, "v3")
	sched.Schedule(noteID, owner, "v4")
	close(idx.release)

	sched.Close()

	calls := idx.snapshot()
	if len(calls) != 2 {
		t.Fatalf("expected 2 runs (first + trailing), got %d: %v", len(calls), calls)
	}
	if calls[0] != "v1" || calls[1] != "v4" {
		t.Fatalf("expected [v1 v4], got %v", calls)
	}
}

func TestScheduleIndependentNotesRunConcurrently(t *testing.T) {
	idx := newBlockingIndexer()
	sched := NewReindexScheduler(testLogger(t), idx)

	owner := uuid.New()
	sched.Schedule(uuid.New(), owner, "a")
	<-idx.started

	// A different note must not queue behind the blocked one.
	sched.Schedule(uuid.New(), owner, "b")

	deadline := time.After(2 * time.Second)
	for {
		found := false
		for _, c := range idx.snapshot() {
			if c == "b" {
				found = true
			}
		}
		if found {
			break
		}
		select {
		case <-deadline:
			t.Fatal("second note never ran while first was blocked")
		case <-time.After(10 * time.Millisecond):
		}
	}

	close(idx.release)
	sched.Close()
}

func TestSynchronousReindexWaitsForBackgroundRun(t *testing.T) {
	idx := newBlockingIndexer()
	sched := NewReindexScheduler(testLogger(t), idx)

	noteID := uuid.New()
	owner := uuid.New()
	sched.Schedule(noteID, owner, "background")
	<-idx.started

	// A manual ingest for the same note must queue behind the blocked
	// background run, not interleave with it.
	done := make(chan struct{})
	go func() {
		if _, err := sched.Reindex(context.Background(), noteID, owner, "manual"); err != nil {
			t.Errorf("Reindex: %v", err)
		}
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("synchronous reindex ran while a background run held the note")
	case <-time.After(50 * time.Millisecond):
	}

	close(idx.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("synchronous reindex never ran after the background run finished")
	}
	sched.Close()

	calls := idx.snapshot()
	if calls[0] != "background" {
		t.Fatalf("background run did not finish first: %v", calls)
	}
	found := false
	for _, c := range calls {
		if c == "manual" {
			found = true
		}
	}
	if !found {
		t.Fatalf("manual run missing: %v", calls)
	}
}

func TestSynchronousReindexForOtherNoteDoesNotBlock(t *testing.T) {
	idx := newBlockingIndexer()
	sched := NewReindexScheduler(testLogger(t), idx)

	sched.Schedule(uuid.New(), uuid.New(), "blocked")
	<-idx.started

	done := make(chan struct{})
	go func() {
		if _, err := sched.Reindex(context.Background(), uuid.New(), uuid.New(), "other"); err != nil {
			t.Errorf("Reindex: %v", err)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("independent note blocked behind an unrelated run")
	}

	close(idx.release)
	sched.Close()
}

func TestScheduleAfterCloseIsNoop(t *testing.T) {
	idx := newBlockingIndexer()
	close(idx.release)
	sched := NewReindexScheduler(testLogger(t), idx)
	sched.Close()

	sched.Schedule(uuid.New(), uuid.New(), "late")
	time.Sleep(20 * time.Millisecond)
	if n := len(idx.snapshot()); n != 0 {
		t.Fatalf("expected no runs after Close, got %d", n)
	}
}

func TestCloseWaitsForInFlightRun(t *testing.T) {
	idx := newBlockingIndexer()
	sched := NewReindexScheduler(testLogger(t), idx)

	sched.Schedule(uuid.New(), uuid.New(), "slow")
	<-idx.started

	done := make(chan struct{})
	go func() {
		sched.Close()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Close returned while a run was still blocked")
	case <-time.After(50 * time.Millisecond):
	}

	close(idx.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after runs finished")
	}
}
