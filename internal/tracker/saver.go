package tracker

import (
	"context"
	"sync"
	"time"

	"fiftythirty/internal/log"
	"fiftythirty/internal/state"
)

// saver persists snapshots on its own goroutine. Only the latest scheduled
// snapshot is written; intermediate ones are dropped. Failures are logged.
type saver struct {
	store   state.Store
	timeout time.Duration
	logger  *log.Logger

	mu         sync.Mutex
	pending    *state.Snapshot
	pendingRev uint64
	saved      uint64        // latest revision whose save was attempted
	savedCh    chan struct{} // closed and replaced when saved advances

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

func newSaver(store state.Store, timeout time.Duration, logger *log.Logger) *saver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	s := &saver{
		store:   store,
		timeout: timeout,
		logger:  logger,
		savedCh: make(chan struct{}),
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// schedule queues snap, taken at revision rev, for saving. The caller must
// not modify snap later.
func (s *saver) schedule(rev uint64, snap state.Snapshot) {
	s.mu.Lock()
	s.pending = &snap
	s.pendingRev = rev
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *saver) run() {
	defer close(s.done)
	for {
		select {
		case <-s.wake:
			s.flush()
		case <-s.quit:
			s.flush()
			return
		}
	}
}

func (s *saver) flush() {
	s.mu.Lock()
	snap, rev := s.pending, s.pendingRev
	s.pending = nil
	s.mu.Unlock()
	if snap == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	state.SaveBestEffort(ctx, s.store, *snap, s.logger)

	s.mu.Lock()
	if rev > s.saved {
		s.saved = rev
		close(s.savedCh)
		s.savedCh = make(chan struct{})
	}
	s.mu.Unlock()
}

// wait blocks until the save of revision rev, or of a later one, has been
// attempted. It returns early when the saver stops or ctx is done.
func (s *saver) wait(ctx context.Context, rev uint64) error {
	for {
		s.mu.Lock()
		if s.saved >= rev {
			s.mu.Unlock()
			return nil
		}
		ch := s.savedCh
		s.mu.Unlock()

		select {
		case <-ch:
		case <-s.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// close writes any pending snapshot and stops the goroutine, waiting at
// most until ctx is done.
func (s *saver) close(ctx context.Context) error {
	s.once.Do(func() { close(s.quit) })
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
