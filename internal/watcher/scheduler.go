package watcher

import (
	"sync"
	"time"
)

// ProjectScheduler is the per-project debounced reindex scheduler: a
// fixed-interval ticker scans a pending map of
// project -> last-event-time, and queues a project for reindex once it
// has been quiescent for at least Debounce. An optional rescan ticker
// additionally queues every known project on a coarser interval,
// independent of file events.
//
// Directory sharing: when two projects are registered
// against the same directory, a single Notify call for that directory
// bumps both projects' pending entries, and both are queued
// independently once debounced; the caller installs one filesystem
// watcher per directory and fans events out via NotifyDirectory.
type ProjectScheduler struct {
	mu           sync.Mutex
	pending      map[string]time.Time
	dirProjects  map[string][]string
	projectDir   map[string]string
	debounce     time.Duration
	tickInterval time.Duration
	rescan       time.Duration

	queue    chan string
	stopCh   chan struct{}
	stopOnce sync.Once

	now func() time.Time
}

// SchedulerOption configures a ProjectScheduler.
type SchedulerOption func(*ProjectScheduler)

// WithTickInterval overrides the default 5-second scan tick.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *ProjectScheduler) { s.tickInterval = d }
}

// WithRescanInterval enables a periodic full-rescan: every project ever
// registered is queued on this interval, independent of file events. A
// zero duration (the default) disables periodic rescans.
func WithRescanInterval(d time.Duration) SchedulerOption {
	return func(s *ProjectScheduler) { s.rescan = d }
}

// withClock overrides the scheduler's notion of "now", for deterministic
// tests of the debounce window.
func withClock(now func() time.Time) SchedulerOption {
	return func(s *ProjectScheduler) { s.now = now }
}

// NewProjectScheduler creates a scheduler whose pending projects are
// queued once quiescent for debounce. Call Run in a goroutine to start
// the ticker, and read queued project names off Queue().
func NewProjectScheduler(debounce time.Duration, opts ...SchedulerOption) *ProjectScheduler {
	s := &ProjectScheduler{
		pending:      make(map[string]time.Time),
		dirProjects:  make(map[string][]string),
		projectDir:   make(map[string]string),
		debounce:     debounce,
		tickInterval: 5 * time.Second,
		queue:        make(chan string, 64),
		stopCh:       make(chan struct{}),
		now:          time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RegisterDirectory records that project watches directory, enabling
// NotifyDirectory fan-out and periodic-rescan membership. Multiple projects
// may share one directory; the caller is responsible for installing only
// one filesystem watcher per distinct directory.
func (s *ProjectScheduler) RegisterDirectory(project, directory string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.projectDir[project] = directory
	for _, p := range s.dirProjects[directory] {
		if p == project {
			return
		}
	}
	s.dirProjects[directory] = append(s.dirProjects[directory], project)
}

// Notify records a file-change event for project, resetting its
// debounce window.
func (s *ProjectScheduler) Notify(project string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[project] = s.now()
}

// NotifyDirectory fans a single filesystem event for directory out to
// every project registered against it (directory sharing:
// "a single filesystem event ... two queued reindexes, one per
// project").
func (s *ProjectScheduler) NotifyDirectory(directory string) {
	s.mu.Lock()
	projects := append([]string(nil), s.dirProjects[directory]...)
	now := s.now()
	for _, p := range projects {
		s.pending[p] = now
	}
	s.mu.Unlock()
}

// Queue returns the channel of project names ready to be reindexed.
func (s *ProjectScheduler) Queue() <-chan string {
	return s.queue
}

// Run drives the scheduler's ticker until Stop is called. Intended to
// run in its own goroutine.
func (s *ProjectScheduler) Run() {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	var rescanTicker *time.Ticker
	var rescanCh <-chan time.Time
	if s.rescan > 0 {
		rescanTicker = time.NewTicker(s.rescan)
		rescanCh = rescanTicker.C
		defer rescanTicker.Stop()
	}

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.flushDue()
		case <-rescanCh:
			s.queueAll()
		}
	}
}

func (s *ProjectScheduler) flushDue() {
	s.mu.Lock()
	now := s.now()
	var due []string
	for project, last := range s.pending {
		if now.Sub(last) >= s.debounce {
			due = append(due, project)
			delete(s.pending, project)
		}
	}
	s.mu.Unlock()

	for _, project := range due {
		s.enqueue(project)
	}
}

func (s *ProjectScheduler) queueAll() {
	s.mu.Lock()
	projects := make([]string, 0, len(s.projectDir))
	for p := range s.projectDir {
		projects = append(projects, p)
	}
	s.mu.Unlock()

	for _, project := range projects {
		s.enqueue(project)
	}
}

func (s *ProjectScheduler) enqueue(project string) {
	select {
	case s.queue <- project:
	default:
		// Queue is full; the project goes back into pending as already
		// due, so the next tick retries it. A blocked consumer should not
		// wedge the ticker goroutine.
		s.mu.Lock()
		if _, ok := s.pending[project]; !ok {
			s.pending[project] = time.Time{}
		}
		s.mu.Unlock()
	}
}

// Stop halts the ticker goroutine and closes Queue(). Safe to call more
// than once.
func (s *ProjectScheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		close(s.queue)
	})
}
