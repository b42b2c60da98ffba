// Package service implements the accumulator daemon's single-writer
// command dispatcher: the only goroutine that ever mutates the forest or
// pollard is the one running the currently active job, and every command
// either starts, pauses, resumes, or stops that job under a transition
// table that rejects anything else with ErrInvalidState.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btclog"

	"github.com/utreexod/accumulatord/internal/accumulator"
	"github.com/utreexod/accumulatord/internal/logging"
	"github.com/utreexod/accumulatord/internal/snapshot"
)

// StateName is one of the five states in the service's transition table.
type StateName int

const (
	Idle StateName = iota
	Building
	Updating
	Paused
	ErrorState
)

func (n StateName) String() string {
	switch n {
	case Idle:
		return "Idle"
	case Building:
		return "Building"
	case Updating:
		return "Updating"
	case Paused:
		return "Paused"
	case ErrorState:
		return "Error"
	default:
		return "Unknown"
	}
}

// State is the service's current status, as returned by Status().
type State struct {
	Name    StateName
	Height  int64  // meaningful when Name == Updating
	Message string // meaningful when Name == ErrorState
}

// jobKind distinguishes the two job shapes a savedJob can hold across a
// Pause/Resume cycle.
type jobKind int

const (
	jobNone jobKind = iota
	jobBuild
	jobUpdate
)

type jobSpec struct {
	kind        jobKind
	parquetPath string
	resumeFrom  uint64
	height      int64
}

// Runner performs the actual long-running work a Build or Update command
// kicks off. Production wiring is internal/extractor + internal/updater
// driving the same *accumulator.Forest the Service owns; tests supply a
// fake.
type Runner interface {
	RunBuild(ctx context.Context, parquetPath string, resumeFrom uint64) error
	RunUpdate(ctx context.Context, height int64) error
}

// Service is the command-dispatched controller described in the service
// state machine. It owns the forest and pollard exclusively: no other
// goroutine may touch them directly once wired into a Service.
type Service struct {
	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	jobDone chan struct{}
	saved   *jobSpec

	fsMu sync.Mutex

	// accMu guards in-memory access to forest/pollard against the
	// Building/Updating | Dump transition, which the state table lets run
	// concurrently with a job ("job continues"). The job runner holds the
	// write side for each individual mutation; Dump holds the read side
	// around its checkpoint read.
	accMu sync.RWMutex

	forest  *accumulator.Forest
	pollard *accumulator.Pollard

	runner Runner
	log    btclog.Logger
}

// New returns an idle Service wired to forest/pollard and driven by runner.
func New(runner Runner, forest *accumulator.Forest, pollard *accumulator.Pollard) *Service {
	return &Service{
		runner:  runner,
		forest:  forest,
		pollard: pollard,
		log:     logging.Disabled(),
	}
}

// SetLogger overrides the service's logger (New defaults to a disabled one
// so tests stay quiet).
func (s *Service) SetLogger(l btclog.Logger) { s.log = l }

// AccessLock returns the lock guarding the service's forest/pollard against
// concurrent in-memory access. A production Runner (DefaultRunner) takes
// the write side around each mutation it makes; Dump takes the read side
// around its checkpoint read, so a Dump issued while a job continues never
// races the job's writes.
func (s *Service) AccessLock() *sync.RWMutex { return &s.accMu }

// Status returns the service's current state without blocking on any
// running job.
func (s *Service) Status() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Build starts a bulk-build job from Idle.
func (s *Service) Build(parquetPath string, resumeFrom uint64) error {
	return s.start(jobSpec{kind: jobBuild, parquetPath: parquetPath, resumeFrom: resumeFrom})
}

// Update starts an incremental update job targeting height from Idle.
func (s *Service) Update(height int64) error {
	return s.start(jobSpec{kind: jobUpdate, height: height})
}

// start is shared by Build/Update: it only succeeds from Idle, and flips
// the state to Building/Updating before returning so a racing second
// submission observes the new state instead of slipping in before the
// worker goroutine is actually scheduled.
func (s *Service) start(spec jobSpec) error {
	s.mu.Lock()
	if s.state.Name != Idle {
		s.mu.Unlock()
		return fmt.Errorf("build/update from %s: %w", s.state.Name, ErrInvalidState)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.jobDone = done
	saved := spec
	s.saved = &saved
	if spec.kind == jobBuild {
		s.state = State{Name: Building}
	} else {
		s.state = State{Name: Updating, Height: spec.height}
	}
	s.mu.Unlock()

	go s.run(ctx, done, spec)
	return nil
}

// run executes spec's job and, unless a concurrent Pause/Stop has already
// superseded this job (recognized by s.jobDone no longer being done),
// records its outcome: Idle on success or cooperative cancellation,
// ErrorState{message} on any other failure.
func (s *Service) run(ctx context.Context, done chan struct{}, spec jobSpec) {
	var err error
	if spec.kind == jobBuild {
		err = s.runner.RunBuild(ctx, spec.parquetPath, spec.resumeFrom)
	} else {
		err = s.runner.RunUpdate(ctx, spec.height)
	}

	// Refresh the pollard from the just-advanced forest before recording
	// success, so a dumped pollard.bin always matches the forest it came
	// from. A root-only pollard (nil deletes) is the default kept here;
	// a consumer that needs a stripped pollard against a specific
	// delete-set derives its own from a dumped forest.
	var pollard *accumulator.Pollard
	if err == nil {
		s.accMu.Lock()
		pollard, err = accumulator.PollardFromForest(s.forest, nil)
		s.accMu.Unlock()
		if err != nil {
			err = fmt.Errorf("derive pollard: %w", err)
		}
	}

	s.mu.Lock()
	if s.jobDone == done {
		if pollard != nil {
			s.pollard = pollard
		}
		switch {
		case err == nil, errors.Is(err, context.Canceled):
			s.state = State{Name: Idle}
		default:
			s.state = State{Name: ErrorState, Message: err.Error()}
			s.log.Errorf("job failed: %v", err)
		}
		s.saved = nil
		s.jobDone = nil
	}
	s.mu.Unlock()
	close(done)
}

// Pause cancels the running job and waits for it to join, landing in
// Paused with the job's kind and parameters retained for Resume.
func (s *Service) Pause() error {
	s.mu.Lock()
	if s.state.Name != Building && s.state.Name != Updating {
		s.mu.Unlock()
		return fmt.Errorf("pause from %s: %w", s.state.Name, ErrInvalidState)
	}
	cancel := s.cancel
	done := s.jobDone
	s.jobDone = nil // supersede: run()'s completion handler becomes a no-op
	s.mu.Unlock()

	cancel()
	<-done

	s.mu.Lock()
	s.state = State{Name: Paused}
	s.mu.Unlock()
	return nil
}

// Resume re-enqueues the job kind Pause saved, landing back in
// Building/Updating exactly like a fresh Build/Update from Idle would.
func (s *Service) Resume() error {
	s.mu.Lock()
	if s.state.Name != Paused {
		s.mu.Unlock()
		return fmt.Errorf("resume from %s: %w", s.state.Name, ErrInvalidState)
	}
	spec := s.saved
	if spec == nil {
		s.mu.Unlock()
		return fmt.Errorf("resume with no saved job: %w", ErrInvalidState)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.jobDone = done
	if spec.kind == jobBuild {
		s.state = State{Name: Building}
	} else {
		s.state = State{Name: Updating, Height: spec.height}
	}
	resumed := *spec
	s.mu.Unlock()

	go s.run(ctx, done, resumed)
	return nil
}

// Stop cancels and discards any running or paused job, landing in Idle.
func (s *Service) Stop() error {
	s.mu.Lock()
	switch s.state.Name {
	case Building, Updating:
		cancel := s.cancel
		done := s.jobDone
		s.jobDone = nil
		s.saved = nil
		s.mu.Unlock()

		cancel()
		<-done

		s.mu.Lock()
		s.state = State{Name: Idle}
		s.mu.Unlock()
		return nil
	case Paused:
		s.saved = nil
		s.state = State{Name: Idle}
		s.mu.Unlock()
		return nil
	default:
		s.mu.Unlock()
		return fmt.Errorf("stop from %s: %w", s.state.Name, ErrInvalidState)
	}
}

// Dump writes a snapshot under the process-wide filesystem mutex. It may
// run while a job is in progress (Building/Updating/Paused); only Restore
// and a second Dump exclude each other via fsMu.
func (s *Service) Dump(dir string) error {
	s.mu.Lock()
	name := s.state.Name
	s.mu.Unlock()
	if name == ErrorState {
		return fmt.Errorf("dump from %s: %w", name, ErrInvalidState)
	}

	s.fsMu.Lock()
	defer s.fsMu.Unlock()
	s.accMu.RLock()
	defer s.accMu.RUnlock()
	// TODO(accumulatord): block_hashes.bin needs a real chain-tip index;
	// Dump currently checkpoints an empty one.
	return snapshot.Dump(dir, s.forest, s.pollard, nil)
}

// Restore reads a snapshot under the process-wide filesystem mutex,
// replacing the service's forest/pollard. Only valid from Idle or
// ErrorState, since a running job would race the restored accumulators.
func (s *Service) Restore(dir string, data accumulator.ForestData) error {
	s.mu.Lock()
	name := s.state.Name
	s.mu.Unlock()
	if name != Idle && name != ErrorState {
		return fmt.Errorf("restore from %s: %w", name, ErrInvalidState)
	}

	s.fsMu.Lock()
	forest, pollard, _, err := snapshot.Restore(dir, data)
	s.fsMu.Unlock()
	if err != nil {
		s.mu.Lock()
		s.state = State{Name: ErrorState, Message: err.Error()}
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.forest = forest
	s.pollard = pollard
	s.state = State{Name: Idle}
	s.mu.Unlock()
	return nil
}
