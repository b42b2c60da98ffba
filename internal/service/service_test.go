package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/utreexod/accumulatord/internal/accumulator"
)

type blockingRunner struct {
	release chan struct{}
	err     error
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{release: make(chan struct{})}
}

func (r *blockingRunner) RunBuild(ctx context.Context, _ string, _ uint64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.release:
		return r.err
	}
}

func (r *blockingRunner) RunUpdate(ctx context.Context, _ int64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.release:
		return r.err
	}
}

func newTestService(runner Runner) *Service {
	f := accumulator.NewForest(accumulator.NewRAMForestData())
	pol, err := accumulator.PollardFromForest(f, nil)
	if err != nil {
		panic(err)
	}
	return New(runner, f, pol)
}

func TestBuildFromIdleTransitionsToBuilding(t *testing.T) {
	r := newBlockingRunner()
	s := newTestService(r)

	require.NoError(t, s.Build("x.parquet", 0))
	require.Equal(t, Building, s.Status().Name)

	close(r.release)
}

func TestSecondBuildWhileBuildingIsRejected(t *testing.T) {
	r := newBlockingRunner()
	s := newTestService(r)

	require.NoError(t, s.Build("x.parquet", 0))
	err := s.Build("y.parquet", 0)
	require.ErrorIs(t, err, ErrInvalidState)

	close(r.release)
}

func TestJobCompletionReturnsToIdle(t *testing.T) {
	r := newBlockingRunner()
	s := newTestService(r)

	require.NoError(t, s.Build("x.parquet", 0))
	close(r.release)

	require.Eventually(t, func() bool {
		return s.Status().Name == Idle
	}, time.Second, 5*time.Millisecond)
}

func TestJobFailureEntersErrorState(t *testing.T) {
	r := newBlockingRunner()
	r.err = errors.New("boom")
	s := newTestService(r)

	require.NoError(t, s.Build("x.parquet", 0))
	close(r.release)

	require.Eventually(t, func() bool {
		return s.Status().Name == ErrorState
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, "boom", s.Status().Message)
}

func TestPauseThenResume(t *testing.T) {
	r := newBlockingRunner()
	s := newTestService(r)

	require.NoError(t, s.Build("x.parquet", 0))
	require.NoError(t, s.Pause())
	require.Equal(t, Paused, s.Status().Name)

	r2 := newBlockingRunner()
	s.runner = r2
	require.NoError(t, s.Resume())
	require.Equal(t, Building, s.Status().Name)
	close(r2.release)
}

func TestStopFromBuildingReturnsToIdle(t *testing.T) {
	r := newBlockingRunner()
	s := newTestService(r)

	require.NoError(t, s.Build("x.parquet", 0))
	require.NoError(t, s.Stop())
	require.Equal(t, Idle, s.Status().Name)
}

func TestStopFromPausedReturnsToIdle(t *testing.T) {
	r := newBlockingRunner()
	s := newTestService(r)

	require.NoError(t, s.Build("x.parquet", 0))
	require.NoError(t, s.Pause())
	require.NoError(t, s.Stop())
	require.Equal(t, Idle, s.Status().Name)
}

func TestPauseFromIdleIsRejected(t *testing.T) {
	s := newTestService(newBlockingRunner())
	require.ErrorIs(t, s.Pause(), ErrInvalidState)
}

func TestResumeFromIdleIsRejected(t *testing.T) {
	s := newTestService(newBlockingRunner())
	require.ErrorIs(t, s.Resume(), ErrInvalidState)
}

func TestDumpRestoreRoundTripThroughService(t *testing.T) {
	dir := t.TempDir()
	data := accumulator.NewRAMForestData()
	f := accumulator.NewForest(data)
	require.NoError(t, f.Add([]accumulator.Hash{accumulator.NewHash([32]byte{1})}))
	pol, err := accumulator.PollardFromForest(f, nil)
	require.NoError(t, err)
	s := New(newBlockingRunner(), f, pol)

	require.NoError(t, s.Dump(dir))
	require.NoError(t, s.Restore(dir, data))
	require.Equal(t, Idle, s.Status().Name)
}

func TestRestoreWhileBuildingIsRejected(t *testing.T) {
	r := newBlockingRunner()
	s := newTestService(r)
	require.NoError(t, s.Build("x.parquet", 0))

	err := s.Restore(t.TempDir(), accumulator.NewRAMForestData())
	require.ErrorIs(t, err, ErrInvalidState)

	close(r.release)
}
