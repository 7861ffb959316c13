package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

func TestSession_Lifecycle(t *testing.T) {
	s := NewSession()
	assert.Equal(t, SessionIdle, s.State())
	assert.Nil(t, s.Current())

	run, err := s.begin("enter reddit.com")
	require.NoError(t, err)
	assert.Equal(t, SessionPlanning, s.State())
	assert.Same(t, run, s.Current())

	s.markRunning()
	assert.Equal(t, SessionRunning, s.State())

	s.finish(run)
	assert.Equal(t, SessionFinished, s.State())
	assert.True(t, run.Finished())
}

func TestSession_RejectsConcurrentRuns(t *testing.T) {
	s := NewSession()

	run, err := s.begin("first")
	require.NoError(t, err)

	_, err = s.begin("second")
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrRunActive)

	s.markRunning()
	_, err = s.begin("second")
	assert.ErrorIs(t, err, schemas.ErrRunActive)

	// A finished session accepts a new run and retires the old one.
	s.finish(run)
	next, err := s.begin("second")
	require.NoError(t, err)
	assert.NotEqual(t, run.ID(), next.ID())

	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, "first", history[0].Title)
	assert.Equal(t, "second", history[1].Title)
}

func TestSession_FinishIsIdempotent(t *testing.T) {
	s := NewSession()
	run, err := s.begin("task")
	require.NoError(t, err)

	s.finish(run)
	first := run.FinishedAt()
	require.NotNil(t, first)

	s.finish(run)
	assert.Equal(t, *first, *run.FinishedAt())
}
