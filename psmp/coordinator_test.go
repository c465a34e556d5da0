package psmp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcls-psana/psana/errors"
)

func TestSpawnRejectsBadWorkerCounts(t *testing.T) {
	_, err := Spawn(0, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	_, err = Spawn(-1, nil)
	require.Error(t, err)

	_, err = Spawn(MaxWorkers+1, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTooManyWorkers)
}

func TestWorkerInfo(t *testing.T) {
	t.Setenv(EnvWorkerID, "7")
	id, ok := WorkerInfo()
	require.True(t, ok)
	assert.Equal(t, 7, id)

	t.Setenv(EnvWorkerID, "bogus")
	_, ok = WorkerInfo()
	assert.False(t, ok)

	t.Setenv(EnvWorkerID, "-2")
	_, ok = WorkerInfo()
	assert.False(t, ok)
}

func TestWorkerInfoUnsetInMaster(t *testing.T) {
	// t.Setenv registers cleanup; use it to guarantee restoration
	t.Setenv(EnvWorkerID, "")
	// empty value parses as an error, so this process is not a worker
	_, ok := WorkerInfo()
	assert.False(t, ok)
}

func TestCoordinatorCloseIsIdempotent(t *testing.T) {
	c := &Coordinator{}
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}
