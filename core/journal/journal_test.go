package journal

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code.straitex.io/sequencer/core/types"
	"code.straitex.io/sequencer/logging"
)

func newTestJournal(t *testing.T, dir string) *Journal {
	t.Helper()
	j, err := New(logging.NewTestLogger(), Config{Path: dir, RetainCheckpoints: 2})
	require.NoError(t, err)
	return j
}

func testCheckpoint(cycle uint64) types.Checkpoint {
	return types.Checkpoint{
		Version:      types.CheckpointVersion,
		Cycle:        cycle,
		MakerFeeRate: 10_000,
		TakerFeeRate: 20_000,
		WithdrawalFees: []types.WithdrawalFee{
			{Asset: "USDC", Value: big.NewInt(5)},
		},
	}
}

func TestJournalEmpty(t *testing.T) {
	j := newTestJournal(t, t.TempDir())
	defer j.Close()

	_, ok, err := j.LastCheckpoint()
	require.NoError(t, err)
	assert.False(t, ok)

	offset, err := j.Offset()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), offset)
}

func TestJournalLastCheckpointWins(t *testing.T) {
	dir := t.TempDir()
	j := newTestJournal(t, dir)

	require.NoError(t, j.WriteCheckpoint(testCheckpoint(1)))
	require.NoError(t, j.WriteCheckpoint(testCheckpoint(2)))
	require.NoError(t, j.SetOffset(41))

	cp, ok, err := j.LastCheckpoint()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(2), cp.Cycle)
	assert.Equal(t, types.FeeRate(10_000), cp.MakerFeeRate)
	require.Len(t, cp.WithdrawalFees, 1)
	assert.Equal(t, "5", cp.WithdrawalFees[0].Value.String())

	// survives a close and reopen
	require.NoError(t, j.Close())
	j = newTestJournal(t, dir)
	defer j.Close()

	cp, ok, err = j.LastCheckpoint()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(2), cp.Cycle)

	offset, err := j.Offset()
	require.NoError(t, err)
	assert.Equal(t, int64(41), offset)
}

func TestJournalPrunesOldCheckpoints(t *testing.T) {
	j := newTestJournal(t, filepath.Join(t.TempDir(), "db"))
	defer j.Close()

	for cycle := uint64(1); cycle <= 5; cycle++ {
		require.NoError(t, j.WriteCheckpoint(testCheckpoint(cycle)))
	}

	// retention is 2, so cycles 1 through 3 are gone
	_, ok, err := j.Checkpoint(1)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = j.Checkpoint(3)
	require.NoError(t, err)
	assert.False(t, ok)

	cp, ok, err := j.Checkpoint(4)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(4), cp.Cycle)

	cp, ok, err = j.LastCheckpoint()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(5), cp.Cycle)
}
