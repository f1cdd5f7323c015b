// Package journal persists sequencer checkpoints and consumer progress in a
// local pebble database. Writes are synced, so a checkpoint that was
// acknowledged survives a crash.
package journal

import (
	"encoding/binary"
	"encoding/json"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"code.straitex.io/sequencer/core/types"
	"code.straitex.io/sequencer/logging"
)

var (
	ErrUnknownVersion = errors.New("journal: unknown checkpoint version")
	ErrCycleMismatch  = errors.New("journal: checkpoint cycle does not match its key")

	checkpointPrefix = []byte("checkpoint/")
	offsetKey        = []byte("progress/offset")
)

type Journal struct {
	log *logging.Logger
	db  *pebble.DB
	cfg Config
}

func New(log *logging.Logger, cfg Config) (*Journal, error) {
	db, err := pebble.Open(cfg.Path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "unable to open checkpoint database")
	}
	return &Journal{
		log: log.Named("journal"),
		db:  db,
		cfg: cfg,
	}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func checkpointKey(cycle uint64) []byte {
	key := make([]byte, len(checkpointPrefix)+8)
	copy(key, checkpointPrefix)
	binary.BigEndian.PutUint64(key[len(checkpointPrefix):], cycle)
	return key
}

// WriteCheckpoint stores the checkpoint under its cycle number and prunes
// checkpoints beyond the retention count.
func (j *Journal) WriteCheckpoint(cp types.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return errors.Wrap(err, "unable to encode checkpoint")
	}
	if err := j.db.Set(checkpointKey(cp.Cycle), data, pebble.Sync); err != nil {
		return errors.Wrapf(err, "unable to write checkpoint for cycle %d", cp.Cycle)
	}
	j.log.Info("checkpoint written",
		zap.Uint64("cycle", cp.Cycle),
		zap.Int("bytes", len(data)))

	if j.cfg.RetainCheckpoints > 0 && cp.Cycle >= uint64(j.cfg.RetainCheckpoints) {
		horizon := cp.Cycle - uint64(j.cfg.RetainCheckpoints) + 1
		if err := j.db.DeleteRange(checkpointKey(0), checkpointKey(horizon), pebble.Sync); err != nil {
			return errors.Wrap(err, "unable to prune checkpoints")
		}
	}
	return nil
}

// LastCheckpoint returns the checkpoint with the highest cycle number, or
// false when none has been written yet.
func (j *Journal) LastCheckpoint() (types.Checkpoint, bool, error) {
	upper := make([]byte, len(checkpointPrefix))
	copy(upper, checkpointPrefix)
	upper[len(upper)-1]++ // "checkpoint0" bounds the prefix

	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: checkpointPrefix,
		UpperBound: upper,
	})
	if err != nil {
		return types.Checkpoint{}, false, errors.Wrap(err, "unable to iterate checkpoints")
	}
	defer iter.Close()

	if !iter.Last() {
		return types.Checkpoint{}, false, iter.Error()
	}
	var cp types.Checkpoint
	if err := json.Unmarshal(iter.Value(), &cp); err != nil {
		return types.Checkpoint{}, false, errors.Wrap(err, "unable to decode checkpoint")
	}
	if cp.Version != types.CheckpointVersion {
		return types.Checkpoint{}, false, errors.Wrapf(ErrUnknownVersion, "got version %d", cp.Version)
	}
	// the key encodes the cycle too; a disagreement means corruption and
	// restoring from it is never safe
	keyCycle := binary.BigEndian.Uint64(iter.Key()[len(checkpointPrefix):])
	if cp.Cycle != keyCycle {
		return types.Checkpoint{}, false, errors.Wrapf(ErrCycleMismatch, "key %d, document %d", keyCycle, cp.Cycle)
	}
	return cp, true, nil
}

// Checkpoint returns the checkpoint for a specific cycle.
func (j *Journal) Checkpoint(cycle uint64) (types.Checkpoint, bool, error) {
	data, closer, err := j.db.Get(checkpointKey(cycle))
	if err == pebble.ErrNotFound {
		return types.Checkpoint{}, false, nil
	}
	if err != nil {
		return types.Checkpoint{}, false, errors.Wrapf(err, "unable to read checkpoint for cycle %d", cycle)
	}
	defer closer.Close()

	var cp types.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return types.Checkpoint{}, false, errors.Wrap(err, "unable to decode checkpoint")
	}
	return cp, true, nil
}

// SetOffset records the input stream position covered by the latest
// checkpoint, so a restart resumes from the right place.
func (j *Journal) SetOffset(offset int64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(offset))
	return errors.Wrap(j.db.Set(offsetKey, buf, pebble.Sync), "unable to write offset")
}

// Offset returns the recorded input stream position, or -1 when none was
// recorded.
func (j *Journal) Offset() (int64, error) {
	data, closer, err := j.db.Get(offsetKey)
	if err == pebble.ErrNotFound {
		return -1, nil
	}
	if err != nil {
		return -1, errors.Wrap(err, "unable to read offset")
	}
	defer closer.Close()
	return int64(binary.BigEndian.Uint64(data)), nil
}
