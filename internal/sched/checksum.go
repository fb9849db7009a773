package sched

import (
	"context"
	"log/slog"
)

// A checksummer folds every scheduling decision into a running hash. Two runs
// of the same program with the same seed must produce the same checksum;
// comparing checksums is how seedtest detects nondeterminism.
type checksummer struct {
	step int
	hash fnv64
}

func newChecksummer() *checksummer {
	return &checksummer{
		step: 0,
		hash: newFnv64(),
	}
}

type checksumKey byte

const (
	checksumKeyRunStarted checksumKey = iota
	checksumKeyRunFinished
	checksumKeyRunPick
	checksumKeyRunResult
	checksumKeyTaskCreate
	checksumKeyTimeNow
	checksumKeyFault
)

func (c *checksummer) recordIntInt(logger *slog.Logger, key checksumKey, a, b uint64) {
	c.hash.Hash([]byte{byte(key)})
	c.hash.HashInt(a)
	c.hash.HashInt(b)

	if logger != nil && logger.Enabled(context.TODO(), slog.LevelDebug) {
		logger.LogAttrs(context.TODO(), slog.LevelDebug, "checksum",
			slog.Int("step", c.step),
			slog.Int("key", int(key)),
			slog.Uint64("a", a),
			slog.Uint64("b", b),
			slog.Uint64("sum", c.hash.Sum()))
	}
	c.step++
}

func (c *checksummer) sum() uint64 {
	return c.hash.Sum()
}
