package core

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// MoveStatus is the outcome of a single tracked move.
type MoveStatus string

const (
	MoveMoved   MoveStatus = "moved"
	MovePlanned MoveStatus = "planned"
	MoveSkipped MoveStatus = "skipped"
)

// MoveOutcome reports a tracked move. Paths are repository-relative.
type MoveOutcome struct {
	From   string
	To     string
	Status MoveStatus
	Reason string // why a move was skipped
	Files  int    // number of tracked files relocated
}

func skipped(from, to, reason string) MoveOutcome {
	return MoveOutcome{From: from, To: to, Status: MoveSkipped, Reason: reason}
}

func doneStatus(t Tree) MoveStatus {
	if t.Planned() {
		return MovePlanned
	}
	return MoveMoved
}

// MoveTracked relocates a tracked file or directory from one path to another.
// A missing or untracked source is skipped, not an error, and leaves the destination alone.
// An existing destination file or non-empty destination directory fails with ErrDestinationExists.
func MoveTracked(t Tree, from, to string, log *zap.Logger) (MoveOutcome, error) {
	if log == nil {
		log = zap.NewNop()
	}
	from, to = NormalizePath(from), NormalizePath(to)

	if from == to {
		return skipped(from, to, "same path"), nil
	}
	if !t.Exists(from) {
		log.Info("skip move", zap.String("from", from), zap.String("reason", "missing"))
		return skipped(from, to, "missing"), nil
	}
	files, err := t.TrackedFiles(from)
	if err != nil {
		return MoveOutcome{}, err
	}
	if len(files) == 0 {
		log.Info("skip move", zap.String("from", from), zap.String("reason", "untracked"))
		return skipped(from, to, "untracked"), nil
	}
	if strings.HasPrefix(to, from+"/") {
		return MoveOutcome{}, fmt.Errorf("cannot move %s into itself (%s)", from, to)
	}
	if t.Exists(to) && !t.EmptyDir(to) {
		return MoveOutcome{}, fmt.Errorf("move %s: %w: %s", from, ErrDestinationExists, to)
	}

	for _, f := range files {
		dst := to + strings.TrimPrefix(f, from)
		if err := t.MoveFile(f, dst); err != nil {
			return MoveOutcome{}, fmt.Errorf("move %s to %s: %w", f, dst, err)
		}
	}
	log.Debug("moved", zap.String("from", from), zap.String("to", to), zap.Int("files", len(files)))
	return MoveOutcome{From: from, To: to, Status: doneStatus(t), Files: len(files)}, nil
}

// MoveFiles moves every tracked file below fromDir into toDir one file at a time,
// so several legacy directories can merge into one destination. A collision on any
// single file fails with ErrDestinationExists.
func MoveFiles(t Tree, fromDir, toDir string, log *zap.Logger) (MoveOutcome, error) {
	if log == nil {
		log = zap.NewNop()
	}
	fromDir, toDir = NormalizePath(fromDir), NormalizePath(toDir)

	if fromDir == toDir {
		return skipped(fromDir, toDir, "same path"), nil
	}
	if !t.Exists(fromDir) {
		log.Info("skip move", zap.String("from", fromDir), zap.String("reason", "missing"))
		return skipped(fromDir, toDir, "missing"), nil
	}
	files, err := t.TrackedFiles(fromDir)
	if err != nil {
		return MoveOutcome{}, err
	}
	if len(files) == 0 {
		log.Info("skip move", zap.String("from", fromDir), zap.String("reason", "untracked"))
		return skipped(fromDir, toDir, "untracked"), nil
	}
	for _, f := range files {
		dst := toDir + strings.TrimPrefix(f, fromDir)
		if t.Exists(dst) {
			return MoveOutcome{}, fmt.Errorf("move %s: %w: %s", f, ErrDestinationExists, dst)
		}
		if err := t.MoveFile(f, dst); err != nil {
			return MoveOutcome{}, fmt.Errorf("move %s to %s: %w", f, dst, err)
		}
	}
	log.Debug("moved files", zap.String("from", fromDir), zap.String("to", toDir), zap.Int("files", len(files)))
	return MoveOutcome{From: fromDir, To: toDir, Status: doneStatus(t), Files: len(files)}, nil
}
