package tiller

import (
	"context"
	"log/slog"
	"sync"
)

type journalOpKind int

const (
	journalWrite journalOpKind = iota
	journalDelete
	journalRename
)

// journalOp records the inverse of one mutation. Ops are appended in
// forward order and replayed in reverse to roll back.
type journalOp struct {
	kind       journalOpKind
	path       string
	from, to   string
	before     []byte // prior bytes at path (write/delete)
	hadBefore  bool
	beforeFrom []byte // prior bytes at both rename endpoints
	hadFrom    bool
	beforeTo   []byte
	hadTo      bool
}

// JournalWorkspace wraps a base workspace and captures, before each
// mutation, what is needed to undo it. Commit discards the journal;
// Rollback best-effort restores the pre-attempt state. Reads pass through.
//
// One journal covers one attempt; the supervisor creates a fresh journal
// per failover attempt in live mode.
type JournalWorkspace struct {
	base   Workspace
	mu     sync.Mutex
	ops    []journalOp
	logger *slog.Logger
}

// NewJournalWorkspace wraps base. A nil logger falls back to a no-op.
func NewJournalWorkspace(base Workspace, logger *slog.Logger) *JournalWorkspace {
	if logger == nil {
		logger = nopLogger
	}
	return &JournalWorkspace{base: base, logger: logger}
}

// ReadFile passes through to the base.
func (j *JournalWorkspace) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return j.base.ReadFile(ctx, path)
}

// WriteFile records the prior bytes (or absence) at path, then writes.
func (j *JournalWorkspace) WriteFile(ctx context.Context, path string, data []byte) error {
	before, had, err := readIfExists(ctx, j.base, path)
	if err != nil {
		return err
	}
	if err := j.base.WriteFile(ctx, path, data); err != nil {
		return err
	}
	j.append(journalOp{kind: journalWrite, path: path, before: before, hadBefore: had})
	return nil
}

// DeletePath records the prior bytes at path, then deletes.
func (j *JournalWorkspace) DeletePath(ctx context.Context, path string) error {
	before, had, err := readIfExists(ctx, j.base, path)
	if err != nil {
		return err
	}
	if err := j.base.DeletePath(ctx, path); err != nil {
		return err
	}
	j.append(journalOp{kind: journalDelete, path: path, before: before, hadBefore: had})
	return nil
}

// RenamePath records the prior bytes at both endpoints, then renames.
func (j *JournalWorkspace) RenamePath(ctx context.Context, from, to string) error {
	beforeFrom, hadFrom, err := readIfExists(ctx, j.base, from)
	if err != nil {
		return err
	}
	beforeTo, hadTo, err := readIfExists(ctx, j.base, to)
	if err != nil {
		return err
	}
	if err := j.base.RenamePath(ctx, from, to); err != nil {
		return err
	}
	j.append(journalOp{
		kind: journalRename, from: from, to: to,
		beforeFrom: beforeFrom, hadFrom: hadFrom,
		beforeTo: beforeTo, hadTo: hadTo,
	})
	return nil
}

// Stat passes through to the base.
func (j *JournalWorkspace) Stat(ctx context.Context, path string) (*FileStat, error) {
	return j.base.Stat(ctx, path)
}

// ListFiles passes through to the base.
func (j *JournalWorkspace) ListFiles(ctx context.Context, glob string) ([]string, error) {
	return j.base.ListFiles(ctx, glob)
}

func (j *JournalWorkspace) append(op journalOp) {
	j.mu.Lock()
	j.ops = append(j.ops, op)
	j.mu.Unlock()
}

// Len returns the number of journaled operations.
func (j *JournalWorkspace) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.ops)
}

// Commit discards the journal, keeping all effects.
func (j *JournalWorkspace) Commit() {
	j.mu.Lock()
	j.ops = nil
	j.mu.Unlock()
}

// Rollback replays the journal in reverse, restoring prior bytes and
// deleting files that did not exist. Errors are swallowed so the
// best-effort unwind completes; each is logged.
func (j *JournalWorkspace) Rollback(ctx context.Context) {
	j.mu.Lock()
	ops := j.ops
	j.ops = nil
	j.mu.Unlock()

	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		switch op.kind {
		case journalWrite, journalDelete:
			j.restore(ctx, op.path, op.before, op.hadBefore)
		case journalRename:
			// Undo the move, then restore both endpoints to prior contents.
			if !op.hadTo {
				if err := j.base.DeletePath(ctx, op.to); err != nil {
					j.logger.Warn("rollback delete failed", "path", op.to, "error", err)
				}
			}
			j.restore(ctx, op.from, op.beforeFrom, op.hadFrom)
			j.restore(ctx, op.to, op.beforeTo, op.hadTo)
		}
	}
}

func (j *JournalWorkspace) restore(ctx context.Context, path string, before []byte, had bool) {
	if had {
		if err := j.base.WriteFile(ctx, path, before); err != nil {
			j.logger.Warn("rollback write failed", "path", path, "error", err)
		}
		return
	}
	if err := j.base.DeletePath(ctx, path); err != nil {
		j.logger.Warn("rollback delete failed", "path", path, "error", err)
	}
}

var _ Workspace = (*JournalWorkspace)(nil)
