package tiller

import (
	"context"
	"sync"
)

type overlayKind int

const (
	overlayWrite overlayKind = iota
	overlayDelete
)

type overlayEntry struct {
	kind          overlayKind
	bytes         []byte
	existedBefore bool
}

type overlayRename struct {
	from, to      string
	existedBefore bool // whether to existed in the base before the rename
}

// PreviewWorkspace wraps a base workspace and buffers every mutation in an
// in-memory overlay. Reads consult the overlay first; a pending delete
// fails reads; a pending write yields a synthetic stat. Commit applies
// renames, then writes, then deletes to the base; Discard drops the
// overlay. The base is untouched until Commit.
//
// One overlay is shared across failover attempts in preview mode.
type PreviewWorkspace struct {
	base    Workspace
	mu      sync.Mutex
	entries map[string]*overlayEntry
	renames []overlayRename
}

// NewPreviewWorkspace wraps base with an empty overlay.
func NewPreviewWorkspace(base Workspace) *PreviewWorkspace {
	return &PreviewWorkspace{base: base, entries: make(map[string]*overlayEntry)}
}

// ReadFile returns overlay bytes for a pending write, fails for a pending
// delete, and otherwise falls through to the base.
func (p *PreviewWorkspace) ReadFile(ctx context.Context, path string) ([]byte, error) {
	p.mu.Lock()
	ent, ok := p.entries[path]
	p.mu.Unlock()
	if ok {
		if ent.kind == overlayDelete {
			return nil, NotExistError(path)
		}
		return append([]byte(nil), ent.bytes...), nil
	}
	return p.base.ReadFile(ctx, path)
}

// WriteFile buffers the write in the overlay.
func (p *PreviewWorkspace) WriteFile(ctx context.Context, path string, data []byte) error {
	existed, err := p.exists(ctx, path)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.entries[path] = &overlayEntry{kind: overlayWrite, bytes: append([]byte(nil), data...), existedBefore: existed}
	p.mu.Unlock()
	return nil
}

// DeletePath buffers the delete in the overlay.
func (p *PreviewWorkspace) DeletePath(ctx context.Context, path string) error {
	existed, err := p.exists(ctx, path)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.entries[path] = &overlayEntry{kind: overlayDelete, existedBefore: existed}
	p.mu.Unlock()
	return nil
}

// RenamePath buffers the rename: the destination becomes a pending write of
// the source's effective bytes, the source a pending delete. The rename is
// also recorded under its composite key so Commit can replay it as a real
// rename on the base.
func (p *PreviewWorkspace) RenamePath(ctx context.Context, from, to string) error {
	data, err := p.ReadFile(ctx, from)
	if err != nil {
		return err
	}
	toExisted, err := p.exists(ctx, to)
	if err != nil {
		return err
	}
	fromInBase, err := p.baseExists(ctx, from)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.renames = append(p.renames, overlayRename{from: from, to: to, existedBefore: toExisted})
	p.entries[to] = &overlayEntry{kind: overlayWrite, bytes: data, existedBefore: toExisted}
	p.entries[from] = &overlayEntry{kind: overlayDelete, existedBefore: fromInBase}
	p.mu.Unlock()
	return nil
}

// Stat returns a synthetic file stat for a pending write, absence for a
// pending delete, and otherwise falls through to the base.
func (p *PreviewWorkspace) Stat(ctx context.Context, path string) (*FileStat, error) {
	p.mu.Lock()
	ent, ok := p.entries[path]
	p.mu.Unlock()
	if ok {
		if ent.kind == overlayDelete {
			return nil, nil
		}
		return &FileStat{IsFile: true, Size: int64(len(ent.bytes)), MTimeMS: NowUnixMS()}, nil
	}
	return p.base.Stat(ctx, path)
}

// ListFiles merges base listings with pending writes and hides pending
// deletes. Glob filtering of overlay paths is left to the base
// implementation's convention, so overlay paths are included only for the
// match-everything glob.
func (p *PreviewWorkspace) ListFiles(ctx context.Context, glob string) ([]string, error) {
	files, err := p.base.ListFiles(ctx, glob)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []string
	for _, f := range files {
		if ent, ok := p.entries[f]; ok && ent.kind == overlayDelete {
			continue
		}
		out = append(out, f)
	}
	if glob == "" {
		seen := make(map[string]bool, len(out))
		for _, f := range out {
			seen[f] = true
		}
		for path, ent := range p.entries {
			if ent.kind == overlayWrite && !seen[path] {
				out = append(out, path)
			}
		}
	}
	return out, nil
}

// Pending reports whether the overlay holds any buffered effects.
func (p *PreviewWorkspace) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries) > 0 || len(p.renames) > 0
}

// Commit applies the overlay to the base: renames in order, then writes,
// then deletes. The overlay is cleared on success. A failed application
// stops and returns the error with the remaining overlay intact.
func (p *PreviewWorkspace) Commit(ctx context.Context) error {
	p.mu.Lock()
	renames := p.renames
	entries := make(map[string]*overlayEntry, len(p.entries))
	for k, v := range p.entries {
		entries[k] = v
	}
	p.mu.Unlock()

	// Rename entries also exist as synthesized write/delete pairs, so the
	// subsequent write and no-op delete converge on the same final state.
	// A rename whose source was never in the base (created in the overlay)
	// is covered entirely by the synthesized write.
	for _, r := range renames {
		inBase, err := p.baseExists(ctx, r.from)
		if err != nil {
			return err
		}
		if !inBase {
			continue
		}
		if err := p.base.RenamePath(ctx, r.from, r.to); err != nil {
			return err
		}
	}
	for path, ent := range entries {
		if ent.kind != overlayWrite {
			continue
		}
		if err := p.base.WriteFile(ctx, path, ent.bytes); err != nil {
			return err
		}
	}
	for path, ent := range entries {
		if ent.kind != overlayDelete {
			continue
		}
		if err := p.base.DeletePath(ctx, path); err != nil {
			return err
		}
	}

	p.Discard()
	return nil
}

// Discard drops the overlay, leaving the base unchanged.
func (p *PreviewWorkspace) Discard() {
	p.mu.Lock()
	p.entries = make(map[string]*overlayEntry)
	p.renames = nil
	p.mu.Unlock()
}

func (p *PreviewWorkspace) exists(ctx context.Context, path string) (bool, error) {
	p.mu.Lock()
	ent, ok := p.entries[path]
	p.mu.Unlock()
	if ok {
		return ent.kind == overlayWrite, nil
	}
	return p.baseExists(ctx, path)
}

func (p *PreviewWorkspace) baseExists(ctx context.Context, path string) (bool, error) {
	st, err := p.base.Stat(ctx, path)
	if err != nil {
		return false, err
	}
	return st != nil, nil
}

var _ Workspace = (*PreviewWorkspace)(nil)
