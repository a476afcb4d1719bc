package tiller

import (
	"context"
	"encoding/json"
	"fmt"
)

// Capability tags carried by the built-in tools.
const (
	CapFSRead        = "fs:read"
	CapFSWrite       = "fs:write"
	CapFSDelete      = "fs:delete"
	CapFSRename      = "fs:rename"
	CapMemoryRead    = "memory:read"
	CapMemoryWrite   = "memory:write"
	CapRetrievalRead = "retrieval:read"
)

// FSTools returns the built-in filesystem tools. They operate on the
// per-attempt workspace carried by the ToolContext and emit file_change
// events at mutation time (with the preview flag in preview mode).
func FSTools() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:         "fs_read_file",
			Description:  "Read a file from the workspace as UTF-8 text. Optionally cap the number of bytes returned.",
			Capabilities: []string{CapFSRead},
			InputSchema: json.RawMessage(`{"type":"object","properties":{` +
				`"path":{"type":"string","description":"Workspace-relative file path"},` +
				`"maxBytes":{"type":"integer","description":"Optional read cap in bytes"}},` +
				`"required":["path"]}`),
			Execute: fsReadFile,
		},
		{
			Name:         "fs_write_file",
			Description:  "Write content to a file in the workspace, creating parent directories as needed.",
			Capabilities: []string{CapFSWrite},
			InputSchema: json.RawMessage(`{"type":"object","properties":{` +
				`"path":{"type":"string","description":"Workspace-relative file path"},` +
				`"content":{"type":"string","description":"Content to write"}},` +
				`"required":["path","content"]}`),
			Execute: fsWriteFile,
		},
		{
			Name:         "fs_delete_path",
			Description:  "Delete a file or directory (recursively) from the workspace.",
			Capabilities: []string{CapFSDelete},
			InputSchema: json.RawMessage(`{"type":"object","properties":{` +
				`"path":{"type":"string","description":"Workspace-relative path"}},` +
				`"required":["path"]}`),
			Execute: fsDeletePath,
		},
		{
			Name:         "fs_rename_path",
			Description:  "Rename or move a file within the workspace, creating parent directories of the destination.",
			Capabilities: []string{CapFSRename},
			InputSchema: json.RawMessage(`{"type":"object","properties":{` +
				`"fromPath":{"type":"string"},` +
				`"toPath":{"type":"string"}},` +
				`"required":["fromPath","toPath"]}`),
			Execute: fsRenamePath,
		},
		{
			Name:         "fs_apply_patch",
			Description:  "Apply a unified diff to workspace files. With incremental=true each hunk is written as it applies.",
			Capabilities: []string{CapFSWrite},
			InputSchema: json.RawMessage(`{"type":"object","properties":{` +
				`"patch":{"type":"string","description":"Unified diff text"},` +
				`"incremental":{"type":"boolean","description":"Write after each hunk"}},` +
				`"required":["patch"]}`),
			Execute: fsApplyPatch,
		},
	}
}

func fsReadFile(ctx context.Context, args json.RawMessage, tc *ToolContext) (any, error) {
	var params struct {
		Path     string `json:"path"`
		MaxBytes int    `json:"maxBytes"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("invalid args: %w", err)
	}
	data, err := tc.Workspace.ReadFile(ctx, params.Path)
	if err != nil {
		return nil, err
	}
	if params.MaxBytes > 0 && len(data) > params.MaxBytes {
		data = data[:params.MaxBytes]
	}
	return string(data), nil
}

func fsWriteFile(ctx context.Context, args json.RawMessage, tc *ToolContext) (any, error) {
	var params struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("invalid args: %w", err)
	}
	st, err := tc.Workspace.Stat(ctx, params.Path)
	if err != nil {
		return nil, err
	}
	kind := ChangeCreate
	if st != nil {
		kind = ChangeUpdate
	}
	if err := tc.Workspace.WriteFile(ctx, params.Path, []byte(params.Content)); err != nil {
		return nil, err
	}
	tc.Emit(FileChangeEvent(FileChange{Kind: kind, Path: params.Path, Preview: tc.Preview}))
	return map[string]any{"ok": true}, nil
}

func fsDeletePath(ctx context.Context, args json.RawMessage, tc *ToolContext) (any, error) {
	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("invalid args: %w", err)
	}
	if err := tc.Workspace.DeletePath(ctx, params.Path); err != nil {
		return nil, err
	}
	tc.Emit(FileChangeEvent(FileChange{Kind: ChangeDelete, Path: params.Path, Preview: tc.Preview}))
	return map[string]any{"ok": true}, nil
}

func fsRenamePath(ctx context.Context, args json.RawMessage, tc *ToolContext) (any, error) {
	var params struct {
		FromPath string `json:"fromPath"`
		ToPath   string `json:"toPath"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("invalid args: %w", err)
	}
	if err := tc.Workspace.RenamePath(ctx, params.FromPath, params.ToPath); err != nil {
		return nil, err
	}
	tc.Emit(FileChangeEvent(FileChange{Kind: ChangeRename, FromPath: params.FromPath, ToPath: params.ToPath, Preview: tc.Preview}))
	return map[string]any{"ok": true}, nil
}

type patchFileResult struct {
	Path         string `json:"path"`
	HunksApplied int    `json:"hunksApplied"`
}

func fsApplyPatch(ctx context.Context, args json.RawMessage, tc *ToolContext) (any, error) {
	var params struct {
		Patch       string `json:"patch"`
		Incremental bool   `json:"incremental"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("invalid args: %w", err)
	}
	files, err := ParsePatch(params.Patch)
	if err != nil {
		return nil, err
	}

	var results []patchFileResult
	for _, f := range files {
		applied, err := applyPatchFile(ctx, f, params.Incremental, tc)
		if err != nil {
			return nil, err
		}
		results = append(results, patchFileResult{Path: f.Path(), HunksApplied: applied})
	}
	return map[string]any{"ok": true, "results": results}, nil
}

// applyPatchFile applies one file section. Incremental mode writes the file
// after each hunk and emits a patch_hunk change per hunk; otherwise the
// file is written once and a create/update change is emitted.
func applyPatchFile(ctx context.Context, f PatchFile, incremental bool, tc *ToolContext) (int, error) {
	path := f.Path()

	// Whole-file deletion: a diff against /dev/null on the new side.
	if f.NewPath == "" && f.OldPath != "" {
		if err := tc.Workspace.DeletePath(ctx, f.OldPath); err != nil {
			return 0, err
		}
		tc.Emit(FileChangeEvent(FileChange{Kind: ChangeDelete, Path: f.OldPath, Preview: tc.Preview}))
		return len(f.Hunks), nil
	}

	content := ""
	existed := false
	if data, ok, err := readIfExists(ctx, tc.Workspace, path); err != nil {
		return 0, err
	} else if ok {
		content = string(data)
		existed = true
	}

	applied := 0
	for i, h := range f.Hunks {
		next, err := ApplyHunk(content, h)
		if err != nil {
			return applied, fmt.Errorf("%s: %w", path, err)
		}
		content = next
		applied++
		if incremental {
			if err := tc.Workspace.WriteFile(ctx, path, []byte(content)); err != nil {
				return applied, err
			}
			tc.Emit(FileChangeEvent(FileChange{
				Kind: ChangePatchHunk, Path: path, Preview: tc.Preview,
				HunkIndex: i, HunkCount: len(f.Hunks),
			}))
		}
	}

	if !incremental {
		if err := tc.Workspace.WriteFile(ctx, path, []byte(content)); err != nil {
			return applied, err
		}
		kind := ChangeCreate
		if existed {
			kind = ChangeUpdate
		}
		tc.Emit(FileChangeEvent(FileChange{Kind: kind, Path: path, Preview: tc.Preview}))
	}
	return applied, nil
}
