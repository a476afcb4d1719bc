package tiller

import (
	"context"
	"encoding/json"
	"testing"
)

func toolByName(t *testing.T, defs []ToolDefinition, name string) ToolDefinition {
	t.Helper()
	for _, d := range defs {
		if d.Name == name {
			return d
		}
	}
	t.Fatalf("tool %q not found", name)
	return ToolDefinition{}
}

func fsToolContext(ws Workspace) (*ToolContext, *[]Event) {
	var events []Event
	return &ToolContext{
		Workspace: ws,
		Emit:      func(ev Event) { events = append(events, ev) },
	}, &events
}

func TestFSWriteAndReadFile(t *testing.T) {
	ctx := context.Background()
	ws := newMemWorkspace()
	tc, events := fsToolContext(ws)
	tools := FSTools()

	write := toolByName(t, tools, "fs_write_file")
	if _, err := write.Execute(ctx, json.RawMessage(`{"path":"a.txt","content":"hello"}`), tc); err != nil {
		t.Fatal(err)
	}
	if len(*events) != 1 || (*events)[0].Change.Kind != ChangeCreate {
		t.Fatalf("first write should emit a create change, got %+v", *events)
	}

	if _, err := write.Execute(ctx, json.RawMessage(`{"path":"a.txt","content":"hello again"}`), tc); err != nil {
		t.Fatal(err)
	}
	if (*events)[1].Change.Kind != ChangeUpdate {
		t.Errorf("second write should emit an update change, got %s", (*events)[1].Change.Kind)
	}

	read := toolByName(t, tools, "fs_read_file")
	out, err := read.Execute(ctx, json.RawMessage(`{"path":"a.txt"}`), tc)
	if err != nil {
		t.Fatal(err)
	}
	if out.(string) != "hello again" {
		t.Errorf("read returned %q", out)
	}

	out, err = read.Execute(ctx, json.RawMessage(`{"path":"a.txt","maxBytes":5}`), tc)
	if err != nil {
		t.Fatal(err)
	}
	if out.(string) != "hello" {
		t.Errorf("maxBytes cap ignored: %q", out)
	}
}

func TestFSReadMissingFile(t *testing.T) {
	tc, _ := fsToolContext(newMemWorkspace())
	read := toolByName(t, FSTools(), "fs_read_file")
	if _, err := read.Execute(context.Background(), json.RawMessage(`{"path":"nope.txt"}`), tc); !IsNotExist(err) {
		t.Errorf("missing file should report ErrNotExist, got %v", err)
	}
}

func TestFSDeleteAndRename(t *testing.T) {
	ctx := context.Background()
	ws := newMemWorkspace()
	ws.WriteFile(ctx, "old.txt", []byte("x"))
	ws.WriteFile(ctx, "dead.txt", []byte("y"))
	tc, events := fsToolContext(ws)
	tools := FSTools()

	ren := toolByName(t, tools, "fs_rename_path")
	if _, err := ren.Execute(ctx, json.RawMessage(`{"fromPath":"old.txt","toPath":"new.txt"}`), tc); err != nil {
		t.Fatal(err)
	}
	if _, ok := ws.content("new.txt"); !ok {
		t.Error("rename destination missing")
	}

	del := toolByName(t, tools, "fs_delete_path")
	if _, err := del.Execute(ctx, json.RawMessage(`{"path":"dead.txt"}`), tc); err != nil {
		t.Fatal(err)
	}
	if _, ok := ws.content("dead.txt"); ok {
		t.Error("delete had no effect")
	}
	// Deleting an absent path is not an error.
	if _, err := del.Execute(ctx, json.RawMessage(`{"path":"dead.txt"}`), tc); err != nil {
		t.Errorf("idempotent delete failed: %v", err)
	}

	kinds := make([]FileChangeKind, 0, len(*events))
	for _, ev := range *events {
		kinds = append(kinds, ev.Change.Kind)
	}
	if kinds[0] != ChangeRename || kinds[1] != ChangeDelete {
		t.Errorf("unexpected change kinds: %v", kinds)
	}
}

func TestFSApplyPatch(t *testing.T) {
	ctx := context.Background()
	ws := newMemWorkspace()
	ws.WriteFile(ctx, "f.txt", []byte("line1\nline2\nline3\n"))
	tc, events := fsToolContext(ws)

	patch := toolByName(t, FSTools(), "fs_apply_patch")
	args, _ := json.Marshal(map[string]any{"patch": simpleDiff})
	if _, err := patch.Execute(ctx, args, tc); err != nil {
		t.Fatal(err)
	}
	if got, _ := ws.content("f.txt"); got != "line1\nchanged\nline3\n" {
		t.Errorf("patch result wrong: %q", got)
	}
	if len(*events) != 1 || (*events)[0].Change.Kind != ChangeUpdate {
		t.Errorf("whole-file patch should emit one update, got %+v", *events)
	}
}

func TestFSApplyPatchIncremental(t *testing.T) {
	ctx := context.Background()
	ws := newMemWorkspace()
	ws.WriteFile(ctx, "f.txt", []byte("line1\nline2\nline3\n"))
	tc, events := fsToolContext(ws)

	patch := toolByName(t, FSTools(), "fs_apply_patch")
	args, _ := json.Marshal(map[string]any{"patch": simpleDiff, "incremental": true})
	if _, err := patch.Execute(ctx, args, tc); err != nil {
		t.Fatal(err)
	}
	if len(*events) != 1 {
		t.Fatalf("expected one patch_hunk change, got %d", len(*events))
	}
	ch := (*events)[0].Change
	if ch.Kind != ChangePatchHunk || ch.HunkIndex != 0 || ch.HunkCount != 1 {
		t.Errorf("hunk change wrong: %+v", ch)
	}
}

func TestFSApplyPatchCreatesAndDeletes(t *testing.T) {
	ctx := context.Background()
	ws := newMemWorkspace()
	ws.WriteFile(ctx, "old.txt", []byte("goodbye\n"))
	tc, _ := fsToolContext(ws)

	patch := toolByName(t, FSTools(), "fs_apply_patch")
	combined := "--- /dev/null\n+++ b/new.txt\n@@ -0,0 +1,1 @@\n+hello\n" +
		"--- a/old.txt\n+++ /dev/null\n@@ -1,1 +0,0 @@\n-goodbye\n"
	args, _ := json.Marshal(map[string]any{"patch": combined})
	if _, err := patch.Execute(ctx, args, tc); err != nil {
		t.Fatal(err)
	}
	if got, _ := ws.content("new.txt"); got != "hello\n" {
		t.Errorf("created file wrong: %q", got)
	}
	if _, ok := ws.content("old.txt"); ok {
		t.Error("dev/null target should be deleted")
	}
}

func TestFSApplyPatchRejectsMismatch(t *testing.T) {
	ctx := context.Background()
	ws := newMemWorkspace()
	ws.WriteFile(ctx, "f.txt", []byte("unrelated\ncontent\n"))
	tc, _ := fsToolContext(ws)

	patch := toolByName(t, FSTools(), "fs_apply_patch")
	args, _ := json.Marshal(map[string]any{"patch": simpleDiff})
	if _, err := patch.Execute(ctx, args, tc); err == nil {
		t.Fatal("mismatched patch should fail")
	}
}

func TestFSPreviewFlagPropagates(t *testing.T) {
	ctx := context.Background()
	ws := NewPreviewWorkspace(newMemWorkspace())
	var events []Event
	tc := &ToolContext{Workspace: ws, Preview: true, Emit: func(ev Event) { events = append(events, ev) }}

	write := toolByName(t, FSTools(), "fs_write_file")
	if _, err := write.Execute(ctx, json.RawMessage(`{"path":"a.txt","content":"x"}`), tc); err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || !events[0].Change.Preview {
		t.Errorf("preview flag should reach the change event: %+v", events)
	}
}
