package hooks

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestRunner(t *testing.T, yamlBody string) (*Runner, string) {
	t.Helper()
	root := t.TempDir()
	if yamlBody != "" {
		dir := filepath.Join(root, ".dmux")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, fileName), []byte(yamlBody), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	r := NewRunner(root)
	r.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return r, root
}

func TestFireRunsHookWithEnvironment(t *testing.T) {
	r, root := newTestRunner(t, `
pane_created:
  - printf '%s|%s' "$DMUX_PANE_ID" "$DMUX_SLUG" > "$DMUX_PROJECT_ROOT/marker.txt"
`)
	r.Fire(context.Background(), PaneCreated, Env{PaneID: "dmux-3", Slug: "fix-auth"})

	data, err := os.ReadFile(filepath.Join(root, "marker.txt"))
	if err != nil {
		t.Fatalf("marker not written: %v", err)
	}
	if got := string(data); got != "dmux-3|fix-auth" {
		t.Fatalf("marker = %q", got)
	}
}

func TestFireAcceptsScalarCommand(t *testing.T) {
	r, root := newTestRunner(t, `pane_closed: touch "$DMUX_PROJECT_ROOT/closed.txt"`)
	r.Fire(context.Background(), PaneClosed, Env{PaneID: "dmux-1"})

	if _, err := os.Stat(filepath.Join(root, "closed.txt")); err != nil {
		t.Fatalf("scalar hook did not run: %v", err)
	}
}

func TestFireRunsInWorktreeDirectory(t *testing.T) {
	r, root := newTestRunner(t, `
worktree_created:
  - pwd > "$DMUX_PROJECT_ROOT/where.txt"
`)
	wt := filepath.Join(root, ".dmux", "worktrees", "fix-auth")
	if err := os.MkdirAll(wt, 0o755); err != nil {
		t.Fatal(err)
	}
	r.Fire(context.Background(), WorktreeCreated, Env{Slug: "fix-auth", WorktreePath: wt})

	data, err := os.ReadFile(filepath.Join(root, "where.txt"))
	if err != nil {
		t.Fatalf("hook did not run: %v", err)
	}
	got := strings.TrimSpace(string(data))
	// macOS reports /private-prefixed temp dirs, so compare the suffix.
	if !strings.HasSuffix(got, filepath.Join(".dmux", "worktrees", "fix-auth")) {
		t.Fatalf("hook ran in %q, want the worktree", got)
	}
}

func TestFireFailureIsNotFatal(t *testing.T) {
	r, root := newTestRunner(t, `
pre_merge:
  - exit 7
  - touch "$DMUX_PROJECT_ROOT/after.txt"
`)
	r.Fire(context.Background(), PreMerge, Env{})

	if _, err := os.Stat(filepath.Join(root, "after.txt")); err != nil {
		t.Fatalf("hook after a failing one did not run: %v", err)
	}
}

func TestFireMissingFileIsNoOp(t *testing.T) {
	r, _ := newTestRunner(t, "")
	r.Fire(context.Background(), PaneCreated, Env{PaneID: "dmux-1"})
}

func TestFireInvalidYAMLIsNoOp(t *testing.T) {
	r, root := newTestRunner(t, "pane_created: {nested: {broken")
	r.Fire(context.Background(), PaneCreated, Env{PaneID: "dmux-1"})

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != ".dmux" {
			t.Fatalf("unexpected file created: %s", e.Name())
		}
	}
}

func TestFireUnregisteredEventIsNoOp(t *testing.T) {
	r, root := newTestRunner(t, `post_merge: touch "$DMUX_PROJECT_ROOT/merged.txt"`)
	r.Fire(context.Background(), PaneCreated, Env{})

	if _, err := os.Stat(filepath.Join(root, "merged.txt")); err == nil {
		t.Fatal("post_merge hook fired for pane_created")
	}
}

func TestEnvOmitsEmptyFields(t *testing.T) {
	r, _ := newTestRunner(t, "")
	vars := r.env(Env{PaneID: "dmux-1"})

	var hasPane, hasSlug bool
	for _, v := range vars {
		if strings.HasPrefix(v, "DMUX_PANE_ID=") {
			hasPane = true
		}
		if strings.HasPrefix(v, "DMUX_SLUG=") {
			hasSlug = true
		}
	}
	if !hasPane {
		t.Error("DMUX_PANE_ID missing")
	}
	if hasSlug {
		t.Error("empty DMUX_SLUG exported")
	}
}
