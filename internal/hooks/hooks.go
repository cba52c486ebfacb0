// Package hooks runs user-defined shell commands on pane and merge
// lifecycle events. Hooks live in `.dmux/hooks.yaml` at the project root
// and receive context through DMUX_* environment variables. A failing hook
// is logged and skipped; hooks can never break the operation that fired
// them.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Dicklesworthstone/dmux/internal/util"
)

// Event names a lifecycle moment hooks can attach to.
type Event string

const (
	PaneCreated     Event = "pane_created"
	WorktreeCreated Event = "worktree_created"
	PaneClosed      Event = "pane_closed"
	PreMerge        Event = "pre_merge"
	PostMerge       Event = "post_merge"
)

const (
	fileName    = "hooks.yaml"
	hookTimeout = 30 * time.Second
)

// commandList accepts either a single command string or a list of them.
type commandList []string

func (c *commandList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*c = commandList{s}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*c = commandList(list)
		return nil
	default:
		return fmt.Errorf("hook entry must be a command or a list of commands")
	}
}

type hookFile struct {
	PaneCreated     commandList `yaml:"pane_created,omitempty"`
	WorktreeCreated commandList `yaml:"worktree_created,omitempty"`
	PaneClosed      commandList `yaml:"pane_closed,omitempty"`
	PreMerge        commandList `yaml:"pre_merge,omitempty"`
	PostMerge       commandList `yaml:"post_merge,omitempty"`
}

func (f hookFile) commands(ev Event) []string {
	switch ev {
	case PaneCreated:
		return f.PaneCreated
	case WorktreeCreated:
		return f.WorktreeCreated
	case PaneClosed:
		return f.PaneClosed
	case PreMerge:
		return f.PreMerge
	case PostMerge:
		return f.PostMerge
	default:
		return nil
	}
}

// Env is the hook-visible context. Empty fields are omitted from the
// environment.
type Env struct {
	PaneID       string
	Slug         string
	WorktreePath string
	Branch       string
	Agent        string
	TargetBranch string
}

// Runner fires hooks for one project.
type Runner struct {
	ProjectRoot string
	Logger      *slog.Logger
}

// NewRunner creates a hook runner rooted at the project.
func NewRunner(projectRoot string) *Runner {
	return &Runner{ProjectRoot: projectRoot}
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Path returns the hooks file location for this project.
func (r *Runner) Path() string {
	return filepath.Join(util.ProjectDir(r.ProjectRoot), fileName)
}

// load re-reads the hooks file on every fire so edits apply immediately.
// A missing file means no hooks.
func (r *Runner) load() hookFile {
	var f hookFile
	data, err := os.ReadFile(r.Path())
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger().Warn("hooks file unreadable", "path", r.Path(), "error", err)
		}
		return f
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		r.logger().Warn("hooks file invalid, ignoring", "path", r.Path(), "error", err)
		return hookFile{}
	}
	return f
}

// Fire runs every hook registered for the event, sequentially and in
// order. Each command runs under `sh -c` from the worktree when one is
// set, otherwise from the project root. Failures are logged, never
// returned.
func (r *Runner) Fire(ctx context.Context, ev Event, env Env) {
	cmds := r.load().commands(ev)
	if len(cmds) == 0 {
		return
	}
	dir := env.WorktreePath
	if dir == "" {
		dir = r.ProjectRoot
	}
	for _, cmdStr := range cmds {
		r.runOne(ctx, ev, cmdStr, dir, env)
	}
}

func (r *Runner) runOne(ctx context.Context, ev Event, cmdStr, dir string, env Env) {
	hctx, cancel := context.WithTimeout(ctx, hookTimeout)
	defer cancel()

	cmd := exec.CommandContext(hctx, "sh", "-c", cmdStr)
	cmd.Dir = dir
	cmd.Env = r.env(env)
	start := time.Now()
	out, err := cmd.CombinedOutput()
	if err != nil {
		r.logger().Warn("hook failed",
			"event", string(ev),
			"command", cmdStr,
			"error", err,
			"output", strings.TrimSpace(string(out)))
		return
	}
	r.logger().Debug("hook ran",
		"event", string(ev),
		"command", cmdStr,
		"duration", time.Since(start).Round(time.Millisecond))
}

func (r *Runner) env(e Env) []string {
	vars := os.Environ()
	add := func(key, value string) {
		if value != "" {
			vars = append(vars, key+"="+value)
		}
	}
	add("DMUX_PROJECT_ROOT", r.ProjectRoot)
	add("DMUX_PANE_ID", e.PaneID)
	add("DMUX_SLUG", e.Slug)
	add("DMUX_WORKTREE_PATH", e.WorktreePath)
	add("DMUX_BRANCH", e.Branch)
	add("DMUX_AGENT", e.Agent)
	add("DMUX_TARGET_BRANCH", e.TargetBranch)
	return vars
}
