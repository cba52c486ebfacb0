// Package worker runs one monitor goroutine per live agent pane: capture
// the pane tail, classify what the agent is doing, publish status updates,
// and auto-advance safe dialogs when the pane has autopilot enabled.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Dicklesworthstone/dmux/internal/agent"
	"github.com/Dicklesworthstone/dmux/internal/state"
)

const (
	defaultTickInterval = 1 * time.Second
	defaultCaptureLines = 50
)

// terminal is the slice of the tmux client a monitor needs.
type terminal interface {
	CapturePane(ctx context.Context, target string, lines int) (string, error)
	SendNamedKey(ctx context.Context, target, key string) error
}

// paneStore is the slice of the state store a monitor needs.
type paneStore interface {
	Pane(id string) (state.Pane, bool)
	UpdatePaneStatus(id string, update state.StatusUpdate) error
}

// llmFunc produces the model-backed classification for content that the
// pattern analyzer could not place.
type llmFunc func(ctx context.Context, agentName, content string) (*agent.LLMAnalysis, error)

// Monitor tails one agent pane. The loop is single-threaded; concurrency
// exists only between panes.
type Monitor struct {
	PaneID string
	Agent  string
	Target string

	Tmux   terminal
	Store  paneStore
	Logger *slog.Logger

	Interval time.Duration
	Lines    int

	// Kick triggers a tick ahead of the interval. Nil means interval only.
	Kick <-chan struct{}

	analyze llmFunc
	cache   *analysisCache
	group   singleflight.Group

	// lastAutoHash is the content hash of the dialog autopilot last
	// answered, so one dialog gets at most one keystroke burst.
	lastAutoHash uint64
}

// NewMonitor builds a monitor for one pane. The harness may be nil, in
// which case unclassified content publishes unknown instead of a model
// verdict.
func NewMonitor(pane state.Pane, tm terminal, st paneStore, harness *agent.Harness) *Monitor {
	m := &Monitor{
		PaneID: pane.ID,
		Agent:  pane.Agent,
		Target: pane.TerminalPaneID,
		Tmux:   tm,
		Store:  st,
		cache:  newAnalysisCache(cacheCapacity, cacheTTL),
	}
	if harness != nil {
		m.analyze = harness.AnalyzePane
	}
	return m
}

func (m *Monitor) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

func (m *Monitor) interval() time.Duration {
	if m.Interval > 0 {
		return m.Interval
	}
	return defaultTickInterval
}

func (m *Monitor) lines() int {
	if m.Lines > 0 {
		return m.Lines
	}
	return defaultCaptureLines
}

// Run ticks until ctx is cancelled. On cancellation it returns promptly
// and publishes nothing further.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		case <-m.Kick:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	content, err := m.Tmux.CapturePane(ctx, m.Target, m.lines())
	if err != nil {
		if ctx.Err() == nil {
			m.logger().Debug("pane capture failed", "pane", m.PaneID, "error", err)
		}
		return
	}
	if strings.TrimSpace(content) == "" {
		return
	}

	if analysis, ok := agent.Analyze(m.Agent, content); ok {
		m.publishPattern(analysis)
		if analysis.State == agent.StateOptionDialog {
			m.maybeAutopilot(ctx, analysis, xxhash.Sum64String(content))
		}
		return
	}

	hash := xxhash.Sum64String(content)
	if cached, ok := m.cache.get(hash); ok {
		m.publishModel(cached)
		return
	}
	if m.analyze == nil {
		m.publish(state.StatusUpdate{AgentStatus: state.StatusUnknown})
		return
	}

	m.publish(state.StatusUpdate{AgentStatus: state.StatusAnalyzing})
	res, err, _ := m.group.Do(fmt.Sprintf("%s:%x", m.PaneID, hash), func() (any, error) {
		return m.analyze(ctx, m.Agent, content)
	})
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		m.logger().Warn("model analysis failed", "pane", m.PaneID, "error", err)
		m.publish(state.StatusUpdate{AgentStatus: state.StatusUnknown})
		return
	}
	llm := res.(*agent.LLMAnalysis)
	m.cache.put(hash, *llm)
	m.publishModel(*llm)
}

// publishPattern maps a deterministic verdict onto the pane.
func (m *Monitor) publishPattern(a agent.Analysis) {
	update := state.StatusUpdate{}
	switch a.State {
	case agent.StateInProgress:
		update.AgentStatus = state.StatusWorking
		update.OptionsQuestion = strPtr("")
		update.Options = []state.DialogOption{}
		update.ClearHarm = true
		m.lastAutoHash = 0
	case agent.StateOptionDialog:
		update.AgentStatus = state.StatusWaiting
		update.OptionsQuestion = strPtr(a.Question)
		update.Options = toDialogOptions(a.Options)
	case agent.StateOpenPrompt:
		update.AgentStatus = state.StatusIdle
		update.OptionsQuestion = strPtr("")
		update.Options = []state.DialogOption{}
		update.ClearHarm = true
		m.lastAutoHash = 0
	default:
		return
	}
	m.publish(update)
}

// publishModel maps a model verdict onto the pane. Model analyses are
// display-only; nothing here may send keystrokes.
func (m *Monitor) publishModel(a agent.LLMAnalysis) {
	update := state.StatusUpdate{AgentStatus: state.AgentStatus(a.State)}
	switch update.AgentStatus {
	case state.StatusWaiting:
		update.OptionsQuestion = strPtr(a.Question)
		update.Options = toDialogOptions(a.Options)
		if a.PotentialHarm != nil {
			update.PotentialHarm = &state.PotentialHarm{
				HasRisk:     a.PotentialHarm.HasRisk,
				Description: a.PotentialHarm.Description,
			}
		} else {
			update.ClearHarm = true
		}
	case state.StatusWorking, state.StatusIdle:
		update.OptionsQuestion = strPtr("")
		update.Options = []state.DialogOption{}
		update.ClearHarm = true
		if update.AgentStatus == state.StatusIdle && a.Summary != "" {
			update.AgentSummary = strPtr(a.Summary)
		}
	default:
		update.AgentStatus = state.StatusUnknown
	}
	m.publish(update)
}

func (m *Monitor) publish(update state.StatusUpdate) {
	if err := m.Store.UpdatePaneStatus(m.PaneID, update); err != nil {
		m.logger().Warn("status update rejected", "pane", m.PaneID, "error", err)
	}
}

// maybeAutopilot answers a safe dialog. It accepts only the pattern
// analyzer's Analysis type: model output (agent.LLMAnalysis) cannot reach
// this function, so model-suggested keys can never be sent to a terminal.
func (m *Monitor) maybeAutopilot(ctx context.Context, a agent.Analysis, hash uint64) {
	pane, ok := m.Store.Pane(m.PaneID)
	if !ok || !pane.Autopilot {
		return
	}
	if phrase, risky := a.Risky(); risky {
		m.logger().Info("autopilot blocked, dialog text is destructive",
			"pane", m.PaneID, "matched", phrase)
		return
	}
	if pane.PotentialHarm != nil && pane.PotentialHarm.HasRisk {
		m.logger().Info("autopilot blocked, dialog flagged risky",
			"pane", m.PaneID, "risk", pane.PotentialHarm.Description)
		return
	}
	if hash == m.lastAutoHash {
		return
	}
	opt, ok := a.DefaultOption()
	if !ok || len(opt.Keys) == 0 {
		return
	}
	for _, key := range opt.Keys {
		if err := m.Tmux.SendNamedKey(ctx, m.Target, key); err != nil {
			m.logger().Warn("autopilot keystroke failed", "pane", m.PaneID, "key", key, "error", err)
			return
		}
	}
	m.lastAutoHash = hash
	m.logger().Info("autopilot answered dialog",
		"pane", m.PaneID, "action", opt.Action, "keys", strings.Join(opt.Keys, "+"))
}

func toDialogOptions(opts []agent.Option) []state.DialogOption {
	out := make([]state.DialogOption, 0, len(opts))
	for _, o := range opts {
		out = append(out, state.DialogOption{Action: o.Action, Keys: o.Keys})
	}
	return out
}

func strPtr(s string) *string { return &s }
