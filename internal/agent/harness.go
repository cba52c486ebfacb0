package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/Dicklesworthstone/dmux/internal/config"
)

// Bounded deadlines for one-shot harness calls. Every caller has a
// non-AI fallback, so these are short.
const (
	SlugTimeout    = 10 * time.Second
	AnalyzeTimeout = 10 * time.Second
	CommitTimeout  = 15 * time.Second
	PRTimeout      = 20 * time.Second
)

var (
	// ErrNoAgent is returned when the named agent is not configured.
	ErrNoAgent = errors.New("agent not configured")
	// ErrEmptyResponse is returned when the agent CLI produced no output.
	ErrEmptyResponse = errors.New("agent returned empty response")
)

// execFunc runs one CLI invocation and returns its stdout.
type execFunc func(ctx context.Context, name string, args []string) (string, error)

// Harness invokes installed agent CLIs in one-shot prompt mode. It powers
// slug generation, commit messages, PR descriptions, and the display-only
// pane analysis.
type Harness struct {
	Config *config.Config
	Logger *slog.Logger

	run execFunc
}

// NewHarness creates a harness over the configured agents.
func NewHarness(cfg *config.Config) *Harness {
	return &Harness{Config: cfg, run: runCLI}
}

// NewHarnessWithExec injects a fake CLI runner for tests.
func NewHarnessWithExec(cfg *config.Config, run execFunc) *Harness {
	return &Harness{Config: cfg, run: run}
}

func (h *Harness) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// runCLI executes the agent binary and captures stdout.
func runCLI(ctx context.Context, name string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return stdout.String(), nil
}

// Prompt runs one agent CLI call in harness mode with the given model tier.
// An empty tier omits the model flag.
func (h *Harness) Prompt(ctx context.Context, agentName, tier, prompt string) (string, error) {
	spec, ok := h.Config.Agent(agentName)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoAgent, agentName)
	}

	args := append([]string{}, spec.HarnessArgs...)
	if tier != "" && spec.ModelFlag != "" {
		if model, ok := spec.Models[tier]; ok && model != "" {
			args = append(args, spec.ModelFlag, model)
		}
	}
	args = append(args, prompt)

	start := time.Now()
	out, err := h.run(ctx, spec.Command, args)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptyResponse
	}
	h.logger().Debug("harness call finished",
		slog.String("agent", agentName),
		slog.String("tier", tier),
		slog.Duration("took", time.Since(start)))
	return out, nil
}

// tiers returns the model tiers to race for an agent, cheapest first. An
// agent with no tier table gets one flagless call.
func (h *Harness) tiers(agentName string) []string {
	spec, ok := h.Config.Agent(agentName)
	if !ok {
		return []string{""}
	}
	var out []string
	for _, tier := range []string{"cheap", "mid"} {
		if _, ok := spec.Models[tier]; ok {
			out = append(out, tier)
		}
	}
	if len(out) == 0 {
		out = []string{""}
	}
	return out
}

// PromptRace runs the prompt against every tier concurrently under one
// deadline; the first success cancels the rest. With a single tier it is an
// ordinary call.
func (h *Harness) PromptRace(ctx context.Context, agentName, prompt string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tiers := h.tiers(agentName)
	if len(tiers) == 1 {
		return h.Prompt(ctx, agentName, tiers[0], prompt)
	}

	type result struct {
		out string
		err error
	}
	ch := make(chan result, len(tiers))
	for _, tier := range tiers {
		go func(tier string) {
			out, err := h.Prompt(ctx, agentName, tier, prompt)
			ch <- result{out, err}
		}(tier)
	}

	var errs []error
	for range tiers {
		r := <-ch
		if r.err == nil {
			return r.out, nil
		}
		errs = append(errs, r.err)
	}
	return "", errors.Join(errs...)
}

const slugPrompt = `Generate a short kebab-case name (2-4 words, lowercase letters, digits and hyphens only) for a git branch implementing the task below. Respond with the name only, no punctuation or explanation.

Task: %s`

// GenerateSlug asks the agent for a branch-safe label for the prompt. It
// never fails: on any harness problem it falls back to a timestamped name.
func (h *Harness) GenerateSlug(ctx context.Context, agentName, userPrompt string) string {
	out, err := h.PromptRace(ctx, agentName, fmt.Sprintf(slugPrompt, userPrompt), SlugTimeout)
	if err == nil {
		if slug := SanitizeSlug(out); slug != "" {
			return slug
		}
		err = fmt.Errorf("unusable slug %q", out)
	}
	fallback := FallbackSlug(time.Now())
	h.logger().Warn("slug generation failed, using fallback",
		slog.String("agent", agentName),
		slog.String("fallback", fallback),
		slog.Any("error", err))
	return fallback
}

const commitPrompt = `Write a conventional commit message for the staged changes summarized below. First line under 72 characters, imperative mood. Respond with the commit message only.

%s`

// CommitMessage asks the agent for a commit message given a diff summary.
// Callers fall back to a manual input dialog on error.
func (h *Harness) CommitMessage(ctx context.Context, agentName, diffSummary string) (string, error) {
	out, err := h.PromptRace(ctx, agentName, fmt.Sprintf(commitPrompt, diffSummary), CommitTimeout)
	if err != nil {
		return "", err
	}
	msg := strings.TrimSpace(stripFences(out))
	if msg == "" {
		return "", ErrEmptyResponse
	}
	return msg, nil
}

const prPrompt = `Write a pull request title and description for branch %q based on the diff summary below. Respond with JSON only: {"title": "...", "body": "..."}.

%s`

// PRDescription asks the agent for a pull request title and body.
func (h *Harness) PRDescription(ctx context.Context, agentName, branch, diffSummary string) (string, string, error) {
	out, err := h.PromptRace(ctx, agentName, fmt.Sprintf(prPrompt, branch, diffSummary), PRTimeout)
	if err != nil {
		return "", "", err
	}
	payload, ok := extractJSON(out)
	if !ok {
		return "", "", fmt.Errorf("no JSON in response %q", Summarize(out, 80))
	}
	var pr struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if err := json.Unmarshal([]byte(payload), &pr); err != nil {
		return "", "", fmt.Errorf("parse PR response: %w", err)
	}
	if pr.Title == "" {
		return "", "", ErrEmptyResponse
	}
	return pr.Title, pr.Body, nil
}

const analyzePrompt = `You are watching a terminal pane running an AI coding agent. Classify its current state from the captured content below.

Respond with JSON only, no prose, in this exact shape:
{"state": "working|waiting|idle", "question": "the question being asked, if any", "options": [{"action": "label shown", "keys": ["keystroke"]}], "potentialHarm": {"hasRisk": true|false, "description": "why"}, "summary": "one sentence on what the agent just did (only when idle)"}

Pane content:
%s`

// AnalyzePane asks the model for a display-only classification of pane
// content. The result must never drive keystrokes.
func (h *Harness) AnalyzePane(ctx context.Context, agentName, content string) (*LLMAnalysis, error) {
	out, err := h.PromptRace(ctx, agentName, fmt.Sprintf(analyzePrompt, content), AnalyzeTimeout)
	if err != nil {
		return nil, err
	}
	payload, ok := extractJSON(out)
	if !ok {
		return nil, fmt.Errorf("no JSON in response %q", Summarize(out, 80))
	}
	var analysis LLMAnalysis
	if err := json.Unmarshal([]byte(payload), &analysis); err != nil {
		return nil, fmt.Errorf("parse analysis: %w", err)
	}
	switch analysis.State {
	case "working", "waiting", "idle":
	default:
		return nil, fmt.Errorf("unrecognized state %q", analysis.State)
	}
	if analysis.State == "waiting" && len(analysis.Options) == 0 {
		// A waiting verdict with nothing to offer is useless; treat as
		// unclassified.
		return nil, fmt.Errorf("waiting verdict without options")
	}
	return &analysis, nil
}

// extractJSON pulls the first JSON object out of a response that may be
// wrapped in markdown fences or prose.
func extractJSON(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// Summarize truncates s to at most n runes for log lines.
func Summarize(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
