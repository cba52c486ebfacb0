package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/Dicklesworthstone/dmux/internal/agent"
)

const (
	trustWindow       = 10 * time.Second
	trustPollInterval = 500 * time.Millisecond
	trustCaptureLines = 30
	maxTrustAnswers   = 3
)

// AcknowledgeTrustPrompts watches a freshly launched agent pane for
// first-run consent dialogs and answers them so the injected prompt is not
// swallowed by a "do you trust this folder" screen. It only acts on a
// stable match, the same content seen on two consecutive polls, and stops
// as soon as the agent produces real output or the startup window closes.
func AcknowledgeTrustPrompts(ctx context.Context, tm terminal, logger *slog.Logger, agentName, paneID, target string) {
	acknowledgeTrustPrompts(ctx, tm, logger, agentName, paneID, target, trustWindow, trustPollInterval)
}

func acknowledgeTrustPrompts(ctx context.Context, tm terminal, logger *slog.Logger, agentName, paneID, target string, window, poll time.Duration) {
	if logger == nil {
		logger = slog.Default()
	}
	deadline := time.After(window)
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var prev string
	answered := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-ticker.C:
		}

		content, err := tm.CapturePane(ctx, target, trustCaptureLines)
		if err != nil {
			continue
		}
		if agent.Working(agentName, content) {
			return
		}
		prompt, found := agent.DetectTrustPrompt(content)
		if !found {
			prev = content
			continue
		}
		if content != prev {
			prev = content
			continue
		}

		for _, seq := range prompt.Sequences {
			for _, key := range seq {
				if err := tm.SendNamedKey(ctx, target, key); err != nil {
					logger.Warn("trust acknowledgement failed", "pane", paneID, "key", key, "error", err)
					return
				}
			}
		}
		answered++
		logger.Info("acknowledged trust prompt", "pane", paneID, "agent", agentName)
		if answered >= maxTrustAnswers {
			return
		}
		// force a fresh stability check before answering anything else
		prev = ""
	}
}
