package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Dicklesworthstone/dmux/internal/action"
	"github.com/Dicklesworthstone/dmux/internal/state"
	"github.com/Dicklesworthstone/dmux/internal/stream"
	"github.com/Dicklesworthstone/dmux/internal/tmux"
)

// paneList is the GET /api/panes response.
type paneList struct {
	ProjectName string       `json:"projectName"`
	ProjectRoot string       `json:"projectRoot"`
	Panes       []state.Pane `json:"panes"`
}

// actionInfo describes one action for client menus.
type actionInfo struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// resultPayload flattens an ActionResult for the wire. Continuations never
// serialize; interactive results carry a registry callback id instead.
type resultPayload struct {
	Success bool `json:"success"`
	*action.Result
	RequiresInteraction bool   `json:"requiresInteraction,omitempty"`
	InteractionType     string `json:"interactionType,omitempty"`
	CallbackID          string `json:"callbackId,omitempty"`
}

func (s *Server) handlePanes(w http.ResponseWriter, r *http.Request) {
	panes := s.Store.ListPanes()
	if panes == nil {
		panes = []state.Pane{}
	}
	writeJSON(w, http.StatusOK, paneList{
		ProjectName: s.Store.ProjectName(),
		ProjectRoot: s.Store.ProjectRoot(),
		Panes:       panes,
	})
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"actions": describeActions(action.Names())})
}

func (s *Server) handlePaneActions(w http.ResponseWriter, r *http.Request) {
	pane, ok := s.Store.Pane(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("pane %s not found", r.PathValue("id")))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": describeActions(action.For(pane))})
}

func describeActions(names []action.Name) []actionInfo {
	out := make([]actionInfo, 0, len(names))
	for _, n := range names {
		out = append(out, actionInfo{ID: string(n), Label: n.Label()})
	}
	return out
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	name := action.Name(r.PathValue("actionId"))

	// Params are optional; an empty body means none.
	var params map[string]string
	_ = json.NewDecoder(r.Body).Decode(&params)

	s.logger().Debug("http action dispatch",
		slog.String("component", "server"),
		slog.String("pane", id),
		slog.String("action", string(name)))
	s.writeResult(w, s.Dispatcher.Dispatch(r.Context(), name, id, params))
}

// createPaneRequest is the POST /api/panes body.
type createPaneRequest struct {
	Prompt string `json:"prompt"`
	Agent  string `json:"agent,omitempty"`
}

func (s *Server) handleCreatePane(w http.ResponseWriter, r *http.Request) {
	var req createPaneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.writeResult(w, s.Dispatcher.CreatePane(r.Context(), req.Prompt, req.Agent))
}

// callbackRequest is the POST /api/callbacks/{kind}/{id} body. Only the
// field matching the kind is read.
type callbackRequest struct {
	Accepted bool   `json:"accepted"`
	OptionID string `json:"optionId"`
	Value    string `json:"value"`
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	id := r.PathValue("id")

	var req callbackRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	var (
		res *action.Result
		err error
	)
	switch kind {
	case "confirm":
		res, err = s.Registry.Confirm(r.Context(), id, req.Accepted)
	case "choice":
		res, err = s.Registry.Select(r.Context(), id, req.OptionID)
	case "input":
		res, err = s.Registry.Submit(r.Context(), id, req.Value)
	default:
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown callback kind %q", kind))
		return
	}
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeResult(w, res)
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	pane, ok := s.Store.Pane(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("pane %s not found", id))
		return
	}
	if !pane.Live() {
		s.writeError(w, http.StatusConflict, fmt.Sprintf("pane %s has no terminal", pane.Slug))
		return
	}

	var in tmux.KeyInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.Tmux.SendKeyInput(r.Context(), pane.TerminalPaneID, in); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	pane, ok := s.Store.Pane(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("pane %s not found", id))
		return
	}
	if !pane.Live() {
		s.writeError(w, http.StatusConflict, fmt.Sprintf("pane %s has no terminal", pane.Slug))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	err := s.Streamer.Stream(r.Context(), pane.TerminalPaneID, func(e stream.Event) error {
		raw, err := e.Encode()
		if err != nil {
			return err
		}
		if _, err := w.Write(raw); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger().Debug("stream closed",
			slog.String("component", "server"),
			slog.String("pane", id),
			slog.String("error", err.Error()))
	}
}

// writeResult serializes an action result, registering continuations of
// interactive results as callbacks.
func (s *Server) writeResult(w http.ResponseWriter, res *action.Result) {
	if res == nil {
		res = action.Success("ok")
	}
	payload := resultPayload{Success: res.Type != action.TypeError, Result: res}
	if res.Type.Interactive() {
		payload.RequiresInteraction = true
		payload.InteractionType = string(res.Type)
		payload.CallbackID = s.Registry.Register(res)
	}
	writeJSON(w, http.StatusOK, payload)
}

// writeError emits the uniform error shape.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"type":    "error",
		"message": message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("encoding response", slog.String("error", err.Error()))
	}
}
