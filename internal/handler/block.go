package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/focusms/server-go/internal/middleware"
	"github.com/focusms/server-go/internal/model"
	"github.com/focusms/server-go/internal/service"
	"github.com/focusms/server-go/internal/timer"
)

// BlockHandler exposes the focus block lifecycle. Every response carries the
// engine status so the UI never needs a follow-up read after a transition.
type BlockHandler struct {
	sessions *service.SessionService
}

func NewBlockHandler(sessions *service.SessionService) *BlockHandler {
	return &BlockHandler{sessions: sessions}
}

func (h *BlockHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.Status)
	r.Post("/checkin", h.BeginCheckin)
	r.Post("/checkin/cancel", h.CancelCheckin)
	r.Post("/duration", h.SelectDuration)
	r.Post("/start", h.Start)
	r.Post("/interrupt", h.Interrupt)
	r.Post("/end", h.RequestEnd)
	r.Post("/resume", h.Resume)
	r.Post("/complete", h.Complete)
	r.Post("/reset", h.Reset)

	return r
}

// GET /v1/block
func (h *BlockHandler) Status(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetOwner(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	status, err := h.sessions.Status(owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// POST /v1/block/checkin
func (h *BlockHandler) BeginCheckin(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(owner model.Owner) error {
		return h.sessions.BeginCheckin(owner)
	})
}

// POST /v1/block/checkin/cancel
func (h *BlockHandler) CancelCheckin(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(owner model.Owner) error {
		return h.sessions.CancelCheckin(owner)
	})
}

// POST /v1/block/duration
func (h *BlockHandler) SelectDuration(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Minutes int `json:"minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	h.transition(w, r, func(owner model.Owner) error {
		return h.sessions.SelectDuration(owner, req.Minutes)
	})
}

// POST /v1/block/start
func (h *BlockHandler) Start(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetOwner(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	var req struct {
		Outcome        string `json:"outcome"`
		Blocker        string `json:"blocker"`
		PlannedMinutes int    `json:"planned_minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	if _, err := h.sessions.Start(r.Context(), owner, timer.StartParams{
		Outcome:        req.Outcome,
		Blocker:        req.Blocker,
		PlannedMinutes: req.PlannedMinutes,
	}); err != nil {
		writeError(w, err)
		return
	}

	h.writeStatus(w, owner)
}

// POST /v1/block/interrupt
func (h *BlockHandler) Interrupt(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetOwner(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	count, err := h.sessions.Interrupt(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"interruptions": count})
}

// POST /v1/block/end
func (h *BlockHandler) RequestEnd(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(owner model.Owner) error {
		return h.sessions.RequestEnd(owner)
	})
}

// POST /v1/block/resume
func (h *BlockHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(owner model.Owner) error {
		return h.sessions.Resume(owner)
	})
}

// POST /v1/block/complete
func (h *BlockHandler) Complete(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetOwner(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	var req struct {
		Result   string `json:"result"`
		NextStep string `json:"next_step"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	session, err := h.sessions.Complete(r.Context(), owner, timer.EndParams{
		Result:   model.Result(req.Result),
		NextStep: req.NextStep,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session": session,
		"minutes": session.Minutes(),
	})
}

// POST /v1/block/reset
func (h *BlockHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(owner model.Owner) error {
		return h.sessions.Reset(owner)
	})
}

func (h *BlockHandler) transition(w http.ResponseWriter, r *http.Request, fn func(model.Owner) error) {
	owner, ok := middleware.GetOwner(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	if err := fn(owner); err != nil {
		writeError(w, err)
		return
	}
	h.writeStatus(w, owner)
}

func (h *BlockHandler) writeStatus(w http.ResponseWriter, owner model.Owner) {
	status, err := h.sessions.Status(owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
