package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/samber/lo"

	"github.com/zsiec/lipsync/internal/avsync"
	apperrors "github.com/zsiec/lipsync/internal/errors"
	"github.com/zsiec/lipsync/internal/logger"
	"github.com/zsiec/lipsync/internal/session"
	"github.com/zsiec/lipsync/internal/sink"
)

// Largest offset, in milliseconds, that still fits a time.Duration.
const maxCaptureOffsetMs = float64(math.MaxInt64/int64(time.Millisecond)) - 1

// SessionResponse describes a session and its current counters.
type SessionResponse struct {
	ID        string       `json:"id"`
	CreatedAt time.Time    `json:"created_at"`
	Stats     avsync.Stats `json:"stats"`
}

// SessionListResponse is returned by GET /api/v1/sessions.
type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Count    int               `json:"count"`
}

// CreateSessionRequest is the body of POST /api/v1/sessions. An empty id
// asks the server to generate one.
type CreateSessionRequest struct {
	ID string `json:"id"`
}

// PacketRequest is one media packet. CapturedAtMs is the capture time in
// milliseconds after the session epoch; Payload is base64 in JSON.
type PacketRequest struct {
	Kind         string   `json:"kind"`
	CapturedAtMs *float64 `json:"captured_at_ms"`
	Payload      []byte   `json:"payload"`
}

// PacketResponse acknowledges an accepted packet.
type PacketResponse struct {
	Accepted   bool `json:"accepted"`
	QueueDepth int  `json:"queue_depth"`
}

// EmittedResponse lists recent emissions, oldest first.
type EmittedResponse struct {
	SessionID string          `json:"session_id"`
	Total     uint64          `json:"total"`
	Emissions []sink.Emission `json:"emissions"`
}

func toSessionResponse(s *session.Session, _ int) SessionResponse {
	return SessionResponse{
		ID:        s.ID(),
		CreatedAt: s.CreatedAt(),
		Stats:     s.Stats(),
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := lo.Map(s.hub.List(), toSessionResponse)
	s.writeJSON(w, http.StatusOK, SessionListResponse{
		Sessions: sessions,
		Count:    len(sessions),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.writeError(w, r, apperrors.NewValidationError("invalid JSON body"))
			return
		}
	}

	sess, err := s.hub.Create(req.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	logger.FromContext(r.Context()).WithField("stream_id", sess.ID()).Info("Session created via API")
	w.Header().Set("Location", "/api/v1/sessions/"+sess.ID())
	s.writeJSON(w, http.StatusCreated, toSessionResponse(sess, 0))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.hub.Get(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toSessionResponse(sess, 0))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, err := s.hub.Get(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.hub.Close(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	if purge, _ := strconv.ParseBool(r.URL.Query().Get("purge")); purge {
		if err := sess.Purge(r.Context()); err != nil {
			s.writeError(w, r, apperrors.WrapInternalError(err, "session closed but output could not be purged"))
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubmitPacket(w http.ResponseWriter, r *http.Request) {
	sess, err := s.hub.Get(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req PacketRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPacketBody)).Decode(&req); err != nil {
		s.writeError(w, r, apperrors.NewValidationError("invalid JSON body"))
		return
	}

	kind, err := avsync.ParseKind(req.Kind)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.CapturedAtMs == nil {
		s.writeError(w, r, apperrors.NewValidationError("captured_at_ms is required"))
		return
	}
	if math.IsNaN(*req.CapturedAtMs) || math.Abs(*req.CapturedAtMs) > maxCaptureOffsetMs {
		s.writeError(w, r, apperrors.NewValidationError("captured_at_ms is out of range"))
		return
	}
	offset := time.Duration(*req.CapturedAtMs * float64(time.Millisecond))

	ctx := r.Context()
	if s.config.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.WriteTimeout)
		defer cancel()
	}

	if err := sess.Submit(ctx, kind, offset, req.Payload); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, PacketResponse{
		Accepted:   true,
		QueueDepth: sess.Stats().QueueDepth,
	})
}

func (s *Server) handleEmitted(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, err := s.hub.Get(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, r, apperrors.NewValidationError("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	s.writeJSON(w, http.StatusOK, EmittedResponse{
		SessionID: id,
		Total:     sess.Stats().Emitted.Total(),
		Emissions: sess.Recent(limit),
	})
}
