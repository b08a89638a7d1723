package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rustyeddy/trailguard/market"
	"github.com/rustyeddy/trailguard/model"
	"github.com/rustyeddy/trailguard/processor"
	"github.com/rustyeddy/trailguard/store"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type failedRequest struct {
	Reason string `json:"reason"`
}

type closedRequest struct {
	ConnectionID string    `json:"connection_id"`
	Profit       float64   `json:"profit"`
	ClosedAt     time.Time `json:"closed_at"`
}

type heartbeatRequest struct {
	Equity float64 `json:"equity"`
}

type signalResponse struct {
	SignalID string               `json:"signal_id"`
	Queued   int                  `json:"queued"`
	Results  []connectionResponse `json:"results"`
}

type connectionResponse struct {
	ConnectionID  string  `json:"connection_id"`
	Allowed       bool    `json:"allowed"`
	Code          string  `json:"code,omitempty"`
	Reason        string  `json:"reason,omitempty"`
	Lot           float64 `json:"lot,omitempty"`
	InstructionID string  `json:"instruction_id,omitempty"`
	Error         string  `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, model.ErrInstructionResolved):
		return http.StatusConflict, "ALREADY_RESOLVED"
	case errors.Is(err, model.ErrTradeClosed):
		return http.StatusConflict, "TRADE_CLOSED"
	case errors.Is(err, store.ErrVersionConflict):
		return http.StatusConflict, "VERSION_CONFLICT"
	case errors.Is(err, model.ErrMalformedSignal):
		return http.StatusBadRequest, "MALFORMED_SIGNAL"
	case errors.Is(err, processor.ErrMissingTicket):
		return http.StatusBadRequest, "MISSING_TICKET"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "BAD_REQUEST"})
}

func (s *Server) pendingInstructions(w http.ResponseWriter, r *http.Request) {
	connID := r.URL.Query().Get("connection_id")
	pending, err := s.store.ListPendingInstructions(r.Context(), connID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if pending == nil {
		pending = []*model.Instruction{}
	}
	writeJSON(w, http.StatusOK, pending)
}

func (s *Server) instructionExecuted(w http.ResponseWriter, r *http.Request) {
	var fill processor.Fill
	if r.ContentLength != 0 {
		if err := decode(w, r, &fill); err != nil {
			s.badRequest(w, err)
			return
		}
	}
	t, err := s.proc.ReportExecuted(r.Context(), mux.Vars(r)["id"], fill, s.now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if t == nil {
		writeJSON(w, http.StatusNoContent, nil)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) instructionFailed(w http.ResponseWriter, r *http.Request) {
	var req failedRequest
	if err := decode(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	if err := s.proc.ReportFailed(r.Context(), mux.Vars(r)["id"], req.Reason, s.now()); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) tradeClosed(w http.ResponseWriter, r *http.Request) {
	var req closedRequest
	if err := decode(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	if req.ConnectionID == "" {
		s.badRequest(w, errors.New("connection_id is required"))
		return
	}
	t, err := s.proc.ReportClosed(r.Context(), req.ConnectionID, mux.Vars(r)["ticket"], req.Profit, req.ClosedAt, s.now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			s.badRequest(w, err)
			return
		}
	}
	events, err := s.proc.Heartbeat(r.Context(), mux.Vars(r)["id"], req.Equity, s.now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.dispatch(r.Context(), events)
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) submitSignal(w http.ResponseWriter, r *http.Request) {
	var sig model.Signal
	if err := decode(w, r, &sig); err != nil {
		s.badRequest(w, err)
		return
	}
	if d, err := market.ParseDirection(string(sig.Direction)); err == nil {
		sig.Direction = d
	}
	report, err := s.proc.ProcessSignal(r.Context(), sig, s.now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.dispatch(r.Context(), report.Events)

	resp := signalResponse{SignalID: report.Signal.ID, Queued: report.Queued(), Results: []connectionResponse{}}
	for _, res := range report.Results {
		cr := connectionResponse{
			ConnectionID: res.ConnectionID,
			Allowed:      res.Allowed,
			Code:         res.Code,
			Reason:       res.Reason,
			Lot:          res.Lot,
		}
		if res.Instruction != nil {
			cr.InstructionID = res.Instruction.ID
		}
		if res.Err != nil {
			cr.Error = res.Err.Error()
		}
		resp.Results = append(resp.Results, cr)
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
