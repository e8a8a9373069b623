package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/raterudder/franklinwh/pkg/franklin"
	"github.com/raterudder/franklinwh/pkg/log"
	"github.com/raterudder/franklinwh/pkg/types"
)

const maxBodyBytes = 1 << 20

type setModeRequest struct {
	Mode string   `json:"mode"`
	SOC  *float64 `json:"soc"`
}

type setModeResponse struct {
	Mode    types.ModeName `json:"mode"`
	SOC     float64        `json:"soc"`
	Code    int            `json:"code"`
	Message string         `json:"message"`
}

type setSwitchesRequest struct {
	Switches []*bool `json:"switches"`
}

type setSwitchesResponse struct {
	Switches types.SwitchState `json:"switches"`
	Result   map[string]any    `json:"result"`
}

// recordAction stores a control write. Failures are logged since the write
// itself already happened.
func (s *Server) recordAction(ctx context.Context, action types.Action) {
	if err := s.storage.InsertAction(ctx, action); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to insert action", slog.String("kind", string(action.Kind)), slog.Any("error", err))
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		log.Ctx(r.Context()).WarnContext(r.Context(), "failed to decode request body", slog.Any("error", err))
		writeJSONError(w, "invalid request", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req setModeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	name, err := types.ParseModeName(req.Mode)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	mode, err := franklin.ModeByName(name)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.SOC != nil {
		if *req.SOC < 0 || *req.SOC > 100 {
			writeJSONError(w, "soc must be between 0 and 100", http.StatusBadRequest)
			return
		}
		mode = mode.WithSOC(*req.SOC)
	}

	log.Ctx(ctx).InfoContext(ctx, "setting mode", slog.String("mode", string(name)), slog.Float64("soc", mode.SOC), slog.String("email", getEmail(r)))

	soc := mode.SOC
	action := types.Action{
		Timestamp: s.now(),
		GatewayID: s.system.GatewayID(),
		Kind:      types.ActionKindSetMode,
		Mode:      name,
		SOC:       &soc,
	}
	fr, err := s.system.SetMode(ctx, mode)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to set mode", slog.Any("error", err))
		action.Message = err.Error()
		s.recordAction(ctx, action)
		writeFranklinError(w, err)
		return
	}
	action.Code = fr.Code
	action.Message = fr.Message
	s.recordAction(ctx, action)
	s.mode.Invalidate()

	resp := setModeResponse{Mode: name, SOC: mode.SOC, Code: fr.Code, Message: fr.Message}
	if fr.Code != 200 {
		log.Ctx(ctx).ErrorContext(ctx, "mode update rejected", slog.Int("code", fr.Code), slog.String("message", fr.Message))
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetSwitches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req setSwitchesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Switches) != types.SwitchCount {
		writeJSONError(w, "switches must have 3 entries", http.StatusBadRequest)
		return
	}
	var desired types.SwitchState
	copy(desired[:], req.Switches)
	if !desired.Changes() {
		writeJSONError(w, "no switches to change", http.StatusBadRequest)
		return
	}

	log.Ctx(ctx).InfoContext(ctx, "setting switches", slog.Any("switches", desired), slog.String("email", getEmail(r)))

	action := types.Action{
		Timestamp: s.now(),
		GatewayID: s.system.GatewayID(),
		Kind:      types.ActionKindSetSwitches,
		Switches:  desired,
	}
	res, err := s.system.SetSwitchState(ctx, desired)
	if err != nil {
		if errors.Is(err, franklin.ErrSwitchesMerged) {
			// nothing was written
			writeFranklinError(w, err)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to set switches", slog.Any("error", err))
		action.Message = err.Error()
		s.recordAction(ctx, action)
		writeFranklinError(w, err)
		return
	}
	action.Code = 200
	s.recordAction(ctx, action)
	s.switches.Invalidate()
	s.stats.Invalidate()

	writeJSON(w, http.StatusOK, setSwitchesResponse{Switches: desired, Result: res})
}
