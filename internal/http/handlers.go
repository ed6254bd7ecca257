package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"dailybudget/internal/core"
)

// amountField decodes a JSON money value given either as a decimal string
// ("150.50", comma separator allowed) or as a bare number.
type amountField struct {
	core.Money
}

func (a *amountField) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	m, err := core.ParseAmount(s)
	if err != nil {
		return err
	}
	a.Money = m
	return nil
}

type registerRequest struct {
	UserID    int64       `json:"user_id"`
	DailyNorm amountField `json:"daily_norm"`
	Timezone  string      `json:"timezone"`
}

type spendRequest struct {
	Amount amountField `json:"amount"`
}

type changeNormRequest struct {
	DailyNorm amountField `json:"daily_norm"`
}

type userResponse struct {
	UserID         int64  `json:"user_id"`
	DailyNorm      string `json:"daily_norm"`
	Balance        string `json:"balance"`
	ResetDay       int    `json:"reset_day"`
	Timezone       string `json:"timezone"`
	LastRecalcDate string `json:"last_recalc_date"`
}

type statusResponse struct {
	BaseNorm       string `json:"base_norm"`
	Balance        string `json:"balance"`
	AvailableToday string `json:"available_today"`
	SpentToday     string `json:"spent_today"`
	RemainingToday string `json:"remaining_today"`
}

type errorResponse struct {
	Error    string `json:"error"`
	ResetDay int    `json:"reset_day,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id must be positive")
		return
	}

	user, err := s.budget.Register(r.Context(), req.UserID, req.DailyNorm.Money, req.Timezone, s.now())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, userResponse{
		UserID:         user.ID,
		DailyNorm:      user.DailyNorm.String(),
		Balance:        user.Balance.String(),
		ResetDay:       user.ResetDay,
		Timezone:       user.Timezone,
		LastRecalcDate: user.LastRecalcDate.String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	status, err := s.budget.Status(r.Context(), userID, s.now())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		BaseNorm:       status.BaseNorm.String(),
		Balance:        status.Balance.String(),
		AvailableToday: status.AvailableToday.String(),
		SpentToday:     status.SpentToday.String(),
		RemainingToday: status.RemainingToday.String(),
	})
}

func (s *Server) handleSpend(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	var req spendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.budget.Spend(r.Context(), userID, req.Amount.Money, s.now()); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleChangeNorm(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	var req changeNormRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.budget.ChangeDailyNorm(r.Context(), userID, req.DailyNorm.Money, s.now())
	if errors.Is(err, core.ErrNormLocked) {
		resetDay, dayErr := s.budget.ResetDay(r.Context(), userID)
		if dayErr != nil {
			s.writeServiceError(w, r, dayErr)
			return
		}
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:    core.ErrNormLocked.Error(),
			ResetDay: resetDay,
		})
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	if err := s.budget.Delete(r.Context(), userID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	if err := s.budget.Deactivate(r.Context(), userID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func pathUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return id, true
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrUserNotFound):
		writeError(w, http.StatusNotFound, core.ErrUserNotFound.Error())
	case errors.Is(err, core.ErrUserExists):
		writeError(w, http.StatusConflict, core.ErrUserExists.Error())
	case errors.Is(err, core.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, core.ErrInvalidAmount.Error())
	default:
		slog.ErrorContext(r.Context(), "Request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
