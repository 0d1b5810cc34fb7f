package scan_api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-checkin/internal/auth"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/utils"
)

// ScanService is the redemption engine as the HTTP surface sees it.
type ScanService interface {
	Redeem(ctx context.Context, code, eventID, userEmail string) (*models.RedemptionResult, error)
	RedeemBand(ctx context.Context, code, eventID, userEmail string) (*models.RedemptionResult, error)
	EventName(ctx context.Context, eventID string) string
}

// AuditReader exposes the scan log to the ops endpoints.
type AuditReader interface {
	RecentScans(ctx context.Context, eventID string, limit int) ([]models.ScanRecord, error)
	CountByOutcome(ctx context.Context, eventID string) (map[string]int, error)
}

type Handler struct {
	Scanner ScanService
	Audit   AuditReader   // optional
	Session *auth.Session // optional; supplies the acting user when the request carries none
	Logger  *logger.Logger
}

func NewHandler(scanService ScanService, audit AuditReader, log *logger.Logger) *Handler {
	return &Handler{Scanner: scanService, Audit: audit, Logger: log}
}

type scanRequest struct {
	Code      string `json:"code"`
	EventID   string `json:"eventId"`
	ScanUse   string `json:"scanUse,omitempty"`
	UserEmail string `json:"userEmail,omitempty"`
}

// Scan handles POST /scan. The acting user comes from the bearer token's
// email claim, falling back to the request body for stations that
// authenticate out of band.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", err.Error()))
		return
	}
	if req.EventID == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("eventId is required", ""))
		return
	}

	email := req.UserEmail
	if token, err := auth.ExtractTokenFromRequest(r); err == nil {
		if identity, err := auth.ExtractIdentityFromJWT(token); err == nil && identity.Email != "" {
			email = identity.Email
		}
	}
	// Stations without per-request credentials act as the signed-in user.
	if email == "" && h.Session != nil {
		if current := h.Session.Current(); current != nil {
			email = current.Email
		}
	}

	var (
		result *models.RedemptionResult
		err    error
	)
	if req.ScanUse == models.ScanUseBand {
		result, err = h.Scanner.RedeemBand(r.Context(), req.Code, req.EventID, email)
	} else {
		result, err = h.Scanner.Redeem(r.Context(), req.Code, req.EventID, email)
	}
	if err != nil {
		status := http.StatusInternalServerError
		message := "scan failed"
		if errors.Is(err, models.ErrTransientStore) {
			status = http.StatusServiceUnavailable
			message = "store temporarily unavailable, retry the scan"
		}
		utils.WriteJSON(w, status, utils.ErrorResponse(message, err.Error()))
		return
	}

	utils.WriteJSON(w, statusForOutcome(result.Outcome), utils.SuccessResponse(messageForOutcome(result), result))
}

// EventName handles GET /events/{eventID}/name, the scanner page header.
func (h *Handler) EventName(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	name := h.Scanner.EventName(r.Context(), eventID)
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("event name", map[string]string{"name": name}))
}

// RecentScans handles GET /events/{eventID}/scans.
func (h *Handler) RecentScans(w http.ResponseWriter, r *http.Request) {
	if h.Audit == nil {
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("audit log not enabled", ""))
		return
	}
	eventID := chi.URLParam(r, "eventID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := h.Audit.RecentScans(r.Context(), eventID, limit)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("failed to read scan log", err.Error()))
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("recent scans", records))
}

// ScanOutcomes handles GET /events/{eventID}/scans/outcomes.
func (h *Handler) ScanOutcomes(w http.ResponseWriter, r *http.Request) {
	if h.Audit == nil {
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("audit log not enabled", ""))
		return
	}
	eventID := chi.URLParam(r, "eventID")

	counts, err := h.Audit.CountByOutcome(r.Context(), eventID)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("failed to read scan log", err.Error()))
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("scan outcomes", counts))
}

func statusForOutcome(outcome models.RedemptionOutcome) int {
	switch outcome {
	case models.OutcomeRedeemed:
		return http.StatusOK
	case models.OutcomeInvalidCode:
		return http.StatusBadRequest
	case models.OutcomeUnknownUser:
		return http.StatusUnauthorized
	case models.OutcomePermissionDenied:
		return http.StatusForbidden
	case models.OutcomeTicketNotFound:
		return http.StatusNotFound
	case models.OutcomeEventMismatch, models.OutcomeAlreadyRedeemed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func messageForOutcome(result *models.RedemptionResult) string {
	switch result.Outcome {
	case models.OutcomeRedeemed:
		if result.Ticket != nil {
			return "ticket " + result.Ticket.DisplayID() + " redeemed"
		}
		return "ticket redeemed"
	case models.OutcomeInvalidCode:
		return "code is empty or unreadable"
	case models.OutcomeUnknownUser:
		return "acting user not found"
	case models.OutcomePermissionDenied:
		return "user may not scan this event"
	case models.OutcomeTicketNotFound:
		return "ticket does not exist for this event"
	case models.OutcomeEventMismatch:
		return "ticket belongs to a different event"
	case models.OutcomeAlreadyRedeemed:
		if result.ScannedBy != "" {
			return "ticket already used by " + result.ScannedBy
		}
		return "ticket already used"
	default:
		return string(result.Outcome)
	}
}
