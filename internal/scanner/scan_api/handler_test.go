package scan_api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-checkin/internal/auth"
	"ms-checkin/internal/models"
	"ms-checkin/internal/utils"
)

// fakeScanService records the arguments of the last call and replies with a
// canned result.
type fakeScanService struct {
	result    *models.RedemptionResult
	err       error
	lastCode  string
	lastEvent string
	lastEmail string
	lastBand  bool
}

func (f *fakeScanService) Redeem(ctx context.Context, code, eventID, userEmail string) (*models.RedemptionResult, error) {
	f.lastCode, f.lastEvent, f.lastEmail, f.lastBand = code, eventID, userEmail, false
	return f.result, f.err
}

func (f *fakeScanService) RedeemBand(ctx context.Context, code, eventID, userEmail string) (*models.RedemptionResult, error) {
	f.lastCode, f.lastEvent, f.lastEmail, f.lastBand = code, eventID, userEmail, true
	return f.result, f.err
}

func (f *fakeScanService) EventName(ctx context.Context, eventID string) string {
	return "Summer Fest"
}

type fakeAuditReader struct {
	records []models.ScanRecord
	counts  map[string]int
	err     error
}

func (f *fakeAuditReader) RecentScans(ctx context.Context, eventID string, limit int) ([]models.ScanRecord, error) {
	return f.records, f.err
}

func (f *fakeAuditReader) CountByOutcome(ctx context.Context, eventID string) (map[string]int, error) {
	return f.counts, f.err
}

func newRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/scan", h.Scan)
	r.Get("/events/{eventID}/name", h.EventName)
	r.Get("/events/{eventID}/scans", h.RecentScans)
	r.Get("/events/{eventID}/scans/outcomes", h.ScanOutcomes)
	return r
}

func postScan(t *testing.T, router http.Handler, body map[string]string, headers map[string]string) (*httptest.ResponseRecorder, utils.APIResponse) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/scan", bytes.NewReader(raw))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp utils.APIResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec, resp
}

func bearerToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return "Bearer " + token
}

func TestScanSuccess(t *testing.T) {
	svc := &fakeScanService{result: &models.RedemptionResult{
		Outcome: models.OutcomeRedeemed,
		EventID: "E1",
		Code:    "T1",
	}}
	router := newRouter(NewHandler(svc, nil, nil))

	rec, resp := postScan(t, router, map[string]string{
		"code": "T1", "eventId": "E1", "userEmail": "staff@x.com",
	}, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "ticket redeemed", resp.Message)
	assert.Equal(t, "T1", svc.lastCode)
	assert.Equal(t, "E1", svc.lastEvent)
	assert.Equal(t, "staff@x.com", svc.lastEmail)
	assert.False(t, svc.lastBand)
}

func TestScanBearerTokenOverridesBodyEmail(t *testing.T) {
	svc := &fakeScanService{result: &models.RedemptionResult{Outcome: models.OutcomeRedeemed}}
	router := newRouter(NewHandler(svc, nil, nil))

	token := bearerToken(t, jwt.MapClaims{"sub": "u1", "email": "Token@X.com"})
	_, _ = postScan(t, router, map[string]string{
		"code": "T1", "eventId": "E1", "userEmail": "body@x.com",
	}, map[string]string{"Authorization": token})

	assert.Equal(t, "token@x.com", svc.lastEmail)
}

func TestScanUnparsableTokenFallsBackToBody(t *testing.T) {
	svc := &fakeScanService{result: &models.RedemptionResult{Outcome: models.OutcomeRedeemed}}
	router := newRouter(NewHandler(svc, nil, nil))

	_, _ = postScan(t, router, map[string]string{
		"code": "T1", "eventId": "E1", "userEmail": "body@x.com",
	}, map[string]string{"Authorization": "Bearer not-a-jwt"})

	assert.Equal(t, "body@x.com", svc.lastEmail)
}

func TestScanFallsBackToSessionUser(t *testing.T) {
	svc := &fakeScanService{result: &models.RedemptionResult{Outcome: models.OutcomeRedeemed}}
	h := NewHandler(svc, nil, nil)
	h.Session = auth.NewSession()
	h.Session.SignIn(&models.User{ID: "u1", Email: "station@x.com"})
	router := newRouter(h)

	_, _ = postScan(t, router, map[string]string{
		"code": "T1", "eventId": "E1",
	}, nil)

	assert.Equal(t, "station@x.com", svc.lastEmail)
}

func TestScanBodyEmailWinsOverSession(t *testing.T) {
	svc := &fakeScanService{result: &models.RedemptionResult{Outcome: models.OutcomeRedeemed}}
	h := NewHandler(svc, nil, nil)
	h.Session = auth.NewSession()
	h.Session.SignIn(&models.User{ID: "u1", Email: "station@x.com"})
	router := newRouter(h)

	_, _ = postScan(t, router, map[string]string{
		"code": "T1", "eventId": "E1", "userEmail": "body@x.com",
	}, nil)

	assert.Equal(t, "body@x.com", svc.lastEmail)
}

func TestScanSuccessMessageNamesTicket(t *testing.T) {
	svc := &fakeScanService{result: &models.RedemptionResult{
		Outcome: models.OutcomeRedeemed,
		Ticket:  &models.Ticket{Code: "abc123", TicketNumber: "VIP-042"},
	}}
	router := newRouter(NewHandler(svc, nil, nil))

	_, resp := postScan(t, router, map[string]string{
		"code": "abc123", "eventId": "E1", "userEmail": "staff@x.com",
	}, nil)

	// The printed ticket number is the identifier staff recognize; the raw
	// code only appears when there is no number.
	assert.Equal(t, "ticket VIP-042 redeemed", resp.Message)
}

func TestScanBandRouting(t *testing.T) {
	svc := &fakeScanService{result: &models.RedemptionResult{Outcome: models.OutcomeRedeemed, ScanUse: models.ScanUseBand}}
	router := newRouter(NewHandler(svc, nil, nil))

	_, _ = postScan(t, router, map[string]string{
		"code": "B1", "eventId": "E1", "scanUse": "band", "userEmail": "staff@x.com",
	}, nil)

	assert.True(t, svc.lastBand)
}

func TestScanStatusPerOutcome(t *testing.T) {
	tests := []struct {
		outcome models.RedemptionOutcome
		status  int
	}{
		{models.OutcomeRedeemed, http.StatusOK},
		{models.OutcomeInvalidCode, http.StatusBadRequest},
		{models.OutcomeUnknownUser, http.StatusUnauthorized},
		{models.OutcomePermissionDenied, http.StatusForbidden},
		{models.OutcomeTicketNotFound, http.StatusNotFound},
		{models.OutcomeEventMismatch, http.StatusConflict},
		{models.OutcomeAlreadyRedeemed, http.StatusConflict},
	}
	for _, tc := range tests {
		t.Run(string(tc.outcome), func(t *testing.T) {
			svc := &fakeScanService{result: &models.RedemptionResult{Outcome: tc.outcome}}
			router := newRouter(NewHandler(svc, nil, nil))

			rec, _ := postScan(t, router, map[string]string{
				"code": "T1", "eventId": "E1", "userEmail": "staff@x.com",
			}, nil)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestScanAlreadyRedeemedNamesFirstScanner(t *testing.T) {
	svc := &fakeScanService{result: &models.RedemptionResult{
		Outcome:   models.OutcomeAlreadyRedeemed,
		ScannedBy: "first@x.com",
	}}
	router := newRouter(NewHandler(svc, nil, nil))

	rec, resp := postScan(t, router, map[string]string{
		"code": "T1", "eventId": "E1", "userEmail": "second@x.com",
	}, nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ticket already used by first@x.com", resp.Message)
}

func TestScanMissingEventID(t *testing.T) {
	svc := &fakeScanService{}
	router := newRouter(NewHandler(svc, nil, nil))

	rec, resp := postScan(t, router, map[string]string{"code": "T1"}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
	assert.Empty(t, svc.lastCode)
}

func TestScanInvalidBody(t *testing.T) {
	router := newRouter(NewHandler(&fakeScanService{}, nil, nil))

	req := httptest.NewRequest(http.MethodPost, "/scan", bytes.NewReader([]byte("{broken")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScanTransientStoreFailure(t *testing.T) {
	svc := &fakeScanService{err: models.ErrTransientStore}
	router := newRouter(NewHandler(svc, nil, nil))

	rec, resp := postScan(t, router, map[string]string{
		"code": "T1", "eventId": "E1", "userEmail": "staff@x.com",
	}, nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "retry")
}

func TestEventName(t *testing.T) {
	router := newRouter(NewHandler(&fakeScanService{}, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/events/E1/name", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp utils.APIResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Summer Fest", data["name"])
}

func TestRecentScansWithoutAuditLog(t *testing.T) {
	router := newRouter(NewHandler(&fakeScanService{}, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/events/E1/scans", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecentScans(t *testing.T) {
	audit := &fakeAuditReader{records: []models.ScanRecord{{
		ID: "r1", EventID: "E1", Code: "T1",
		Outcome: string(models.OutcomeRedeemed), ScannedAt: time.Now(),
	}}}
	router := newRouter(NewHandler(&fakeScanService{}, audit, nil))

	req := httptest.NewRequest(http.MethodGet, "/events/E1/scans?limit=10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp utils.APIResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
}

func TestScanOutcomes(t *testing.T) {
	audit := &fakeAuditReader{counts: map[string]int{"redeemed": 3, "already_redeemed": 1}}
	router := newRouter(NewHandler(&fakeScanService{}, audit, nil))

	req := httptest.NewRequest(http.MethodGet, "/events/E1/scans/outcomes", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp utils.APIResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(3), data["redeemed"])
}
