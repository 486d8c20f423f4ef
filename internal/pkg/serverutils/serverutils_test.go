package serverutils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"interview-copilot-be/internal/dto"
	"interview-copilot-be/internal/pkg/logger"
	"interview-copilot-be/pkg/copilot/latency"
	"interview-copilot-be/pkg/copilot/quota"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newTestApp(handler fiber.Handler, middleware ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: NewErrorHandler(logger.NewNopLogger())})
	handlers := append(middleware, handler)
	app.Get("/t", handlers...)
	return app
}

func doGet(t *testing.T, app *fiber.App, header string) (int, ErrorResponse) {
	t.Helper()
	req := httptest.NewRequest("GET", "/t", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	res, err := app.Test(req)
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	var out ErrorResponse
	if len(body) > 0 {
		require.NoError(t, json.Unmarshal(body, &out))
	}
	return res.StatusCode, out
}

func TestErrorHandlerMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"app error", ErrSessionNotFound(), 404, "session_not_found"},
		{"wrapped app error", fmt.Errorf("stop: %w", ErrSessionActive()), 409, "session_active"},
		{"rate limited", ErrRateLimited(), 429, "rate_limited"},
		{"invalid confirmation", ErrInvalidConfirmation(), 400, "invalid_confirmation"},
		{"quota", &dto.QuotaExceededError{Quota: quota.Snapshot{Daily: quota.Window{Used: 30, Limit: 30}}}, 403, "quota_exceeded"},
		{"fiber error", fiber.ErrBadRequest, 400, "invalid_body"},
		{"unknown", errors.New("boom"), 500, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(func(c *fiber.Ctx) error { return tt.err })
			status, body := doGet(t, app, "")
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, body.Error)
			assert.False(t, body.Success)
		})
	}
}

func TestErrorHandlerHidesStoreDetail(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint", ConstraintName: "idx_copilot_usage_session"}
	app := newTestApp(func(c *fiber.Ctx) error { return fmt.Errorf("record usage: %w", pgErr) })

	status, body := doGet(t, app, "")

	assert.Equal(t, 500, status)
	assert.Equal(t, "internal_error", body.Error)
	_, err := uuid.Parse(body.CorrelationId)
	assert.NoError(t, err)
	assert.Empty(t, body.Message)
	assert.Nil(t, body.Data)
}

func TestQuotaExceededCarriesWindows(t *testing.T) {
	qe := &dto.QuotaExceededError{Quota: quota.Snapshot{
		Monthly:    quota.Window{Used: 10, Limit: 600},
		Daily:      quota.Window{Used: 120, Limit: 120},
		PerSession: quota.Window{Used: 0, Limit: 60},
	}}
	app := newTestApp(func(c *fiber.Ctx) error { return qe })

	req := httptest.NewRequest("GET", "/t", nil)
	res, err := app.Test(req)
	require.NoError(t, err)

	var body struct {
		Error string                `json:"error"`
		Data  dto.QuotaExceededData `json:"data"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "quota_exceeded", body.Error)
	assert.Equal(t, 120, body.Data.Daily.Used)
	assert.Equal(t, []string{"daily"}, body.Data.Blocking)
}

func TestConsentErrorCarriesReason(t *testing.T) {
	app := newTestApp(func(c *fiber.Ctx) error { return ErrConsentRequired("consent_revoked") })

	req := httptest.NewRequest("GET", "/t", nil)
	res, err := app.Test(req)
	require.NoError(t, err)

	var body struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Data    struct {
			Reason string `json:"reason"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, 403, res.StatusCode)
	assert.False(t, body.Success)
	assert.Equal(t, "forbidden", body.Error)
	assert.Equal(t, "consent_revoked", body.Data.Reason)
}

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestJwtMiddleware(t *testing.T) {
	userID := uuid.NewString()
	valid := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"user_id": userID,
		"role":    "admin",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	expired := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})
	wrongKey := signToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"user_id": userID})
	badSubject := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"user_id": "not-a-uuid"})

	ok := func(c *fiber.Ctx) error {
		id, err := UserID(c)
		if err != nil {
			return err
		}
		return c.JSON(SuccessResponse("ok", id.String()))
	}

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid", "Bearer " + valid, 200},
		{"missing", "", 401},
		{"not bearer", "Basic abc", 401},
		{"expired", "Bearer " + expired, 401},
		{"wrong key", "Bearer " + wrongKey, 401},
		{"bad subject", "Bearer " + badSubject, 401},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(ok, NewJwtMiddleware(testSecret))
			status, body := doGet(t, app, tt.header)
			assert.Equal(t, tt.wantStatus, status)
			if tt.wantStatus == 401 {
				assert.Equal(t, "unauthorized", body.Error)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	user := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"user_id": uuid.NewString(), "role": "user"})
	admin := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"user_id": uuid.NewString(), "role": "admin"})
	app := newTestApp(func(c *fiber.Ctx) error { return c.SendStatus(204) }, NewJwtMiddleware(testSecret), RequireRole("admin"))

	status, body := doGet(t, app, "Bearer "+user)
	assert.Equal(t, 403, status)
	assert.Equal(t, "forbidden", body.Error)

	status, _ = doGet(t, app, "Bearer "+admin)
	assert.Equal(t, 204, status)
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(dto.ConsentRequest{Action: "grant"}))

	err := ValidateRequest(dto.ConsentRequest{Action: "maybe"})
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "invalid_body", appErr.Code)
	assert.Equal(t, []FieldError{{Field: "Action", Rule: "oneof"}}, appErr.Data)
}

func TestLatencyMiddlewareTearsDown(t *testing.T) {
	tracker := latency.NewTracker(nil)
	var seen *latency.Timeline

	app := fiber.New(fiber.Config{ErrorHandler: NewErrorHandler(logger.NewNopLogger())})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(RequestIDKey, "req-1")
		return c.Next()
	})
	app.Use(LatencyMiddleware(tracker, logger.NewNopLogger()))
	app.Get("/t", func(c *fiber.Ctx) error {
		seen = latency.FromContext(c.UserContext())
		seen.Start(latency.StageLoad)
		seen.End(latency.StageLoad)
		assert.Equal(t, 1, tracker.Len())
		return ErrSessionNotFound()
	})

	res, err := app.Test(httptest.NewRequest("GET", "/t", nil))
	require.NoError(t, err)

	assert.Equal(t, 404, res.StatusCode)
	require.NotNil(t, seen)
	assert.Equal(t, 0, tracker.Len())
	assert.Nil(t, tracker.Get("req-1"))
}
