package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talka-ai/talka-backend/internal/config"
	"github.com/talka-ai/talka-backend/internal/middleware"
	"github.com/talka-ai/talka-backend/internal/models"
	"github.com/talka-ai/talka-backend/internal/routes"
	"github.com/talka-ai/talka-backend/internal/services"
	"github.com/talka-ai/talka-backend/internal/storage"
)

const (
	testSecret = "test-secret"
	testOrigin = "https://www.facebook.com"
)

// stubGraph answers every platform call successfully
type stubGraph struct{}

func (stubGraph) ExchangeCode(context.Context, string) (string, error) { return "token-1", nil }
func (stubGraph) RegisterPhone(context.Context, string, string, string) error { return nil }
func (stubGraph) SubscribeApp(context.Context, string, string) error { return nil }
func (stubGraph) ListPhoneNumbers(context.Context, string, string) ([]services.GraphPhoneNumber, error) {
	return []services.GraphPhoneNumber{{ID: "pn-1", DisplayPhoneNumber: "+1 555 123 4567"}}, nil
}
func (stubGraph) GetPhoneNumber(context.Context, string, string) (*services.GraphPhoneNumber, error) {
	return &services.GraphPhoneNumber{ID: "pn-1", DisplayPhoneNumber: "+1 555 123 4567"}, nil
}
func (stubGraph) RequestSync(context.Context, string, string, string) (string, error) {
	return "req-1", nil
}

func newTestApp(t *testing.T) (*fiber.App, storage.Store) {
	t.Helper()
	t.Setenv("USE_MEMORY_STORE", "true")

	cfg := &config.Config{
		Signup: config.Signup{
			AllowedOrigins: []string{testOrigin},
			SyncDelay:      time.Millisecond,
			SessionTTL:     time.Hour,
		},
		Auth: config.Auth{JWTSecret: testSecret},
	}

	store := storage.NewMemoryStore()
	sessions := services.NewSignupManager(cfg.Signup.SessionTTL)
	orch := services.NewOrchestrator(store, stubGraph{}, sessions, cfg.Signup.SyncDelay)

	app := fiber.New()
	routes.SetupRoutes(app, cfg, store, orch)
	return app, store
}

func bearerToken(t *testing.T, orgID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.OrgClaims{
		OrganizationID: orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func doRequest(t *testing.T, app *fiber.App, method, path, auth string, body any, headers map[string]string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestAuthRequired(t *testing.T) {
	app, _ := newTestApp(t)

	resp := doRequest(t, app, "POST", "/api/signup/start", "", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, app, "POST", "/api/signup/start", "Basic abc", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, app, "POST", "/api/signup/start", "Bearer not-a-token", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	// a token signed with the wrong secret is rejected
	badToken := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.OrgClaims{OrganizationID: "org-1"})
	signed, err := badToken.SignedString([]byte("other-secret"))
	require.NoError(t, err)
	resp = doRequest(t, app, "POST", "/api/signup/start", "Bearer "+signed, nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestHealthIsPublic(t *testing.T) {
	app, _ := newTestApp(t)

	resp := doRequest(t, app, "GET", "/health", "", nil, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "healthy", body["status"])
}

func TestStartAndGetSession(t *testing.T) {
	app, _ := newTestApp(t)
	auth := bearerToken(t, "org-1")

	resp := doRequest(t, app, "POST", "/api/signup/start", auth, nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "initial", body["state"])
	assert.Equal(t, "org-1", body["organization_id"])

	resp = doRequest(t, app, "GET", "/api/signup/session", auth, nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	// tokens never leak into the session payload
	body = decodeBody(t, resp)
	assert.NotContains(t, body, "access_token")
	assert.NotContains(t, body, "grant_code")
	assert.NotContains(t, body, "pin")
}

func TestGetSessionBeforeStart(t *testing.T) {
	app, _ := newTestApp(t)
	auth := bearerToken(t, "org-none")

	resp := doRequest(t, app, "GET", "/api/signup/session", auth, nil, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestConsentEventOriginFiltering(t *testing.T) {
	app, _ := newTestApp(t)
	auth := bearerToken(t, "org-1")
	doRequest(t, app, "POST", "/api/signup/start", auth, nil, nil)

	event := fiber.Map{
		"type":  "WA_EMBEDDED_SIGNUP",
		"event": "FINISH",
		"data":  fiber.Map{"phone_number_id": "pn-1", "waba_id": "waba-1"},
	}

	// unlisted origin: dropped silently
	resp := doRequest(t, app, "POST", "/api/signup/consent", auth, event,
		map[string]string{"Origin": "https://evil.example"})
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	// no origin header at all: also dropped
	resp = doRequest(t, app, "POST", "/api/signup/consent", auth, event, nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp = doRequest(t, app, "GET", "/api/signup/session", auth, nil, nil)
	body := decodeBody(t, resp)
	assert.Equal(t, "initial", body["state"])
	assert.Equal(t, "", body["branch"])

	// the allow-listed origin goes through and decides the branch
	resp = doRequest(t, app, "POST", "/api/signup/consent", auth, event,
		map[string]string{"Origin": testOrigin})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body = decodeBody(t, resp)
	assert.Equal(t, "fresh", body["branch"])
	assert.Equal(t, "pn-1", body["phone_number_id"])
}

func TestConsentEventMalformedBodyDropped(t *testing.T) {
	app, _ := newTestApp(t)
	auth := bearerToken(t, "org-1")
	doRequest(t, app, "POST", "/api/signup/start", auth, nil, nil)

	req := httptest.NewRequest("POST", "/api/signup/consent", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", auth)
	req.Header.Set("Origin", testOrigin)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestSetCodeAdvancesSession(t *testing.T) {
	app, _ := newTestApp(t)
	auth := bearerToken(t, "org-1")
	doRequest(t, app, "POST", "/api/signup/start", auth, nil, nil)

	resp := doRequest(t, app, "POST", "/api/signup/code", auth, fiber.Map{"code": "grant-1"}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "code_received", body["state"])

	// missing code is a precondition failure, not a crash
	resp = doRequest(t, app, "POST", "/api/signup/code", auth, fiber.Map{"code": ""}, nil)
	assert.Equal(t, fiber.StatusPreconditionFailed, resp.StatusCode)
}

func TestRegisterPhoneRejectsBadPIN(t *testing.T) {
	app, _ := newTestApp(t)
	auth := bearerToken(t, "org-1")
	doRequest(t, app, "POST", "/api/signup/start", auth, nil, nil)

	resp := doRequest(t, app, "POST", "/api/signup/register", auth, fiber.Map{"pin": "12"}, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestExchangeInWrongStateConflicts(t *testing.T) {
	app, _ := newTestApp(t)
	auth := bearerToken(t, "org-1")
	doRequest(t, app, "POST", "/api/signup/start", auth, nil, nil)

	resp := doRequest(t, app, "POST", "/api/signup/exchange", auth, nil, nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestSelectAssistantWithoutAssistants(t *testing.T) {
	app, _ := newTestApp(t)
	auth := bearerToken(t, "org-1")
	doRequest(t, app, "POST", "/api/signup/start", auth, nil, nil)

	resp := doRequest(t, app, "POST", "/api/signup/assistant", auth, fiber.Map{"assistant_id": "asst-1"}, nil)
	require.Equal(t, fiber.StatusPreconditionFailed, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Contains(t, body["error"], "Create an assistant first")
}

func TestRestartDiscardsSession(t *testing.T) {
	app, _ := newTestApp(t)
	auth := bearerToken(t, "org-1")
	doRequest(t, app, "POST", "/api/signup/start", auth, nil, nil)
	doRequest(t, app, "POST", "/api/signup/code", auth, fiber.Map{"code": "grant-1"}, nil)

	resp := doRequest(t, app, "POST", "/api/signup/restart", auth, nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = doRequest(t, app, "GET", "/api/signup/session", auth, nil, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestAssistantsCreateAndList(t *testing.T) {
	app, _ := newTestApp(t)
	auth := bearerToken(t, "org-1")
	otherAuth := bearerToken(t, "org-2")

	resp := doRequest(t, app, "POST", "/api/assistants/", auth,
		fiber.Map{"name": "Support", "description": "Tier one"}, nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.NotEmpty(t, body["assistant_id"])

	resp = doRequest(t, app, "POST", "/api/assistants/", auth, fiber.Map{"name": ""}, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = doRequest(t, app, "GET", "/api/assistants/", auth, nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var listed []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	assert.Len(t, listed, 1)

	// other tenants never see them
	resp = doRequest(t, app, "GET", "/api/assistants/", otherAuth, nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	listed = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	assert.Empty(t, listed)
}

func TestChannelsScopedToOrganization(t *testing.T) {
	app, store := newTestApp(t)
	auth := bearerToken(t, "org-1")
	otherAuth := bearerToken(t, "org-2")

	created, err := store.CreateChannel(&models.Channel{
		OrganizationID: "org-1",
		PhoneNumberID:  "pn-1",
		PhoneNumber:    "15551234567",
	})
	require.NoError(t, err)

	resp := doRequest(t, app, "GET", "/api/channels/", auth, nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var listed []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	require.Len(t, listed, 1)
	// the platform token stays server-side
	assert.NotContains(t, listed[0], "access_token")

	resp = doRequest(t, app, "GET", "/api/channels/"+created.ChannelID, auth, nil, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	// cross-tenant lookups 404 rather than 403, to avoid existence leaks
	resp = doRequest(t, app, "GET", "/api/channels/"+created.ChannelID, otherAuth, nil, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestFullFreshFlowOverHTTP(t *testing.T) {
	app, store := newTestApp(t)
	auth := bearerToken(t, "org-1")

	_, err := store.CreateAssistant(&models.Assistant{OrganizationID: "org-1", Name: "Support"})
	require.NoError(t, err)

	doRequest(t, app, "POST", "/api/signup/start", auth, nil, nil)

	resp := doRequest(t, app, "POST", "/api/signup/consent", auth, fiber.Map{
		"type":  "WA_EMBEDDED_SIGNUP",
		"event": "FINISH",
		"data":  fiber.Map{"phone_number_id": "pn-1", "waba_id": "waba-1"},
	}, map[string]string{"Origin": testOrigin})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = doRequest(t, app, "POST", "/api/signup/code", auth, fiber.Map{"code": "grant-1"}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = doRequest(t, app, "POST", "/api/signup/exchange", auth, nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = doRequest(t, app, "POST", "/api/signup/register", auth, fiber.Map{"pin": "123456"}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = doRequest(t, app, "POST", "/api/signup/subscribe", auth, nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "confirming_phone", body["state"])

	resp = doRequest(t, app, "POST", "/api/signup/phone", auth,
		fiber.Map{"phone_number": "+1 555 123 4567"}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Equal(t, "selecting_assistant", body["state"])

	assistants, err := store.GetAssistantsByOrganization("org-1")
	require.NoError(t, err)
	resp = doRequest(t, app, "POST", "/api/signup/assistant", auth,
		fiber.Map{"assistant_id": assistants[0].AssistantID}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Equal(t, "complete", body["state"])

	channels, err := store.GetChannelsByOrganization("org-1")
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, models.ChannelStatusRegistered, channels[0].Status)
}
