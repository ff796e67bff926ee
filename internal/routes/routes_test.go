package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/frantchessico/prato-frio-filme/internal/config"
	"github.com/frantchessico/prato-frio-filme/internal/logging"
)

func testConfig() config.Config {
	return config.Config{
		AppName:          "PratoFrio",
		AppEnv:           "development",
		Port:             "8080",
		JWTSecret:        "test-secret",
		TokenTTL:         time.Hour,
		DonationMinimum:  99,
		DonationValidity: 72 * time.Hour,
		PreviewLimit:     720 * time.Second,
		LoginRateLimit:   5,
		AllowedCountry:   "MZ",
		GeoBlockEnabled:  false,
	}
}

func newApp(t *testing.T) *fiber.App {
	t.Helper()
	app := fiber.New()
	watchSvc, err := Setup(app, Deps{Cfg: testConfig(), Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	t.Cleanup(watchSvc.Shutdown)
	return app
}

func request(t *testing.T, app *fiber.App, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Buffer
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewBuffer(payload)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestDonationFlowEndToEnd(t *testing.T) {
	app := newApp(t)

	creds := map[string]any{
		"phoneNumber": "+258841234567",
		"firstName":   "Ana",
		"lastName":    "Macamo",
		"password":    "segredo1",
	}

	// Register and come back with a token.
	resp, body := request(t, app, http.MethodPost, "/api/auth/register", "", creds)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: %d %v", resp.StatusCode, body)
	}
	user, _ := body["user"].(map[string]any)
	if user["hasDonated"] != false {
		t.Fatalf("fresh account already entitled: %v", body)
	}

	// Same phone again is a conflict.
	resp, _ = request(t, app, http.MethodPost, "/api/auth/register", "", creds)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate register: expected 409, got %d", resp.StatusCode)
	}

	// Wrong password stays generic.
	resp, _ = request(t, app, http.MethodPost, "/api/auth/login", "", map[string]any{
		"phoneNumber": "+258841234567",
		"password":    "errada99",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", resp.StatusCode)
	}

	resp, body = request(t, app, http.MethodPost, "/api/auth/login", "", map[string]any{
		"phoneNumber": "+258841234567",
		"password":    "segredo1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: %d %v", resp.StatusCode, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("login returned no token")
	}

	// Donations need a bearer.
	resp, _ = request(t, app, http.MethodPost, "/api/donation", "", map[string]any{
		"phoneNumber": "+258841234567", "amount": 150,
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous donation accepted: %d", resp.StatusCode)
	}

	// Below the 99 MZN floor.
	resp, body = request(t, app, http.MethodPost, "/api/donation", token, map[string]any{
		"phoneNumber": "+258841234567", "amount": 50,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("50 MZN accepted: %d %v", resp.StatusCode, body)
	}

	resp, body = request(t, app, http.MethodPost, "/api/donation", token, map[string]any{
		"phoneNumber": "+258841234567", "amount": 150,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("donation: %d %v", resp.StatusCode, body)
	}
	reference, _ := body["reference"].(string)
	if reference == "" {
		t.Fatalf("donation returned no reference: %v", body)
	}

	// Still pending: no entitlement yet.
	resp, body = request(t, app, http.MethodGet, "/api/user/donation-status", token, nil)
	if resp.StatusCode != http.StatusOK || body["hasDonated"] != false {
		t.Fatalf("pending donation entitled the user: %d %v", resp.StatusCode, body)
	}

	// Provider confirms.
	resp, body = request(t, app, http.MethodPost, "/api/webhook/payment", "", map[string]any{
		"status": "completed", "reference": reference,
	})
	if resp.StatusCode != http.StatusOK || body["success"] != true {
		t.Fatalf("webhook: %d %v", resp.StatusCode, body)
	}

	resp, body = request(t, app, http.MethodGet, "/api/user/donation-status", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	if body["hasDonated"] != true || body["isExpired"] != false {
		t.Fatalf("completed donation not reflected: %v", body)
	}
	if amount, _ := body["donationAmount"].(float64); amount != 150 {
		t.Fatalf("expected amount 150, got %v", body["donationAmount"])
	}
}

func TestWebhookAcknowledgement(t *testing.T) {
	app := newApp(t)

	// Unknown reference is still acknowledged so the provider stops retrying.
	resp, body := request(t, app, http.MethodPost, "/api/webhook/payment", "", map[string]any{
		"status": "completed", "reference": "987654321",
	})
	if resp.StatusCode != http.StatusOK || body["success"] != true {
		t.Fatalf("unknown reference not acknowledged: %d %v", resp.StatusCode, body)
	}

	// Non-completed callbacks are acknowledged without settling anything.
	resp, _ = request(t, app, http.MethodPost, "/api/webhook/payment", "", map[string]any{
		"status": "failed", "reference": "987654321",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("failed-status callback rejected: %d", resp.StatusCode)
	}

	// Only an unreadable body is a client error.
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/payment", strings.NewReader("{not json"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("malformed webhook: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed payload not rejected: %d", resp.StatusCode)
	}
}

func TestAnalyticsRequiresBearer(t *testing.T) {
	app := newApp(t)

	resp, _ := request(t, app, http.MethodGet, "/api/analytics", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("analytics open to the world: %d", resp.StatusCode)
	}

	_, body := request(t, app, http.MethodPost, "/api/auth/register", "", map[string]any{
		"phoneNumber": "+258847654321",
		"firstName":   "Rui",
		"lastName":    "Tembe",
		"password":    "segredo1",
	})
	token, _ := body["token"].(string)

	resp, report := request(t, app, http.MethodGet, "/api/analytics", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("analytics with bearer: %d %v", resp.StatusCode, report)
	}
	if report["period"] != "7d" {
		t.Fatalf("expected default 7d period, got %v", report["period"])
	}
}

func TestLogoutDeactivatesSession(t *testing.T) {
	app := newApp(t)

	_, body := request(t, app, http.MethodPost, "/api/auth/register", "", map[string]any{
		"phoneNumber": "+258843210987",
		"firstName":   "Ines",
		"lastName":    "Mondlane",
		"password":    "segredo1",
	})
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("register returned no token")
	}

	resp, _ := request(t, app, http.MethodPost, "/api/auth/logout", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: %d", resp.StatusCode)
	}

	// Logging out twice is harmless.
	resp, _ = request(t, app, http.MethodPost, "/api/auth/logout", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second logout: %d", resp.StatusCode)
	}
}
