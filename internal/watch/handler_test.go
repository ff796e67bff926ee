package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/frantchessico/prato-frio-filme/internal/analytics"
	"github.com/frantchessico/prato-frio-filme/internal/donation"
	"github.com/frantchessico/prato-frio-filme/internal/identity"
	"github.com/frantchessico/prato-frio-filme/internal/logging"
	"github.com/frantchessico/prato-frio-filme/internal/mpesa"
)

const previewLimit = 12 * time.Minute

type testEnv struct {
	app   *fiber.App
	users identity.Repository
}

// newTestApp wires the watch endpoints the way the route table does, with a
// stand-in auth middleware that trusts the X-Test-User header.
func newTestApp(t *testing.T) *testEnv {
	t.Helper()
	users := identity.NewMemoryRepository()
	events := analytics.NewService(analytics.NewMemoryRepository(), logging.Discard())
	donations := donation.NewService(donation.NewMemoryRepository(), users,
		mpesa.StaticGateway{}, events, logging.Discard(), 99, 72*time.Hour)

	svc := NewService(donations, events, logging.Discard(), previewLimit)
	t.Cleanup(svc.Shutdown)

	h := NewHandler(svc)
	app := fiber.New()
	group := app.Group("/watch/sessions", func(c *fiber.Ctx) error {
		if uid := c.Get("X-Test-User"); uid != "" {
			c.Locals("user_id", uid)
		}
		return c.Next()
	})
	group.Post("/", h.Start)
	group.Post("/:id/progress", h.Progress)
	group.Post("/:id/remediation", h.Remediation)
	group.Post("/:id/track", h.Track)
	group.Delete("/:id", h.End)

	return &testEnv{app: app, users: users}
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if userID != "" {
		req.Header.Set("X-Test-User", userID)
	}
	resp, err := e.app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (e *testEnv) start(t *testing.T, userID string) string {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/watch/sessions/", userID, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start session: %d", resp.StatusCode)
	}
	id, _ := body["sessionId"].(string)
	if id == "" {
		t.Fatalf("missing session id: %v", body)
	}
	return id
}

func (e *testEnv) progress(t *testing.T, sessionID string, elapsed float64) map[string]any {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/watch/sessions/"+sessionID+"/progress", "",
		map[string]any{"elapsedSeconds": elapsed})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("progress: %d %v", resp.StatusCode, body)
	}
	return body
}

func TestAnonymousSessionBlocksAtLimit(t *testing.T) {
	env := newTestApp(t)
	id := env.start(t, "")

	snap := env.progress(t, id, previewLimit.Seconds()/2)
	if snap["blocked"] != false || snap["state"] != "playing" {
		t.Fatalf("blocked below limit: %v", snap)
	}

	snap = env.progress(t, id, previewLimit.Seconds())
	if snap["blocked"] != true || snap["state"] != "awaiting_auth" {
		t.Fatalf("expected awaiting_auth at limit: %v", snap)
	}
	if snap["paused"] != true {
		t.Fatalf("playback not paused: %v", snap)
	}
	if snap["remediation"] != "auth" {
		t.Fatalf("expected auth remediation: %v", snap)
	}
}

func TestDonorSessionNeverBlocks(t *testing.T) {
	env := newTestApp(t)

	now := time.Now().UTC()
	donor := identity.User{
		ID:                uuid.NewString(),
		Phone:             "+258841234567",
		FirstName:         "Ana",
		LastName:          "Macamo",
		HasDonated:        true,
		DonationAmount:    150,
		DonationDate:      now,
		DonationExpiresAt: now.Add(72 * time.Hour),
		CreatedAt:         now,
	}
	if err := env.users.Create(context.Background(), donor); err != nil {
		t.Fatalf("seed donor: %v", err)
	}

	id := env.start(t, donor.ID)
	snap := env.progress(t, id, 3*previewLimit.Seconds())
	if snap["blocked"] != false {
		t.Fatalf("donor blocked: %v", snap)
	}
}

func TestRemediationOutcomes(t *testing.T) {
	env := newTestApp(t)

	user := identity.User{
		ID:        uuid.NewString(),
		Phone:     "+258841234567",
		FirstName: "Carlos",
		LastName:  "Sitoe",
		CreatedAt: time.Now().UTC(),
	}
	if err := env.users.Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	id := env.start(t, "")
	env.progress(t, id, previewLimit.Seconds())

	// Auth and donation outcomes need an authenticated caller.
	resp, _ := env.do(t, http.MethodPost, "/watch/sessions/"+id+"/remediation", "",
		map[string]any{"outcome": "auth"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous auth outcome accepted: %d", resp.StatusCode)
	}

	resp, snap := env.do(t, http.MethodPost, "/watch/sessions/"+id+"/remediation", user.ID,
		map[string]any{"outcome": "auth"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("auth outcome: %d", resp.StatusCode)
	}
	if snap["state"] != "resumed" || snap["paused"] != false {
		t.Fatalf("expected resumed playback: %v", snap)
	}

	resp, _ = env.do(t, http.MethodPost, "/watch/sessions/"+id+"/remediation", user.ID,
		map[string]any{"outcome": "nonsense"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid outcome accepted: %d", resp.StatusCode)
	}
}

func TestDismissKeepsSessionBlocked(t *testing.T) {
	env := newTestApp(t)
	id := env.start(t, "")

	env.progress(t, id, previewLimit.Seconds())
	resp, snap := env.do(t, http.MethodPost, "/watch/sessions/"+id+"/remediation", "",
		map[string]any{"outcome": "dismissed"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dismiss: %d", resp.StatusCode)
	}
	if snap["state"] != "blocked" || snap["paused"] != true {
		t.Fatalf("expected blocked and paused after dismiss: %v", snap)
	}

	snap = env.progress(t, id, previewLimit.Seconds()+5)
	if snap["state"] != "blocked" {
		t.Fatalf("dismissed block did not stick: %v", snap)
	}
}

func TestTrackSwitchPreservesElapsedAndBlock(t *testing.T) {
	env := newTestApp(t)
	id := env.start(t, "")

	env.progress(t, id, previewLimit.Seconds())
	resp, snap := env.do(t, http.MethodPost, "/watch/sessions/"+id+"/track", "",
		map[string]any{"language": "en", "quality": "720p"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("track switch: %d", resp.StatusCode)
	}
	if snap["blocked"] != true {
		t.Fatalf("track switch lifted the block: %v", snap)
	}
	if elapsed, _ := snap["elapsedSeconds"].(float64); elapsed != previewLimit.Seconds() {
		t.Fatalf("track switch reset elapsed: %v", snap)
	}
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestApp(t)
	id := env.start(t, "")

	resp, _ := env.do(t, http.MethodDelete, "/watch/sessions/"+id, "", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("end session: %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPost, "/watch/sessions/"+id+"/progress", "",
		map[string]any{"elapsedSeconds": 10})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after teardown, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPost, "/watch/sessions/"+uuid.NewString()+"/progress", "",
		map[string]any{"elapsedSeconds": 10})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", resp.StatusCode)
	}
}

func TestNegativeProgressRejected(t *testing.T) {
	env := newTestApp(t)
	id := env.start(t, "")

	resp, _ := env.do(t, http.MethodPost, "/watch/sessions/"+id+"/progress", "",
		map[string]any{"elapsedSeconds": -1})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("negative elapsed accepted: %d", resp.StatusCode)
	}
}
