package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func geoApp(enabled bool) *fiber.App {
	app := fiber.New()
	app.Use(GeoBlock("MZ", "/blocked", enabled))
	handler := func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	}
	app.Get("/watch", handler)
	app.Get("/blocked", handler)
	app.Get("/healthz", handler)
	app.Post("/api/webhook/payment", handler)
	return app
}

func TestGeoBlockAllowsSupportedCountry(t *testing.T) {
	app := geoApp(true)

	req := httptest.NewRequest(http.MethodGet, "/watch", nil)
	req.Header.Set("X-Vercel-Ip-Country", "MZ")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("supported country blocked: %d", resp.StatusCode)
	}
}

func TestGeoBlockRedirectsOtherCountries(t *testing.T) {
	app := geoApp(true)

	for _, header := range []string{"X-Vercel-Ip-Country", "Cf-Ipcountry", "X-Country-Code", "Cloudfront-Viewer-Country"} {
		req := httptest.NewRequest(http.MethodGet, "/watch", nil)
		req.Header.Set(header, "PT")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s: %v", header, err)
		}
		if resp.StatusCode != http.StatusTemporaryRedirect {
			t.Fatalf("%s: expected redirect, got %d", header, resp.StatusCode)
		}
		if loc := resp.Header.Get("Location"); loc != "/blocked" {
			t.Fatalf("%s: expected /blocked, got %q", header, loc)
		}
	}
}

func TestGeoBlockDeniesUndetectableCountry(t *testing.T) {
	app := geoApp(true)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/watch", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("undetectable country passed through: %d", resp.StatusCode)
	}
}

func TestGeoBlockExemptPaths(t *testing.T) {
	app := geoApp(true)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/blocked"},
		{http.MethodGet, "/healthz"},
		{http.MethodPost, "/api/webhook/payment"},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		req.Header.Set("Cf-Ipcountry", "BR")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s: %v", tc.path, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: exempt path filtered, got %d", tc.path, resp.StatusCode)
		}
	}
}

func TestGeoBlockDisabled(t *testing.T) {
	app := geoApp(false)

	req := httptest.NewRequest(http.MethodGet, "/watch", nil)
	req.Header.Set("Cf-Ipcountry", "BR")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("disabled filter still blocking: %d", resp.StatusCode)
	}
}
