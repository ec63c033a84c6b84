package receiving

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"receiving-backend/internal/auth"

	"github.com/gofiber/fiber/v2"
)

func newTestApp(m *Manager, withUser bool) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})
	app.Use(func(c *fiber.Ctx) error {
		if withUser {
			c.Locals(auth.CtxUserIDKey, uint(7))
			c.Locals(auth.CtxTenantKey, testPicker.Tenant)
			c.Locals(auth.CtxWarehouseKey, testPicker.Warehouse)
		}
		return c.Next()
	})

	r := app.Group("/api/receiving")
	r.Post("/sessions", StartSessionHandler(m))
	r.Get("/session", GetSessionHandler(m))
	r.Post("/session/scan", ScanHandler(m))
	r.Post("/session/commit", CommitHandler(m))
	r.Post("/session/commit/retry", RetryCommitHandler(m))
	r.Delete("/session", CloseSessionHandler(m))
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("%s %s: body %q is not json", method, path, raw)
		}
	}
	return resp.StatusCode, out
}

func TestHandlersScanAndCommit(t *testing.T) {
	gw := newFakeGateway()
	gw.addOrder("1", "OC-100", line("ART-1", "A1", 3))
	clk := newClock()
	m := NewManager(testDeps(gw, newMemDrafts(), clk))
	app := newTestApp(m, true)

	status, body := do(t, app, "POST", "/api/receiving/sessions", `{"folio":" OC-100 "}`)
	if status != fiber.StatusCreated {
		t.Fatalf("start status = %d, body %v", status, body)
	}

	for i := 0; i < 3; i++ {
		clk.Advance(time.Second)
		status, body = do(t, app, "POST", "/api/receiving/session/scan", `{"code":"A1"}`)
		if status != fiber.StatusOK {
			t.Fatalf("scan %d status = %d, body %v", i, status, body)
		}
	}

	status, body = do(t, app, "GET", "/api/receiving/session", "")
	if status != fiber.StatusOK || body["pending_commit"] != false {
		t.Fatalf("get session = %d %v", status, body)
	}

	status, body = do(t, app, "POST", "/api/receiving/session/commit", "")
	if status != fiber.StatusOK {
		t.Fatalf("commit status = %d, body %v", status, body)
	}
	if body["primary_folio"] != "R-000001" {
		t.Fatalf("commit body = %v", body)
	}

	status, _ = do(t, app, "GET", "/api/receiving/session", "")
	if status != fiber.StatusNotFound {
		t.Fatalf("session after commit status = %d, want 404", status)
	}
}

func TestHandlersErrorMapping(t *testing.T) {
	gw := newFakeGateway()
	gw.addOrder("1", "OC-100", line("ART-1", "A1", 3))
	gw.addOrder("2", "OC-200", line("ART-2", "A2", 1))
	clk := newClock()
	m := NewManager(testDeps(gw, newMemDrafts(), clk))
	app := newTestApp(m, true)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"scan without session", "POST", "/api/receiving/session/scan", `{"code":"A1"}`, fiber.StatusNotFound},
		{"empty folio", "POST", "/api/receiving/sessions", `{"folio":""}`, fiber.StatusUnprocessableEntity},
		{"unknown folio", "POST", "/api/receiving/sessions", `{"folio":"OC-404"}`, fiber.StatusNotFound},
		{"retry without backup", "POST", "/api/receiving/session/commit/retry", "", fiber.StatusNotFound},
		{"start", "POST", "/api/receiving/sessions", `{"folio":"OC-100"}`, fiber.StatusCreated},
		{"second start", "POST", "/api/receiving/sessions", `{"folio":"OC-200"}`, fiber.StatusConflict},
		{"unknown code", "POST", "/api/receiving/session/scan", `{"code":"ZZ"}`, fiber.StatusNotFound},
		{"commit without progress", "POST", "/api/receiving/session/commit", `{"mode":"require_complete"}`, fiber.StatusUnprocessableEntity},
		{"bad mode", "POST", "/api/receiving/session/commit", `{"mode":"whatever"}`, fiber.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk.Advance(time.Second)
			status, body := do(t, app, tt.method, tt.path, tt.body)
			if status != tt.want {
				t.Fatalf("status = %d, want %d (body %v)", status, tt.want, body)
			}
		})
	}
}

func TestCommitFailureReportsPreservedProgress(t *testing.T) {
	gw := newFakeGateway()
	gw.addOrder("1", "OC-100", line("ART-1", "A1", 1))
	gw.receiptErrs["1"] = errNetwork
	clk := newClock()
	m := NewManager(testDeps(gw, newMemDrafts(), clk))
	app := newTestApp(m, true)

	if status, body := do(t, app, "POST", "/api/receiving/sessions", `{"folio":"OC-100"}`); status != fiber.StatusCreated {
		t.Fatalf("start = %d %v", status, body)
	}
	clk.Advance(time.Second)
	do(t, app, "POST", "/api/receiving/session/scan", `{"code":"A1"}`)

	status, body := do(t, app, "POST", "/api/receiving/session/commit", "")
	if status != fiber.StatusBadGateway {
		t.Fatalf("commit status = %d, want 502 (body %v)", status, body)
	}
	if body["progress_preserved"] != true || body["order_id"] != "1" {
		t.Fatalf("commit error body = %v", body)
	}

	status, body = do(t, app, "GET", "/api/receiving/session", "")
	if status != fiber.StatusOK || body["pending_commit"] != true {
		t.Fatalf("session after failed commit = %d %v", status, body)
	}

	clk.Advance(time.Second)
	status, body = do(t, app, "POST", "/api/receiving/session/scan", `{"code":"A1"}`)
	if status != fiber.StatusConflict {
		t.Fatalf("scan while commit pending = %d %v, want 409", status, body)
	}
}

func TestHandlersRequireUser(t *testing.T) {
	m := NewManager(testDeps(newFakeGateway(), newMemDrafts(), newClock()))
	app := newTestApp(m, false)

	status, _ := do(t, app, "POST", "/api/receiving/sessions", `{"folio":"OC-100"}`)
	if status != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", status)
	}
}
