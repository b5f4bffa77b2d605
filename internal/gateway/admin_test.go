package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/go-arcade/cadflight/internal/appmetrics"
	"github.com/go-arcade/cadflight/internal/workerdemo"
	cadhttp "github.com/go-arcade/cadflight/pkg/http"
)

// decodeErrCode reads ResponseErr.ErrCode from body: every admin failure
// path answers via http.WithRepErrMsg, which (per the teacher's own
// convention) carries the failure code in the JSON body rather than the
// HTTP status line.
func decodeErrCode(t *testing.T, body io.Reader) int {
	t.Helper()
	var resp struct {
		Code int `json:"code"`
	}
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp.Code
}

func newAdminTestApp(t *testing.T, cfg AdminConfig) (*fiber.App, *Gateway) {
	t.Helper()
	gwCfg := Config{
		ProgressQueueCapacity:    64,
		DisconnectPollIntervalMs: 50,
		AllowedGroups:            []string{"magnafpm"},
	}
	gw := New(gwCfg, workerdemo.New(), appmetrics.New(), Deps{Admin: cfg})
	app := fiber.New()
	gw.Register(app)
	return app, gw
}

func TestAdminSurfaceDisabledByDefault(t *testing.T) {
	app, _ := newAdminTestApp(t, AdminConfig{})

	req := httptest.NewRequest(http.MethodGet, "/admin/cache", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if code := decodeErrCode(t, resp.Body); code != cadhttp.Unauthorized.Code {
		t.Errorf("errCode = %d, want %d (Unauthorized)", code, cadhttp.Unauthorized.Code)
	}
}

func TestAdminLoginAndPeek(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	app, _ := newAdminTestApp(t, AdminConfig{
		Enable:       true,
		Username:     "ops",
		PasswordHash: string(hash),
		SecretKey:    "test-secret-key",
	})

	loginReq := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(`{"username":"ops","password":"s3cret"}`))
	loginReq.Header.Set("Content-Type", "application/json")
	loginResp, err := app.Test(loginReq)
	if err != nil {
		t.Fatalf("login request error: %v", err)
	}
	if loginResp.StatusCode != fiber.StatusOK {
		t.Fatalf("login status = %d, want 200", loginResp.StatusCode)
	}

	var body struct {
		Detail struct {
			Token string `json:"token"`
		} `json:"detail"`
	}
	if err := json.NewDecoder(loginResp.Body).Decode(&body); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if body.Detail.Token == "" {
		t.Fatalf("expected a non-empty token in login response")
	}

	peekReq := httptest.NewRequest(http.MethodGet, "/admin/cache", nil)
	peekReq.Header.Set("Authorization", "Bearer "+body.Detail.Token)
	peekResp, err := app.Test(peekReq)
	if err != nil {
		t.Fatalf("peek request error: %v", err)
	}
	if peekResp.StatusCode != fiber.StatusOK {
		t.Fatalf("peek status = %d, want 200", peekResp.StatusCode)
	}
}

func TestAdminLoginRejectsWrongPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	app, _ := newAdminTestApp(t, AdminConfig{
		Enable:       true,
		Username:     "ops",
		PasswordHash: string(hash),
		SecretKey:    "test-secret-key",
	})

	loginReq := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(`{"username":"ops","password":"wrong"}`))
	loginReq.Header.Set("Content-Type", "application/json")
	loginResp, err := app.Test(loginReq)
	if err != nil {
		t.Fatalf("login request error: %v", err)
	}
	if code := decodeErrCode(t, loginResp.Body); code != cadhttp.UserIncorrectPassword.Code {
		t.Errorf("errCode = %d, want %d (UserIncorrectPassword)", code, cadhttp.UserIncorrectPassword.Code)
	}
}

func TestAdminCacheCancel(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.DefaultCost)
	app, gw := newAdminTestApp(t, AdminConfig{
		Enable:       true,
		Username:     "ops",
		PasswordHash: string(hash),
		SecretKey:    "test-secret-key",
	})
	_ = app

	if cancelled := gw.cache.Cancel(); cancelled {
		t.Errorf("expected Cancel on an empty cache to report false")
	}
}
