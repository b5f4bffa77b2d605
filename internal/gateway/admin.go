package gateway

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	goJwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/go-arcade/cadflight/pkg/http"
	"github.com/go-arcade/cadflight/pkg/http/jwt"
	"github.com/go-arcade/cadflight/pkg/log"
)

// AdminConfig configures the gateway's operator-facing /admin surface:
// cache introspection (GET) and forced cancellation (POST) of the single
// live entry, protected by a bearer token issued from a single configured
// username/password pair rather than a user store, matching the scope of
// a one-operator operational surface.
type AdminConfig struct {
	Enable       bool
	Username     string
	PasswordHash string // bcrypt hash; see HashPassword for generating one
	SecretKey    string
	TokenTTL     time.Duration
}

// HashPassword bcrypt-hashes a plaintext admin password for storage in
// configuration, mirroring the teacher's registration flow which never
// persists a plaintext password.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// adminAuth is the gateway's login and bearer-token verification logic. A
// nil *adminAuth disables the entire /admin surface, the same fail-closed
// default every other optional dependency follows.
type adminAuth struct {
	cfg AdminConfig
}

// newAdminAuth returns an *adminAuth for cfg, or nil if the admin surface
// is not enabled or is missing required configuration.
func newAdminAuth(cfg AdminConfig) *adminAuth {
	if !cfg.Enable || cfg.Username == "" || cfg.PasswordHash == "" || cfg.SecretKey == "" {
		return nil
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	return &adminAuth{cfg: cfg}
}

// registerAdminRoutes installs the login route (always present so clients
// get a clear "disabled" response) and the protected introspection/cancel
// routes. When gw.admin is nil every route answers Unauthorized.
func (gw *Gateway) registerAdminRoutes(app *fiber.App) {
	admin := app.Group("/admin")
	admin.Post("/login", gw.handleAdminLogin)
	admin.Get("/cache", gw.requireAdmin, gw.handleAdminPeek)
	admin.Post("/cache/cancel", gw.requireAdmin, gw.handleAdminCancel)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleAdminLogin exchanges a username/password pair for a bearer token.
// Grounded on the teacher's AuthorizationMiddleware header-parsing shape,
// but the credential check itself is a single bcrypt comparison rather
// than a user-table lookup.
func (gw *Gateway) handleAdminLogin(c *fiber.Ctx) error {
	if gw.admin == nil {
		return http.WithRepErrMsg(c, http.Unauthorized.Code, "admin surface is disabled", c.Path())
	}

	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return http.WithRepErrMsg(c, http.RequestParameterParsingFailed.Code, http.RequestParameterParsingFailed.Msg, c.Path())
	}
	if req.Username != gw.admin.cfg.Username {
		return http.WithRepErrMsg(c, http.UserIncorrectPassword.Code, http.UserIncorrectPassword.Msg, c.Path())
	}
	if err := bcrypt.CompareHashAndPassword([]byte(gw.admin.cfg.PasswordHash), []byte(req.Password)); err != nil {
		return http.WithRepErrMsg(c, http.UserIncorrectPassword.Code, http.UserIncorrectPassword.Msg, c.Path())
	}

	token, err := jwt.GenToken(req.Username, []byte(gw.admin.cfg.SecretKey), gw.admin.cfg.TokenTTL)
	if err != nil {
		log.Errorw("admin login: failed to sign token", "error", err)
		return http.WithRepErrMsg(c, http.InternalError.Code, http.InternalError.Msg, c.Path())
	}
	return http.WithRepJSON(c, fiber.Map{"token": token, "expires_in": int(gw.admin.cfg.TokenTTL.Seconds())})
}

// requireAdmin is the bearer-token guard for every route under /admin
// except /admin/login, grounded on the teacher's AuthorizationMiddleware
// but without the Redis session-existence check: admin tokens are
// self-contained and stateless, there is no server-side session to revoke.
func (gw *Gateway) requireAdmin(c *fiber.Ctx) error {
	if gw.admin == nil {
		return http.WithRepErrMsg(c, http.Unauthorized.Code, "admin surface is disabled", c.Path())
	}

	header := c.Get("Authorization")
	if header == "" {
		return http.WithRepErrMsg(c, http.TokenBeEmpty.Code, http.TokenBeEmpty.Msg, c.Path())
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return http.WithRepErrMsg(c, http.TokenFormatIncorrect.Code, http.TokenFormatIncorrect.Msg, c.Path())
	}

	claims, err := jwt.ParseToken(parts[1], []byte(gw.admin.cfg.SecretKey))
	if err != nil {
		if errors.Is(err, goJwt.ErrTokenExpired) {
			return http.WithRepErrMsg(c, http.TokenExpired.Code, http.TokenExpired.Msg, c.Path())
		}
		log.Warnw("admin auth: token rejected", "error", err)
		return http.WithRepErrMsg(c, http.InvalidToken.Code, http.InvalidToken.Msg, c.Path())
	}

	c.Locals("admin_subject", claims.Subject)
	return c.Next()
}

// handleAdminPeek reports the key and status of the cache's current entry
// without joining it, for an operator dashboard.
func (gw *Gateway) handleAdminPeek(c *fiber.Ctx) error {
	key, status, ok := gw.cache.Peek()
	if !ok {
		return http.WithRepJSON(c, fiber.Map{"active": false})
	}
	return http.WithRepJSON(c, fiber.Map{
		"active":   true,
		"endpoint": key.Endpoint,
		"assembly": key.Assembly,
		"key":      key.Params.String(),
		"status":   status.String(),
	})
}

// handleAdminCancel force-cancels the cache's current entry, the
// operator-triggered counterpart to the automatic preemption a new
// submission performs on a key change.
func (gw *Gateway) handleAdminCancel(c *fiber.Ctx) error {
	cancelled := gw.cache.Cancel()
	return http.WithRepJSON(c, fiber.Map{"cancelled": cancelled})
}
