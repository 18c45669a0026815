// Package auth verifies session tokens issued by the account service and
// guards owner-only routes.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/platform-factory/backend/internal/api/apierror"
)

const identityKey = "identity"

var (
	ErrMissingToken = errors.New("session token required")
	ErrInvalidToken = errors.New("invalid session token")
)

// Identity is the authenticated caller.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	// Anonymous is set when authentication is disabled.
	Anonymous bool `json:"anonymous,omitempty"`
}

type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type Config struct {
	Disabled    bool
	Secret      []byte
	CookieName  string
	OwnerUserID string
	OwnerEmail  string
	Logger      *zap.Logger
}

type Authenticator struct {
	cfg Config
}

func New(cfg Config) *Authenticator {
	if cfg.CookieName == "" {
		cfg.CookieName = "session"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Authenticator{cfg: cfg}
}

// Middleware requires a valid session and stores the caller's Identity.
func (a *Authenticator) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if a.cfg.Disabled {
			c.Locals(identityKey, Identity{UserID: "anonymous", Anonymous: true})
			return c.Next()
		}

		id, err := a.Verify(tokenFrom(c, a.cfg.CookieName))
		if err != nil {
			a.cfg.Logger.Debug("Session rejected",
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
			message := "Invalid session"
			if errors.Is(err, ErrMissingToken) {
				message = "Authentication required"
			} else if errors.Is(err, jwt.ErrTokenExpired) {
				message = "Session expired"
			}
			return apierror.Respond(c, fiber.StatusUnauthorized, apierror.CodeUnauthorized, message)
		}

		c.Locals(identityKey, id)
		return c.Next()
	}
}

// RequireOwner rejects authenticated callers who do not own the deployment.
func (a *Authenticator) RequireOwner() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := FromContext(c)
		if !ok {
			return apierror.Respond(c, fiber.StatusUnauthorized, apierror.CodeUnauthorized, "Authentication required")
		}
		if !a.IsOwner(id) {
			a.cfg.Logger.Warn("Owner-only route denied",
				zap.String("user_id", id.UserID),
				zap.String("path", c.Path()),
			)
			return apierror.Respond(c, fiber.StatusForbidden, apierror.CodeForbidden, "Owner access required")
		}
		return c.Next()
	}
}

func (a *Authenticator) IsOwner(id Identity) bool {
	if a.cfg.Disabled && id.Anonymous {
		return true
	}
	if a.cfg.OwnerUserID != "" && id.UserID == a.cfg.OwnerUserID {
		return true
	}
	return a.cfg.OwnerEmail != "" && strings.EqualFold(id.Email, a.cfg.OwnerEmail)
}

// Verify checks an HS256 session token and returns its identity.
func (a *Authenticator) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.cfg.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return Identity{}, ErrInvalidToken
	}

	return Identity{UserID: claims.Subject, Email: claims.Email, Role: claims.Role}, nil
}

func FromContext(c *fiber.Ctx) (Identity, bool) {
	id, ok := c.Locals(identityKey).(Identity)
	return id, ok
}

// CallerKey names the caller for rate limiting and auditing: the user id of an
// authenticated session, otherwise the client address.
func CallerKey(c *fiber.Ctx) string {
	if id, ok := FromContext(c); ok && !id.Anonymous && id.UserID != "" {
		return "user:" + id.UserID
	}
	return "ip:" + c.IP()
}

func tokenFrom(c *fiber.Ctx, cookieName string) string {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return c.Cookies(cookieName)
}
