package echoapi

import (
	"context"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/dojokit/beltway/core"
)

// Roles recognized by the academy. Tokens are issued by the identity system;
// this API only maps the roles they carry to graduation capabilities.
const (
	RoleAdmin     = "admin"
	RoleCoach     = "coach"
	RoleFrontDesk = "front-desk"
	RoleStudent   = "student"
)

var roleCapabilities = map[string][]string{
	RoleAdmin: {
		core.CapManageRanks,
		core.CapManagePromotions,
		core.CapRequestPromotions,
		core.CapGrantDegree,
		core.CapRecordAttendance,
	},
	RoleCoach: {
		core.CapRequestPromotions,
		core.CapGrantDegree,
		core.CapRecordAttendance,
	},
	RoleFrontDesk: {
		core.CapRecordAttendance,
	},
	RoleStudent: {},
}

const tokenContextKey = "appToken"

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

var _ core.CapabilityChecker = (*Claims)(nil)

// Can reports whether any of the claims' roles carries the capability.
func (c *Claims) Can(_ context.Context, capability string) bool {
	for _, role := range c.Roles {
		for _, granted := range roleCapabilities[role] {
			if granted == capability {
				return true
			}
		}
	}
	return false
}

func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    tokenContextKey,
		Claims:        new(Claims),
	}
}

// GetClaims builds Claims for a subject with the given roles.
func GetClaims(conf *core.Config, subject, name string, roles ...string) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   subject,
			Audience:  "Academy",
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Name:  name,
		Roles: roles,
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(conf.SecretKey))
}

func getContextClaims(ctx echo.Context) (*Claims, error) {
	if token, ok := ctx.Get(tokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return claims, nil
		}
	}
	return nil, errUnauthorized
}

// capabilityMiddleware rejects requests whose claims do not carry capability.
func capabilityMiddleware(capability string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			var checker core.CapabilityChecker = claims
			if !checker.Can(ctx.Request().Context(), capability) {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}
