package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/yoockh/voxaura/internal/utils"
)

type apiError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

type JWTConfig struct {
	Secret   string
	Issuer   string // optional
	Audience string // optional
}

type supabaseClaims struct {
	jwt.RegisteredClaims
	Role         string         `json:"role"`         // usually "authenticated" / "anon"
	AppMetadata  map[string]any `json:"app_metadata"` // put {"role":"admin"} here
	UserMetadata map[string]any `json:"user_metadata"`
}

var errNoToken = errors.New("missing bearer token")

// JWTAuth rejects requests without a valid HS256 token.
func JWTAuth(cfg JWTConfig) gin.HandlerFunc {
	return authenticate(cfg, true)
}

// OptionalJWT lets anonymous requests through but rejects a token that is
// present and invalid. Browsers cannot set headers on websocket upgrades, so
// the token may also come from the "token" query parameter.
func OptionalJWT(cfg JWTConfig) gin.HandlerFunc {
	return authenticate(cfg, false)
}

func authenticate(cfg JWTConfig, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			if !required {
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{
				Code:    utils.CodeUnauthorized,
				Message: errNoToken.Error(),
			})
			return
		}

		if cfg.Secret == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, apiError{
				Code:    utils.CodeInternal,
				Message: "SUPABASE_JWT_SECRET is not set",
			})
			return
		}

		userID, role, msg := verify(cfg, raw)
		if msg != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{
				Code:    utils.CodeUnauthorized,
				Message: msg,
			})
			return
		}

		c.Set("user_id", userID)
		c.Set("role", role)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(c.Query("token"))
}

// verify returns the subject and app role, or a rejection message.
func verify(cfg JWTConfig, raw string) (string, string, string) {
	claims := &supabaseClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return []byte(cfg.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil || tok == nil || !tok.Valid {
		return "", "", "invalid token"
	}

	if cfg.Issuer != "" && claims.Issuer != cfg.Issuer {
		return "", "", "invalid token issuer"
	}

	if cfg.Audience != "" {
		valid := false
		for _, aud := range claims.Audience {
			if aud == cfg.Audience {
				valid = true
				break
			}
		}
		if !valid {
			return "", "", "invalid token audience"
		}
	}

	if claims.Subject == "" {
		return "", "", "missing subject"
	}

	// Default role: "user" (app-level role)
	appRole := "user"
	if claims.AppMetadata != nil {
		if v, ok := claims.AppMetadata["role"]; ok {
			if s, ok := v.(string); ok && s != "" {
				appRole = s
			}
		}
	}
	return claims.Subject, appRole, ""
}
