package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"

	"vidsage/video-backend/internal/session"
)

// Context key for the verified session identifier.
const ContextSessionIDKey = "sessionID"

const sessionCookieName = "session"

// sessionClaims is the payload of the signed session cookie. The
// session identifier never leaves the server unsigned, and a raw
// client-supplied value is never trusted.
type sessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// SessionMiddleware attaches a session identifier to every request.
// A valid signed cookie restores the existing session; anything else
// (missing, expired, tampered) gets a freshly minted session and a new
// cookie.
func SessionMiddleware(secret string, ttl time.Duration) gin.HandlerFunc {
	secretBytes := []byte(secret)
	return func(c *gin.Context) {
		if cookie, err := c.Cookie(sessionCookieName); err == nil {
			claims := &sessionClaims{}
			token, err := jwt.ParseWithClaims(cookie, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return secretBytes, nil
			})
			if err == nil && token.Valid && claims.SessionID != "" {
				c.Set(ContextSessionIDKey, claims.SessionID)
				c.Next()
				return
			}
		}

		sid, err := session.NewToken()
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, "Could not create session")
			return
		}

		now := time.Now()
		claims := sessionClaims{
			SessionID: sid,
			RegisteredClaims: jwt.RegisteredClaims{
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			},
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secretBytes)
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, "Could not create session")
			return
		}

		c.SetCookie(sessionCookieName, signed, int(ttl.Seconds()), "/", "", false, true)
		c.Set(ContextSessionIDKey, sid)
		c.Next()
	}
}

// sessionIDFromContext returns the session identifier placed by
// SessionMiddleware.
func sessionIDFromContext(c *gin.Context) (string, error) {
	raw, exists := c.Get(ContextSessionIDKey)
	if !exists {
		return "", fmt.Errorf("session ID not found in context")
	}
	sid, ok := raw.(string)
	if !ok || sid == "" {
		return "", fmt.Errorf("invalid session ID in context")
	}
	return sid, nil
}

// Helper to return JSON error response and abort request
func abortWithError(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{"error": message})
}
