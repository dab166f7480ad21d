package session

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/learnio/learnio/internal/config"
	"github.com/learnio/learnio/internal/utils"
)

const contextKey = "session"

// Middleware loads the session named by the cookie, creating an anonymous one when needed.
// A session whose token has expired is signed out before the handler runs.
func Middleware(store *Store, cfg config.SessionConfig, logger utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		log := utils.FromContext(c, logger)

		var s *Session
		if id, err := c.Cookie(cfg.CookieName); err == nil {
			s, err = store.Get(ctx, id)
			if err != nil && !errors.Is(err, ErrSessionNotFound) {
				log.Error("Failed to load session", "error", err)
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
				return
			}
		}

		if s == nil {
			created, err := store.New(ctx)
			if err != nil {
				log.Error("Failed to create session", "error", err)
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
				return
			}
			s = created
		} else {
			if s.Status == StatusAuthenticated && !s.Authenticated() {
				if cleared, err := store.Clear(ctx, s.ID); err == nil {
					s = cleared
				}
			}
			if err := store.Touch(ctx, s.ID); err != nil {
				log.Warn("Failed to extend session", "session_id", s.ID, "error", err)
			}
		}

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(cfg.CookieName, s.ID, int(cfg.TTL.Seconds()), "/", "", cfg.Secure, true)
		c.Set(contextKey, s)
		c.Next()
	}
}

// FromContext returns the session loaded by Middleware
func FromContext(c *gin.Context) *Session {
	if v, ok := c.Get(contextKey); ok {
		if s, ok := v.(*Session); ok {
			return s
		}
	}
	return nil
}

// Replace swaps the request's session after a write
func Replace(c *gin.Context, s *Session) {
	c.Set(contextKey, s)
}
