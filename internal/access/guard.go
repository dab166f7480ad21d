package access

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/learnio/learnio/internal/session"
	"github.com/learnio/learnio/internal/utils"
)

const (
	LoginPath       = "/login"
	DefaultLanding  = "/app/dashboard"
	signInTimeout   = 5 * time.Minute
	loadingRetrySec = "1"
)

// Guard keeps anonymous sessions out of protected routes
type Guard struct {
	store  *session.Store
	logger utils.Logger
}

func NewGuard(store *session.Store, logger utils.Logger) *Guard {
	return &Guard{store: store, logger: logger}
}

// Require lets authenticated sessions through. A loading session gets a placeholder
// instead of a redirect; anything else is sent to the login page with the requested
// path kept for after sign-in.
func (g *Guard) Require() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := session.FromContext(c)

		switch {
		case s.Authenticated():
			c.Next()
			return
		case s != nil && s.Status == session.StatusLoading && time.Since(s.UpdatedAt) < signInTimeout:
			c.Header("Retry-After", loadingRetrySec)
			c.AbortWithStatusJSON(http.StatusAccepted, gin.H{"status": session.StatusLoading})
			return
		}

		target := c.Request.URL.RequestURI()
		if s != nil {
			if err := g.store.RememberRedirect(c.Request.Context(), s.ID, target); err != nil {
				utils.FromContext(c, g.logger).Warn("Failed to remember redirect", "path", target, "error", err)
			}
		}

		c.Redirect(http.StatusSeeOther, LoginURL(target))
		c.Abort()
	}
}

// LoginURL is the login path carrying the page to return to
func LoginURL(target string) string {
	if target = LocalPath(target); target == "" {
		return LoginPath
	}
	return LoginPath + "?redirect=" + url.QueryEscape(target)
}

// LocalPath returns p when it is a path on this site, otherwise the empty string
func LocalPath(p string) string {
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return ""
	}
	u, err := url.Parse(p)
	if err != nil || u.IsAbs() || u.Host != "" {
		return ""
	}
	return p
}

// RedirectTarget is where a freshly signed-in session should land
func RedirectTarget(s *session.Session) string {
	if s != nil {
		if p := LocalPath(s.RedirectPath); p != "" && !strings.HasPrefix(p, LoginPath) {
			return p
		}
	}
	return DefaultLanding
}
