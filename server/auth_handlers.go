package server

import (
	"errors"
	"net/http"

	apperrors "arcane/pkg/errors"
	"arcane/pkg/logger"
	"arcane/pkg/middleware"
	"arcane/pkg/session"

	"github.com/gin-gonic/gin"
)

// sessionKey is the gin context key for the validated session
const sessionKey = "arcane_session"

// csrfHeader carries the anti-forgery token on state-changing requests
const csrfHeader = "X-Csrf-Token"

// loginFailureMessage is deliberately generic: the response must not reveal
// whether the username, password, or one-time code was at fault.
const loginFailureMessage = "Invalid username, password or token"

// requireSession validates the session cookie and, when requireCSRF is
// set, the anti-forgery header, before the handler runs
func (s *Server) requireSession(requireCSRF bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(middleware.SessionCookieName)
		if err != nil {
			c.String(http.StatusUnauthorized, "Session unknown")
			c.Abort()
			return
		}

		sess, err := s.sessions.Validate(id, requireCSRF, c.GetHeader(csrfHeader))
		if err != nil {
			c.String(http.StatusUnauthorized, sessionFailureMessage(err))
			c.Abort()
			return
		}

		c.Set(sessionKey, sess)
		c.Next()
	}
}

// currentSession returns the session placed by requireSession
func currentSession(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}

func sessionFailureMessage(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrSessionLoggedOut):
		return "Session logged out"
	case errors.Is(err, apperrors.ErrCsrfMismatch):
		return "Incorrect CSRF Token"
	default:
		return "Session unknown"
	}
}

// handleLogin verifies credentials against the configured backend and
// mints a session
func (s *Server) handleLogin(c *gin.Context) {
	var req struct {
		User  string `json:"user"`
		Pass  string `json:"pass"`
		Token string `json:"token"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, "Invalid request")
		return
	}

	username, err := s.backend.Login(c.Request.Context(), req.User, req.Pass, req.Token)
	if err != nil {
		logger.Get().WarnWith("login rejected", "user", req.User, "remote", c.ClientIP())
		c.String(http.StatusUnauthorized, loginFailureMessage)
		return
	}

	roles := s.backend.Roles(username)

	sess, err := s.sessions.Create(username, roles)
	if err != nil {
		logger.Get().ErrorWithErr("failed to create session", err, "user", username)
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}

	logger.Get().InfoWith("login", "user", username, "remote", c.ClientIP())

	http.SetCookie(c.Writer, middleware.SessionCookie(sess.ID, c.Request.TLS != nil))
	c.JSON(http.StatusOK, gin.H{"csrfToken": sess.CSRFToken})
}

// handleReauth hands the anti-forgery token back to a page that still holds
// a valid session cookie. No CSRF check: this is how a reloaded page
// recovers its token.
func (s *Server) handleReauth(c *gin.Context) {
	sess := currentSession(c)
	c.JSON(http.StatusOK, gin.H{"csrfToken": sess.CSRFToken})
}

// handleLogout marks the session logged out; the table entry is purged on
// its next validation attempt
func (s *Server) handleLogout(c *gin.Context) {
	sess := currentSession(c)
	s.sessions.Logout(sess.ID)

	logger.Get().InfoWith("logout", "user", sess.Username)

	http.SetCookie(c.Writer, middleware.ExpiredSessionCookie())
	c.JSON(http.StatusOK, true)
}

// handleApps lists the registered plugin surfaces
func (s *Server) handleApps(c *gin.Context) {
	c.JSON(http.StatusOK, s.plugins)
}

// handleHealth reports gateway liveness and host resource usage
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.Snapshot(s.sessions.Count(), s.mux.LiveCount()))
}
