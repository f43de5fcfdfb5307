package server

import (
	"net/http"

	"arcane/pkg/logger"

	"github.com/gin-gonic/gin"
)

// handleNewTerminal spawns a shell owned by the calling session's user and
// returns its slot id
func (s *Server) handleNewTerminal(c *gin.Context) {
	sess := currentSession(c)

	id, err := s.mux.Create(sess.Username)
	if err != nil {
		logger.Get().ErrorWithErr("failed to spawn terminal", err, "user", sess.Username)
		c.String(http.StatusInternalServerError, "Error creating terminal")
		return
	}

	logger.Get().InfoWith("terminal created", "id", id, "user", sess.Username)
	c.JSON(http.StatusOK, gin.H{"id": id})
}

// handleOpenTerminals lists the live terminal ids owned by the calling
// session's user
func (s *Server) handleOpenTerminals(c *gin.Context) {
	sess := currentSession(c)
	c.JSON(http.StatusOK, gin.H{"found": s.mux.ListOwned(sess.Username)})
}
