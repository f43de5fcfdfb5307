package server

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"arcane/pkg/logger"
	"arcane/pkg/pathguard"

	"github.com/gin-gonic/gin"
)

// dirEntry is one row of a directory listing
type dirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"isDir"`
}

// confineCd resolves the cd query parameter under the workspace root.
// Writes the 403 response itself when the path escapes.
func (s *Server) confineCd(c *gin.Context) (string, bool) {
	dir, err := pathguard.Confine(s.rootDir, c.Query("cd"))
	if err != nil {
		logger.Get().WarnWith("path escape rejected",
			"cd", c.Query("cd"), "user", currentSession(c).Username)
		c.String(http.StatusForbidden, "Forbidden")
		return "", false
	}
	return dir, true
}

// handleDir lists the contents of a directory under the workspace root
func (s *Server) handleDir(c *gin.Context) {
	dir, ok := s.confineCd(c)
	if !ok {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		c.String(http.StatusNotFound, "File doesn't exist!")
		return
	}

	listing := make([]dirEntry, 0, len(entries))
	for _, e := range entries {
		listing = append(listing, dirEntry{Name: e.Name(), IsDir: e.IsDir()})
	}
	sort.Slice(listing, func(i, j int) bool { return listing[i].Name < listing[j].Name })

	c.JSON(http.StatusOK, listing)
}

// handleFile streams a file's contents to the editor
func (s *Server) handleFile(c *gin.Context) {
	dir, ok := s.confineCd(c)
	if !ok {
		return
	}

	path, err := pathguard.Confine(s.rootDir, filepath.Join(trimRoot(s.rootDir, dir), c.Param("name")))
	if err != nil {
		c.String(http.StatusForbidden, "Forbidden")
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		c.String(http.StatusNotFound, "File doesn't exist!")
		return
	}

	c.File(path)
}

// handleSave overwrites a file with the raw request body
func (s *Server) handleSave(c *gin.Context) {
	dir, ok := s.confineCd(c)
	if !ok {
		return
	}

	path, err := pathguard.Confine(s.rootDir, filepath.Join(trimRoot(s.rootDir, dir), c.Param("name")))
	if err != nil {
		c.String(http.StatusForbidden, "Forbidden")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusInternalServerError, "Error saving")
		return
	}

	if err := os.WriteFile(path, body, 0o644); err != nil {
		logger.Get().ErrorWithErr("failed to save file", err, "path", path)
		c.String(http.StatusInternalServerError, "Error saving")
		return
	}

	logger.Get().InfoWith("file saved", "path", path, "user", currentSession(c).Username)

	// other connected editors re-read the directory
	s.gate.Broadcast("refresh", "now")
	c.JSON(http.StatusOK, true)
}

// handleNewFile creates an empty file. Responds 409 when the name is taken
// and 418 when the write itself fails.
func (s *Server) handleNewFile(c *gin.Context) {
	dir, ok := s.confineCd(c)
	if !ok {
		return
	}

	path, err := pathguard.Confine(s.rootDir, filepath.Join(trimRoot(s.rootDir, dir), c.Param("name")))
	if err != nil {
		c.String(http.StatusForbidden, "Forbidden")
		return
	}

	if _, err := os.Lstat(path); err == nil {
		c.String(http.StatusConflict, "File exists!")
		return
	}

	if err := os.WriteFile(path, nil, 0o644); err != nil {
		logger.Get().ErrorWithErr("failed to create file", err, "path", path)
		c.String(http.StatusTeapot, "Error creating file")
		return
	}

	s.gate.Broadcast("refresh", "now")
	c.JSON(http.StatusOK, true)
}

// handleNewDir creates a directory named by the "name" query parameter
func (s *Server) handleNewDir(c *gin.Context) {
	dir, ok := s.confineCd(c)
	if !ok {
		return
	}

	path, err := pathguard.Confine(s.rootDir, filepath.Join(trimRoot(s.rootDir, dir), c.Query("name")))
	if err != nil {
		c.String(http.StatusForbidden, "Forbidden")
		return
	}

	if _, err := os.Lstat(path); err == nil {
		c.String(http.StatusConflict, "Directory exists!")
		return
	}

	if err := os.Mkdir(path, 0o755); err != nil {
		logger.Get().ErrorWithErr("failed to create directory", err, "path", path)
		c.String(http.StatusInternalServerError, "Error creating directory")
		return
	}

	s.gate.Broadcast("refresh", "now")
	c.JSON(http.StatusOK, true)
}

// handleDelete removes a file or directory tree named by the "name" query
// parameter
func (s *Server) handleDelete(c *gin.Context) {
	dir, ok := s.confineCd(c)
	if !ok {
		return
	}

	path, err := pathguard.Confine(s.rootDir, filepath.Join(trimRoot(s.rootDir, dir), c.Query("name")))
	if err != nil {
		c.String(http.StatusForbidden, "Forbidden")
		return
	}

	info, err := os.Lstat(path)
	if err != nil {
		c.String(http.StatusNotFound, "File doesn't exist!")
		return
	}

	if info.IsDir() {
		err = s.removeTree(path)
	} else {
		err = os.Remove(path)
	}
	if err != nil {
		logger.Get().ErrorWithErr("failed to delete", err, "path", path)
		c.String(http.StatusInternalServerError, "Error deleting")
		return
	}

	logger.Get().InfoWith("deleted", "path", path, "user", currentSession(c).Username)

	s.gate.Broadcast("refresh", "now")
	c.JSON(http.StatusOK, true)
}

// removeTree deletes a directory recursively. Every descent is re-checked
// against the workspace root, and symlinked directories are removed as
// links rather than followed.
func (s *Server) removeTree(dir string) error {
	if _, err := pathguard.Confine(s.rootDir, trimRoot(s.rootDir, dir)); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, e := range entries {
		child := filepath.Join(dir, e.Name())

		info, err := os.Lstat(child)
		if err != nil {
			return err
		}

		if info.IsDir() {
			if err := s.removeTree(child); err != nil {
				return err
			}
			continue
		}

		if err := os.Remove(child); err != nil {
			return err
		}
	}

	return os.Remove(dir)
}

// trimRoot rewrites an absolute confined path as root-relative so it can be
// joined with a further component and re-confined
func trimRoot(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}
