// Package handlers exposes the HTTP boundary around the event surface: the
// public upload and server-info endpoints, and the loopback-only admin API.
package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxUploadBytes = 50 << 20

// mediaDirs maps a declared media kind to its storage subdirectory.
// Unknown kinds land in the generic files bucket.
var mediaDirs = map[string]string{
	"image": "images",
	"video": "videos",
	"voice": "voices",
	"file":  "files",
}

// HTTPHandler serves the public, non-websocket endpoints.
type HTTPHandler struct {
	uploadDir string
	startedAt time.Time
}

func NewHTTPHandler(uploadDir string) *HTTPHandler {
	return &HTTPHandler{uploadDir: uploadDir, startedAt: time.Now()}
}

// Register mounts the public routes on the router.
func (h *HTTPHandler) Register(r *gin.Engine) {
	r.GET("/server-info", h.ServerInfo)
	r.POST("/upload", h.Upload)
	r.POST("/upload-avatar", h.UploadAvatar)
	r.Static("/uploads", h.uploadDir)
}

// ServerInfo reports immutable facts about the server for client bootstrap.
func (h *HTTPHandler) ServerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":           "lanchat",
		"ws_path":        "/ws",
		"started_at":     h.startedAt.UTC().Format(time.RFC3339),
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
	})
}

// Upload stores one binary blob under the directory for its declared media
// kind and returns the retrievable reference URL.
func (h *HTTPHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	kind := c.PostForm("kind")
	subdir, ok := mediaDirs[kind]
	if !ok {
		subdir = mediaDirs["file"]
	}
	h.storeUpload(c, kind, subdir)
}

// UploadAvatar stores a profile picture; clients set the returned URL as
// their avatar reference through update_profile.
func (h *HTTPHandler) UploadAvatar(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	h.storeUpload(c, "avatar", "avatars")
}

func (h *HTTPHandler) storeUpload(c *gin.Context, kind, subdir string) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}

	dir := filepath.Join(h.uploadDir, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
		return
	}

	name := uuid.NewString() + filepath.Ext(file.Filename)
	if err := c.SaveUploadedFile(file, filepath.Join(dir, name)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":      "/uploads/" + subdir + "/" + name,
		"kind":     kind,
		"filename": file.Filename,
		"size":     file.Size,
	})
}
