package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newPublicRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	uploadDir := t.TempDir()
	r := gin.New()
	NewHTTPHandler(uploadDir).Register(r)
	return r, uploadDir
}

func TestServerInfo(t *testing.T) {
	r, _ := newPublicRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/server-info", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "lanchat", resp["name"])
	require.Equal(t, "/ws", resp["ws_path"])
}

func multipartBody(t *testing.T, kind, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("kind", kind))
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestUploadSortsByMediaKind(t *testing.T) {
	r, uploadDir := newPublicRouter(t)

	body, contentType := multipartBody(t, "image", "cat.png", "not-really-a-png")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	url := resp["url"].(string)
	require.True(t, strings.HasPrefix(url, "/uploads/images/"), url)
	require.True(t, strings.HasSuffix(url, ".png"), url)

	stored := filepath.Join(uploadDir, strings.TrimPrefix(url, "/uploads/"))
	data, err := os.ReadFile(stored)
	require.NoError(t, err)
	require.Equal(t, "not-really-a-png", string(data))
}

func TestUploadUnknownKindFallsBack(t *testing.T) {
	r, _ := newPublicRouter(t)

	body, contentType := multipartBody(t, "weird", "notes.txt", "hello")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.True(t, strings.HasPrefix(resp["url"].(string), "/uploads/files/"))
}

func TestUploadAvatar(t *testing.T) {
	r, _ := newPublicRouter(t)

	body, contentType := multipartBody(t, "", "face.jpg", "jpeg-bytes")
	req := httptest.NewRequest(http.MethodPost, "/upload-avatar", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.True(t, strings.HasPrefix(resp["url"].(string), "/uploads/avatars/"))
	require.Equal(t, "avatar", resp["kind"])
}

func TestUploadMissingFile(t *testing.T) {
	r, _ := newPublicRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewBufferString(""))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
