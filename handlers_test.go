package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<html>chat</html>"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "js"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "js", "app.js"), []byte("export {}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sound.wav"), []byte("RIFF"), 0o644))
	return root
}

func TestStaticHandlerServesFiles(t *testing.T) {
	h := NewStaticHandler(staticRoot(t))

	cases := []struct {
		path        string
		body        string
		contentType string
	}{
		{"/", "<html>chat</html>", "text/html; charset=utf-8"},
		{"/index.html", "<html>chat</html>", "text/html; charset=utf-8"},
		{"/js/app.js", "export {}", "text/javascript; charset=utf-8"},
		{"/sound.wav", "RIFF", "audio/wav"},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tc.body, rec.Body.String())
			assert.Equal(t, tc.contentType, rec.Header().Get("Content-Type"))
		})
	}
}

func TestStaticHandlerNotFound(t *testing.T) {
	h := NewStaticHandler(staticRoot(t))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing.css", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaticHandlerStaysInRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "client")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("secret"), 0o644))

	h := NewStaticHandler(root)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.URL.Path = "/../secret.txt"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestStaticHandlerReadError(t *testing.T) {
	h := NewStaticHandler(staticRoot(t))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/js", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStaticHandlerMethods(t *testing.T) {
	h := NewStaticHandler(staticRoot(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "image/png", contentTypeFor("a.PNG"))
	assert.Equal(t, "application/json", contentTypeFor("x.json"))
	assert.Equal(t, "text/html; charset=utf-8", contentTypeFor("README"))
}
