package handler

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
)

// FileHandler serves generated documents.
type FileHandler struct {
	dir string
}

// NewFileHandler creates a handler serving files from dir.
func NewFileHandler(dir string) *FileHandler {
	return &FileHandler{dir: dir}
}

// Download handles GET /api/files/{name}
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}

	path := filepath.Join(h.dir, name)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "文件不存在")
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(name))
	http.ServeFile(w, r, path)
}
