package api

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"mrsh/internal/blob"
)

// MediaHandler serves images kept by the filesystem store.
type MediaHandler struct {
	store *blob.FileStore
}

func NewMediaHandler(store *blob.FileStore) *MediaHandler {
	return &MediaHandler{store: store}
}

// GET /usercontent/*
func (h *MediaHandler) GetObject(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(chi.URLParam(r, "*"))
	if key == "" || path.Ext(key) != ".png" {
		http.NotFound(w, r)
		return
	}

	file, err := h.store.Open(key)
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, blob.ErrInvalidPath) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		slog.Error("opening stored image failed", "component", "api", "key", key, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	// Keys are random and never rewritten.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", "inline")
	http.ServeContent(w, r, path.Base(key), info.ModTime(), file)
}
