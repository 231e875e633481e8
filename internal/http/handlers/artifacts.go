package handlers

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mediagen/internal/domain"
	"mediagen/internal/storage"
)

// GetArtifact handles GET /v1/artifacts/*, streaming the stored bytes.
func (a *App) GetArtifact(w http.ResponseWriter, r *http.Request) {
	key, err := storage.KeyFromURI(chi.URLParam(r, "*"))
	if err != nil {
		a.error(w, http.StatusBadRequest, "invalid_key", "invalid artifact key")
		return
	}
	art, err := a.Store.Read(r.Context(), storage.URI(key))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "artifact not found")
			return
		}
		a.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	w.Header().Set("X-Artifact-Tag", string(art.Tag))
	http.ServeContent(w, r, "", art.ModifiedAt, bytes.NewReader(art.Data))
}
