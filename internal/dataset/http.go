package dataset

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/csuvg/PG-2025-21169/internal/httpx"
)

const maxUploadBytes = 20 << 20

// RegisterRoutes wires the source handlers to the provided router group.
func RegisterRoutes(router chi.Router, svc *Service, db *gorm.DB) {
	router.Route("/sources", func(r chi.Router) {
		r.Get("/", listSourcesHandler(svc, db))
		r.Post("/", uploadSourceHandler(svc, db))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", getSourceHandler(svc, db))
			r.Get("/download", downloadSourceHandler(svc, db))
			r.Delete("/", deleteSourceHandler(svc, db))
		})
	})
}

func listSourcesHandler(svc *Service, db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := svc.List(r.Context(), db)
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": sources})
	}
}

func uploadSourceHandler(svc *Service, db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			httpx.Error(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
			return
		}
		file, header, err := r.FormFile("archivo")
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "archivo file part is required")
			return
		}
		defer file.Close()

		content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "cannot read file: "+err.Error())
			return
		}
		if len(content) > maxUploadBytes {
			httpx.Error(w, http.StatusBadRequest, "file exceeds the upload limit")
			return
		}

		source, err := svc.Upload(r.Context(), db, UploadInput{
			Name:        r.FormValue("nombre"),
			Description: r.FormValue("descripcion"),
			FileName:    header.Filename,
			Content:     content,
			CreatedBy:   httpx.Actor(r),
		})
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, map[string]any{"data": source})
	}
}

func getSourceHandler(svc *Service, db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source, err := svc.Find(r.Context(), db, chi.URLParam(r, "id"))
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": source})
	}
}

func downloadSourceHandler(svc *Service, db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source, content, err := svc.Download(r.Context(), db, chi.URLParam(r, "id"))
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", source.FileName))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(content)
	}
}

func deleteSourceHandler(svc *Service, db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Delete(r.Context(), db, chi.URLParam(r, "id")); err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"deleted": true}})
	}
}
