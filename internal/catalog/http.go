package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/csuvg/PG-2025-21169/internal/apperr"
	"github.com/csuvg/PG-2025-21169/internal/httpx"
)

// RegisterRoutes wires the group membership handlers to the provided router
// group. Membership edits never touch page versions.
func RegisterRoutes(router chi.Router, svc *Service, db *gorm.DB) {
	router.Route("/groups", func(r chi.Router) {
		r.Get("/by-field/{fieldID}", groupByFieldHandler(svc, db))
		r.Route("/{id}/members", func(r chi.Router) {
			r.Get("/", listMembersHandler(svc, db))
			r.Post("/", addMemberHandler(svc, db))
			r.Put("/", replaceMembersHandler(svc, db))
			r.Delete("/{fieldID}", removeMemberHandler(svc, db))
		})
	})
}

type memberRequest struct {
	FieldID string `json:"id_campo"`
}

type replaceMembersRequest struct {
	FieldIDs []string `json:"campos"`
}

func groupByFieldHandler(svc *Service, db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fieldID := chi.URLParam(r, "fieldID")
		group, err := svc.GroupByField(r.Context(), db, fieldID)
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		if group == nil {
			httpx.WriteError(w, apperr.NotFound("group for field", fieldID))
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": group})
	}
}

func listMembersHandler(svc *Service, db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fields, err := svc.GroupMembers(r.Context(), db, chi.URLParam(r, "id"))
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": fields})
	}
}

func addMemberHandler(svc *Service, db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload memberRequest
		if err := httpx.DecodeJSON(r, &payload); err != nil {
			httpx.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		if payload.FieldID == "" {
			httpx.Error(w, http.StatusBadRequest, "id_campo is required")
			return
		}
		if err := svc.AddGroupMember(r.Context(), db, chi.URLParam(r, "id"), payload.FieldID); err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, map[string]any{"data": map[string]any{"added": true}})
	}
}

func replaceMembersHandler(svc *Service, db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload replaceMembersRequest
		if err := httpx.DecodeJSON(r, &payload); err != nil {
			httpx.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := svc.ReplaceGroupMembers(r.Context(), db, chi.URLParam(r, "id"), payload.FieldIDs); err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"members": len(payload.FieldIDs)}})
	}
}

func removeMemberHandler(svc *Service, db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := svc.RemoveGroupMember(r.Context(), db, chi.URLParam(r, "id"), chi.URLParam(r, "fieldID"))
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"removed": true}})
	}
}
