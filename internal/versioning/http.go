package versioning

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/csuvg/PG-2025-21169/internal/catalog"
	"github.com/csuvg/PG-2025-21169/internal/httpx"
)

// RegisterRoutes wires the page and field handlers to the provided router
// group.
func RegisterRoutes(router chi.Router, engine *Engine) {
	router.Route("/pages/{id}", func(r chi.Router) {
		r.Get("/", getPageHandler(engine))
		r.Patch("/", updatePageHandler(engine))
		r.Get("/fields", listPageFieldsHandler(engine))
		r.Post("/fields", createFieldHandler(engine))
	})
	router.Route("/fields/{id}", func(r chi.Router) {
		r.Get("/", getFieldHandler(engine))
		r.Patch("/", updateFieldHandler(engine))
	})
}

type pageFieldDTO struct {
	catalog.Field
	Sequence *int `json:"sequence"`
}

func getPageHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := engine.FindPage(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": page})
	}
}

func updatePageHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch PagePatch
		if err := httpx.DecodeJSON(r, &patch); err != nil {
			httpx.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		page, err := engine.UpdatePage(r.Context(), chi.URLParam(r, "id"), patch, httpx.Actor(r))
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": page})
	}
}

func listPageFieldsHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pageID := chi.URLParam(r, "id")
		if _, err := engine.FindPage(r.Context(), pageID); err != nil {
			httpx.WriteError(w, err)
			return
		}

		store := NewStore(engine.DB())
		current, err := store.CurrentVersion(r.Context(), pageID)
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		items := []pageFieldDTO{}
		if current != nil {
			links, err := store.FieldsOfVersion(r.Context(), current.ID)
			if err != nil {
				httpx.WriteError(w, err)
				return
			}
			for _, link := range links {
				field, err := engine.Catalog().FindField(r.Context(), engine.DB(), link.FieldID)
				if err != nil {
					httpx.WriteError(w, err)
					return
				}
				items = append(items, pageFieldDTO{Field: *field, Sequence: link.Sequence})
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": items})
	}
}

func createFieldHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload catalog.FieldInput
		if err := httpx.DecodeJSON(r, &payload); err != nil {
			httpx.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		result, err := engine.CreateFieldOnPage(r.Context(), chi.URLParam(r, "id"), payload, httpx.Actor(r))
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, map[string]any{"data": result})
	}
}

func getFieldHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		field, err := engine.Catalog().FindField(r.Context(), engine.DB(), chi.URLParam(r, "id"))
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": field})
	}
}

func updateFieldHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch catalog.FieldPatch
		if err := httpx.DecodeJSON(r, &patch); err != nil {
			httpx.Error(w, http.StatusBadRequest, err.Error())
			return
		}

		mode := catalog.ConfigMerge
		if r.URL.Query().Get("replace_config") == "true" {
			mode = catalog.ConfigReplace
		}

		field, versionIDs, err := engine.UpdateField(r.Context(), chi.URLParam(r, "id"), patch, mode, httpx.Actor(r))
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{
			"data":          field,
			"bumped_pages":  len(versionIDs),
			"page_versions": versionIDs,
		})
	}
}
