package form

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/csuvg/PG-2025-21169/internal/httpx"
	"github.com/csuvg/PG-2025-21169/internal/versioning"
)

// RegisterRoutes wires the form and category handlers to the provided router
// group.
func RegisterRoutes(router chi.Router, svc *Service, engine *versioning.Engine) {
	router.Route("/forms", func(r chi.Router) {
		r.Get("/", listFormsHandler(svc))
		r.Post("/", createFormHandler(svc))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", getFormHandler(svc))
			r.Patch("/", updateFormHandler(svc))
			r.Delete("/", deleteFormHandler(svc))
			r.Post("/suspend", suspendFormHandler(svc))
			r.Post("/duplicate", duplicateFormHandler(svc))
			r.Get("/structure", structureHandler(svc))
			r.Get("/pages", listPagesHandler(svc))
			r.Post("/pages", addPageHandler(engine))
		})
	})
	router.Route("/categories", func(r chi.Router) {
		r.Get("/", listCategoriesHandler(svc))
		r.Post("/", createCategoryHandler(svc))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", getCategoryHandler(svc))
			r.Patch("/", updateCategoryHandler(svc))
			r.Delete("/", deleteCategoryHandler(svc))
		})
	})
}

type duplicateRequest struct {
	Name string `json:"nombre"`
}

type addPageRequest struct {
	Name        string `json:"nombre"`
	Description string `json:"descripcion"`
	Bump        *bool  `json:"bump"`
}

type categoryRequest struct {
	Name        string `json:"nombre"`
	Description string `json:"descripcion"`
}

func listFormsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		forms, err := svc.List(r.Context(), r.URL.Query().Get("search"))
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": forms})
	}
}

func createFormHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload CreateInput
		if err := httpx.DecodeJSON(r, &payload); err != nil {
			httpx.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		entity, err := svc.Create(r.Context(), payload)
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, map[string]any{"data": entity})
	}
}

func getFormHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entity, err := svc.Find(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": entity})
	}
}

func updateFormHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var updates map[string]any
		if err := httpx.DecodeJSON(r, &updates); err != nil {
			httpx.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		entity, err := svc.Update(r.Context(), chi.URLParam(r, "id"), updates)
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": entity})
	}
}

func deleteFormHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"deleted": true}})
	}
}

func suspendFormHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entity, err := svc.Suspend(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": entity})
	}
}

func duplicateFormHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload duplicateRequest
		if err := httpx.DecodeJSON(r, &payload); err != nil && err.Error() != "request body is empty" {
			httpx.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		entity, err := svc.Duplicate(r.Context(), chi.URLParam(r, "id"), payload.Name)
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, map[string]any{"data": entity})
	}
}

func structureHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		structure, err := svc.Structure(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": structure})
	}
}

func listPagesHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formID := chi.URLParam(r, "id")
		if _, err := svc.Find(r.Context(), formID); err != nil {
			httpx.WriteError(w, err)
			return
		}
		latest, err := svc.engine.LatestFormVersion(r.Context(), formID)
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		pages := []versioning.Page{}
		if latest != nil {
			pages, err = svc.engine.PagesOfVersion(r.Context(), latest.ID)
			if err != nil {
				httpx.WriteError(w, err)
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": pages})
	}
}

func addPageHandler(engine *versioning.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload addPageRequest
		if err := httpx.DecodeJSON(r, &payload); err != nil {
			httpx.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		bump := payload.Bump == nil || *payload.Bump
		page, err := engine.AddPage(r.Context(), chi.URLParam(r, "id"), payload.Name, payload.Description, bump)
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, map[string]any{"data": page})
	}
}

func listCategoriesHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		categories, err := svc.Categories(r.Context())
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": categories})
	}
}

func createCategoryHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload categoryRequest
		if err := httpx.DecodeJSON(r, &payload); err != nil {
			httpx.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		category, err := svc.CreateCategory(r.Context(), payload.Name, payload.Description)
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, map[string]any{"data": category})
	}
}

func getCategoryHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category, err := svc.FindCategory(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": category})
	}
}

func updateCategoryHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var updates map[string]any
		if err := httpx.DecodeJSON(r, &updates); err != nil {
			httpx.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		category, err := svc.UpdateCategory(r.Context(), chi.URLParam(r, "id"), updates)
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": category})
	}
}

func deleteCategoryHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"deleted": true}})
	}
}
