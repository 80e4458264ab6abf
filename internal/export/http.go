package export

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/csuvg/PG-2025-21169/internal/httpx"
)

// RegisterRoutes wires the export handler to the provided router group.
func RegisterRoutes(router chi.Router, svc *Service) {
	router.Get("/exports/{formID}", exportHandler(svc))
}

func exportHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.Export(r.Context(), chi.URLParam(r, "formID"))
		if err != nil {
			httpx.WriteError(w, err)
			return
		}

		format := r.URL.Query().Get("fmt")
		switch format {
		case "", "csv":
			writeCSV(w, result)
		case "json":
			httpx.JSON(w, http.StatusOK, map[string]any{"data": result.JSONPayload()})
		default:
			httpx.Error(w, http.StatusBadRequest, "fmt must be csv or json")
		}
	}
}

// writeCSV sends a single CSV file, or a zip holding the main and group
// CSVs when the form has repeatable groups.
func writeCSV(w http.ResponseWriter, result *Result) {
	base := result.FileBaseName()
	var buf bytes.Buffer

	if result.HasGroups() {
		if err := RenderZip(&buf, result); err != nil {
			httpx.Error(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", base+".zip"))
	} else {
		if err := RenderCSV(&buf, result.Rows); err != nil {
			httpx.Error(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", base+".csv"))
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
