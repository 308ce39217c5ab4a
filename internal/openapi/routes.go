package openapi

import (
	_ "embed"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/strefethen/sonos-player-go/internal/api"
	"github.com/strefethen/sonos-player-go/internal/apperrors"
)

//go:embed sonos-player.v1.yaml
var document []byte

// RegisterRoutes wires OpenAPI routes to the router.
func RegisterRoutes(router chi.Router) {
	router.Method(http.MethodGet, "/v1/openapi", api.Handler(serveOpenAPIYAML))
	router.Method(http.MethodGet, "/v1/openapi.json", api.Handler(serveOpenAPIJSON))
}

func serveOpenAPIYAML(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "text/yaml; charset=utf-8")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(document)
	return nil
}

func serveOpenAPIJSON(w http.ResponseWriter, r *http.Request) error {
	var parsed map[string]any
	if err := yaml.Unmarshal(document, &parsed); err != nil {
		return apperrors.NewInternalError("Failed to parse OpenAPI document").WithCause(err)
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	return api.WriteJSON(w, http.StatusOK, parsed)
}
