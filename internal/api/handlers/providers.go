package handlers

import "net/http"

// ChainInfo describes the configured provider chain.
type ChainInfo interface {
	Providers() []string
	Detector() string
}

type ProvidersHandler struct {
	chain ChainInfo
}

func NewProvidersHandler(chain ChainInfo) *ProvidersHandler {
	return &ProvidersHandler{chain: chain}
}

func (h *ProvidersHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"providers": h.chain.Providers(),
		"detector":  h.chain.Detector(),
	})
}
