package tax

import (
	"net/http"
	"strings"

	"github.com/calvindo/checkout-pricing/internal/common"
)

// Handler exposes the rate resolver over HTTP.
type Handler struct {
	Resolver *Resolver
}

// Get resolves the effective rate for the requested jurisdiction.
func (h Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Resolver == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "tax resolver not configured", nil)
		return
	}
	country := strings.TrimSpace(r.URL.Query().Get("country"))
	if country == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "country is required", nil)
		return
	}
	region := strings.TrimSpace(r.URL.Query().Get("region"))
	rate, err := h.Resolver.RateFor(r.Context(), country, region)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to resolve tax rate", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"country": strings.ToUpper(country),
			"region":  strings.ToUpper(region),
			"rate":    rate,
		},
	})
}
