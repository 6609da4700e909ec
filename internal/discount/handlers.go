package discount

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/calvindo/checkout-pricing/internal/common"
)

// Handler exposes read access to discount records.
type Handler struct {
	Store Store
}

// Get returns the public view of a discount code.
func (h Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "discount store not configured", nil)
		return
	}
	code := chi.URLParam(r, "code")
	record, err := h.Store.GetByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "discount not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load discount", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"code":        record.Code,
			"kind":        record.Kind,
			"amount":      record.Amount,
			"minSubtotal": record.MinSubtotal,
			"startsAt":    record.StartsAt,
			"endsAt":      record.EndsAt,
		},
	})
}
