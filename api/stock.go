package api

import (
	"net/http"

	"github.com/kilianp07/warehouse/core/storage"
)

// Inventory reports stock levels.
type Inventory interface {
	Report() []storage.LocationStock
}

type locationView struct {
	ID       string `json:"id"`
	Load     int    `json:"load"`
	Capacity int    `json:"capacity"`
	Free     int    `json:"free"`
}

// NewStockHandler serves GET /api/stock.
func NewStockHandler(inv Inventory) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		report := inv.Report()
		out := make([]locationView, 0, len(report))
		for _, l := range report {
			out = append(out, locationView{ID: l.ID, Load: l.Load, Capacity: l.Capacity, Free: l.Capacity - l.Load})
		}
		writeJSON(w, http.StatusOK, out)
	})
}
