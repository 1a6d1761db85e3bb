package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kilianp07/warehouse/core/order"
	"github.com/kilianp07/warehouse/core/storage"
)

// OrderBook is the part of the order manager served by the API.
type OrderBook interface {
	Create(medicine string, quantity int, locationID string) (order.Order, error)
	CreateEmergency(medicine string, quantity int, locationID string) (order.Order, error)
	Complete(id string) (order.Order, error)
	Cancel(id string) (order.Order, error)
	Get(id string) (order.Order, bool)
	List() []order.Order
}

type orderView struct {
	ID         string    `json:"id"`
	Medicine   string    `json:"medicine"`
	Quantity   int       `json:"quantity"`
	LocationID string    `json:"location_id"`
	Emergency  bool      `json:"emergency"`
	Status     string    `json:"status"`
	Failure    string    `json:"failure,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func viewOf(o order.Order) orderView {
	return orderView{
		ID:         o.ID,
		Medicine:   o.Medicine,
		Quantity:   o.Quantity,
		LocationID: o.LocationID,
		Emergency:  o.Emergency,
		Status:     string(o.Status),
		Failure:    o.Failure,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

type createOrder struct {
	Medicine   string `json:"medicine"`
	Quantity   int    `json:"quantity"`
	LocationID string `json:"location_id"`
	Emergency  bool   `json:"emergency"`
}

// NewOrderHandler serves the order endpoints:
//
//	GET  /api/orders
//	POST /api/orders
//	GET  /api/orders/{id}
//	POST /api/orders/{id}/complete
//	POST /api/orders/{id}/cancel
func NewOrderHandler(book OrderBook) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/orders"), "/")
		if path == "" {
			switch r.Method {
			case http.MethodGet:
				list := book.List()
				out := make([]orderView, 0, len(list))
				for _, o := range list {
					out = append(out, viewOf(o))
				}
				writeJSON(w, http.StatusOK, out)
			case http.MethodPost:
				createHandler(book, w, r)
			default:
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			}
			return
		}

		parts := strings.Split(path, "/")
		id := parts[0]
		switch {
		case len(parts) == 1 && r.Method == http.MethodGet:
			o, ok := book.Get(id)
			if !ok {
				http.NotFound(w, r)
				return
			}
			writeJSON(w, http.StatusOK, viewOf(o))
		case len(parts) == 2 && r.Method == http.MethodPost && parts[1] == "complete":
			o, err := book.Complete(id)
			if err != nil {
				if o.ID != "" {
					// Picked but storage refused: the order is FAILED.
					writeJSON(w, http.StatusConflict, viewOf(o))
					return
				}
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, viewOf(o))
		case len(parts) == 2 && r.Method == http.MethodPost && parts[1] == "cancel":
			o, err := book.Cancel(id)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, viewOf(o))
		case len(parts) <= 2:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		default:
			http.NotFound(w, r)
		}
	})
}

func createHandler(book OrderBook, w http.ResponseWriter, r *http.Request) {
	var req createOrder
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	create := book.Create
	if req.Emergency {
		create = book.CreateEmergency
	}
	o, err := create(req.Medicine, req.Quantity, req.LocationID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(o))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrNotOpen):
		return http.StatusConflict
	case errors.Is(err, order.ErrEmptyMedicine),
		errors.Is(err, order.ErrInvalidQuantity),
		errors.Is(err, storage.ErrUnknownLocation):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
