package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kilianp07/warehouse/core/task"
)

// TaskBoard is the part of the task manager served by the API.
type TaskBoard interface {
	Create(typ, source, destination string) (task.Task, error)
	Get(id string) (task.Task, bool)
	List() []task.Task
}

type taskView struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	Status      string    `json:"status"`
	Failure     string    `json:"failure,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func taskViewOf(t task.Task) taskView {
	return taskView{
		ID:          t.ID,
		Type:        t.Type,
		Source:      t.Source,
		Destination: t.Destination,
		Status:      string(t.Status),
		Failure:     t.Failure,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// NewTaskHandler serves the task endpoints:
//
//	GET  /api/tasks
//	POST /api/tasks
//	GET  /api/tasks/{id}
func NewTaskHandler(board TaskBoard) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/tasks"), "/")
		switch {
		case id == "" && r.Method == http.MethodGet:
			list := board.List()
			out := make([]taskView, 0, len(list))
			for _, t := range list {
				out = append(out, taskViewOf(t))
			}
			writeJSON(w, http.StatusOK, out)
		case id == "" && r.Method == http.MethodPost:
			var req struct {
				Type        string `json:"type"`
				Source      string `json:"source"`
				Destination string `json:"destination"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			t, err := board.Create(req.Type, req.Source, req.Destination)
			if err != nil {
				status := http.StatusInternalServerError
				if errors.Is(err, task.ErrEmptyType) {
					status = http.StatusBadRequest
				}
				writeError(w, status, err)
				return
			}
			writeJSON(w, http.StatusCreated, taskViewOf(t))
		case strings.Contains(id, "/"):
			http.NotFound(w, r)
		case id != "" && r.Method == http.MethodGet:
			t, ok := board.Get(id)
			if !ok {
				http.NotFound(w, r)
				return
			}
			writeJSON(w, http.StatusOK, taskViewOf(t))
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}
