package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kilianp07/warehouse/core/charging"
	coremetrics "github.com/kilianp07/warehouse/core/metrics"
	"github.com/kilianp07/warehouse/core/model"
	"github.com/kilianp07/warehouse/infra/journal"
)

// Charging is the part of the coordinator served by the API.
type Charging interface {
	Status() charging.Status
	Submit(agv *model.AGV) error
}

type queuedView struct {
	AGVID   string `json:"agv_id"`
	Battery int    `json:"battery"`
	Urgent  bool   `json:"urgent"`
	WaitMS  int64  `json:"wait_ms"`
}

type chargingView struct {
	Stations        []string     `json:"stations"`
	Busy            []string     `json:"busy"`
	Dispatching     bool         `json:"dispatching"`
	Active          int          `json:"active"`
	DropThresholdMS int64        `json:"drop_threshold_ms"`
	Queue           []queuedView `json:"queue"`
}

type chargeRequest struct {
	AGVID   string `json:"agv_id"`
	Battery int    `json:"battery"`
	Urgent  bool   `json:"urgent"`
}

// NewChargingHandler serves GET /api/charging with the bay and queue state
// and queues an AGV on POST /api/charging.
func NewChargingHandler(c Charging) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			st := c.Status()
			view := chargingView{
				Stations:        st.Stations,
				Busy:            st.Busy,
				Dispatching:     st.Dispatching,
				Active:          st.Active,
				DropThresholdMS: st.DropThreshold.Milliseconds(),
				Queue:           make([]queuedView, 0, len(st.Queue)),
			}
			if view.Busy == nil {
				view.Busy = []string{}
			}
			for _, q := range st.Queue {
				view.Queue = append(view.Queue, queuedView{
					AGVID:   q.AGV.ID,
					Battery: q.AGV.Battery,
					Urgent:  q.AGV.Urgent,
					WaitMS:  q.Wait.Milliseconds(),
				})
			}
			writeJSON(w, http.StatusOK, view)
		case http.MethodPost:
			var req chargeRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			agv, err := model.NewAGV(req.AGVID, req.Battery, req.Urgent)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			if err := c.Submit(agv); err != nil {
				status := http.StatusBadRequest
				if errors.Is(err, charging.ErrClosed) {
					status = http.StatusServiceUnavailable
				}
				writeError(w, status, err)
				return
			}
			writeJSON(w, http.StatusAccepted, req)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

// ChargingLog reads journaled charging outcomes.
type ChargingLog interface {
	QueryCharging(ctx context.Context, q journal.ChargingQuery) ([]coremetrics.ChargingRecord, error)
}

type chargingRecordView struct {
	AGVID     string    `json:"agv_id"`
	StationID string    `json:"station_id,omitempty"`
	Outcome   string    `json:"outcome"`
	Failure   string    `json:"failure,omitempty"`
	Battery   int       `json:"battery"`
	WaitMS    int64     `json:"wait_ms"`
	Time      time.Time `json:"time"`
}

// NewChargingLogHandler exposes journaled outcomes via GET /api/charging/log.
// Supported filters: start and end (RFC3339), agv_id and outcome.
func NewChargingLogHandler(store ChargingLog) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := journal.ChargingQuery{
			AGVID:   r.URL.Query().Get("agv_id"),
			Outcome: r.URL.Query().Get("outcome"),
		}
		if s := r.URL.Query().Get("start"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.Start = t
			}
		}
		if s := r.URL.Query().Get("end"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.End = t
			}
		}
		recs, err := store.QueryCharging(r.Context(), q)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		out := make([]chargingRecordView, 0, len(recs))
		for _, rec := range recs {
			out = append(out, chargingRecordView{
				AGVID:     rec.AGVID,
				StationID: rec.StationID,
				Outcome:   rec.Outcome,
				Failure:   rec.Failure,
				Battery:   rec.Battery,
				WaitMS:    rec.Wait.Milliseconds(),
				Time:      rec.Time,
			})
		}
		writeJSON(w, http.StatusOK, out)
	})
}
