package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/mazholin/jobpilot/internal/discovery"
	"github.com/mazholin/jobpilot/internal/ledger"
	"github.com/mazholin/jobpilot/internal/orchestrator"
)

func RegisterApi(router *chi.Mux, orch *orchestrator.Orchestrator, params *discovery.SearchParams, logger *zap.Logger) {
	router.Post("/api/v1/apply", func(w http.ResponseWriter, r *http.Request) {
		applyHandler(orch, params, logger, w, r)
	})
	router.Post("/api/v1/pause", func(w http.ResponseWriter, r *http.Request) {
		orch.Pause()
		w.WriteHeader(http.StatusNoContent)
	})
	router.Post("/api/v1/resume", func(w http.ResponseWriter, r *http.Request) {
		orch.Resume()
		w.WriteHeader(http.StatusNoContent)
	})
	router.Post("/api/v1/stop", func(w http.ResponseWriter, r *http.Request) {
		orch.Stop()
		w.WriteHeader(http.StatusNoContent)
	})
	router.Post("/api/v1/retry", func(w http.ResponseWriter, r *http.Request) {
		maxCount := queryInt(r, "max", 5)
		outcome, err := orch.RetryFailed(r.Context(), maxCount)
		if err != nil {
			if errors.Is(err, orchestrator.ErrAlreadyRunning) {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_ = render.Render(w, r, RetryReply{Retried: outcome.Retried, Succeeded: outcome.Succeeded})
	})
	router.Get("/api/v1/stats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := orch.Stats()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_ = render.Render(w, r, StatsReply{Stats: stats})
	})
	router.Get("/api/v1/history", func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", 20)
		records, err := orch.History(limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []*ledger.Record{}
		}
		_ = render.Render(w, r, HistoryReply{Records: records})
	})
}

// ApplyRequest optionally overrides the configured search criteria and may
// defer the start to a future instant.
type ApplyRequest struct {
	Keywords   string     `json:"keywords,omitempty"`
	Location   string     `json:"location,omitempty"`
	ScheduleAt *time.Time `json:"schedule_at,omitempty"`
}

func (a *ApplyRequest) Bind(r *http.Request) error { return nil }

func applyHandler(orch *orchestrator.Orchestrator, params *discovery.SearchParams, logger *zap.Logger, w http.ResponseWriter, r *http.Request) {
	req := &ApplyRequest{}
	if r.ContentLength > 0 {
		if err := render.Bind(r, req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	runParams := *params
	if req.Keywords != "" {
		runParams.Keywords = req.Keywords
	}
	if req.Location != "" {
		runParams.Location = req.Location
	}

	// The run must outlive this request, so it cannot inherit r.Context().
	if req.ScheduleAt != nil {
		if err := orch.ScheduleAt(context.Background(), *req.ScheduleAt, &runParams); err != nil {
			if errors.Is(err, orchestrator.ErrScheduleInPast) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		logger.Info("run scheduled via api", zap.Timep("at", req.ScheduleAt))
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if err := orch.Start(context.Background(), &runParams); err != nil {
		if errors.Is(err, orchestrator.ErrAlreadyRunning) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	logger.Info("run started via api", zap.String("keywords", runParams.Keywords))
	w.WriteHeader(http.StatusAccepted)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

type RetryReply struct {
	Retried   int `json:"retried"`
	Succeeded int `json:"succeeded"`
}

type StatsReply struct {
	*orchestrator.Stats
}

type HistoryReply struct {
	Records []*ledger.Record `json:"records"`
}

func (r RetryReply) Render(w http.ResponseWriter, req *http.Request) error   { return nil }
func (s StatsReply) Render(w http.ResponseWriter, req *http.Request) error   { return nil }
func (h HistoryReply) Render(w http.ResponseWriter, req *http.Request) error { return nil }
