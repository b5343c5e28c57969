package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/trackvision/tv-shared-go/logger"
	"go.uber.org/zap"

	"alphadip-config/configs"
	"alphadip-config/pipelines"
	"alphadip-config/pipelines/setup"
	"alphadip-config/tasks"
	"alphadip-config/types"
)

// historySource returns recent check runs
type historySource interface {
	History(ctx context.Context, q tasks.LogQuery) ([]tasks.CheckRun, error)
}

type server struct {
	env      *configs.Env
	holder   *configs.Holder
	history  historySource
	registry *prometheus.Registry
	metrics  *metrics

	// newState builds the pipeline state for a check run
	newState func(ctx context.Context, cfg configs.Config, offline bool) (*pipelines.State, error)
}

func newServer(env *configs.Env, holder *configs.Holder) *server {
	reg := prometheus.NewRegistry()
	s := &server{
		env:      env,
		holder:   holder,
		registry: reg,
		metrics:  newMetrics(reg),
	}
	s.newState = func(ctx context.Context, cfg configs.Config, offline bool) (*pipelines.State, error) {
		if offline {
			return pipelines.NewOfflineState(cfg), nil
		}
		return pipelines.NewState(ctx, cfg, env.HTTPTimeout)
	}
	holder.OnReload(func(_ configs.Config, err error) {
		s.metrics.observeReload(err)
	})
	return s
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	mux.HandleFunc("/config.js", s.handleBrowserConfig)
	mux.HandleFunc("/pipelines", s.handlePipelines)
	mux.HandleFunc("GET /pipelines/{name}/dag", s.handlePipelineDAG)
	mux.HandleFunc("/history", s.handleHistory)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	// Each check spends Sheets API quota
	var check http.Handler = http.HandlerFunc(s.handleCheck)
	if s.env.CheckRateLimit > 0 {
		// Cloud Run forwards the client address in X-Forwarded-For
		check = httprate.Limit(
			s.env.CheckRateLimit,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByRealIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "too many checks, try again in a minute")
			}),
		)(check)
	}
	mux.Handle("/run/check", check)

	return mux
}

func (s *server) handleBrowserConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	cfg := s.holder.Get()
	if err := cfg.Validate(); err != nil {
		var ve *configs.ValidationError
		keys := "configuration"
		if errors.As(err, &ve) {
			keys = strings.Join(ve.Keys(), ", ")
		}
		logger.Warn("refusing to serve invalid browser config", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, "// Alphadip Tracker is not configured: check "+keys+" in "+configs.RuntimeFileName+"\n")
		return
	}

	body, err := configs.RenderBrowserConfig(cfg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write(body)
}

func (s *server) handlePipelines(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"pipelines": pipelines.Descriptors(),
	})
}

func (s *server) handlePipelineDAG(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, ok := pipelines.GetDescriptor(name); !ok {
		writeError(w, http.StatusNotFound, "unknown pipeline "+name)
		return
	}

	graph, err := pipelines.DescribeJob(name, pipelines.NewOfflineState(s.holder.Get()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(graph)
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotImplemented, "check history requires GCP_PROJECT_ID")
		return
	}

	q := tasks.LogQuery{Pipeline: r.URL.Query().Get("pipeline")}
	if q.Pipeline != "" {
		if _, ok := pipelines.GetDescriptor(q.Pipeline); !ok {
			writeError(w, http.StatusBadRequest, "unknown pipeline: "+q.Pipeline)
			return
		}
	}
	sev, err := tasks.NormalizeSeverity(r.URL.Query().Get("severity"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q.Severity = sev
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since duration")
			return
		}
		q.Since = d
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		q.Limit = n
	}

	runs, err := s.history.History(r.Context(), q)
	if err != nil {
		logger.Error("history query failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"runs": runs})
}

func (s *server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req types.CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	state, err := s.newState(r.Context(), s.holder.Get(), req.Offline)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	pipeline, err := pipelines.New(setup.Name, state)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "pipeline not found")
		return
	}

	logger.Info("check started", zap.Bool("offline", req.Offline))
	report, err := pipeline.Run(r.Context())
	s.metrics.observeCheck(report)
	if err != nil {
		logger.Error("check failed", zap.Error(err))
	} else {
		logger.Info("check complete", zap.Float64("duration", report.Duration))
	}

	w.Header().Set("Content-Type", "application/json")
	if !report.Success {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}
	json.NewEncoder(w).Encode(report)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(types.CheckReport{
		Success: false,
		Error:   message,
	})
}
