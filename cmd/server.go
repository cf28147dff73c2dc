package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-cli/internal/model"
	"github.com/sells-group/lead-cli/internal/monitoring"
	"github.com/sells-group/lead-cli/internal/pipeline"
	"github.com/sells-group/lead-cli/internal/router"
	"github.com/sells-group/lead-cli/internal/source"
	"github.com/sells-group/lead-cli/internal/store"
)

const maxIngestBody = 10 << 20

// api serves lead queries, rescoring and push ingestion over HTTP.
type api struct {
	store    store.Store
	router   *router.Router
	pipeline *pipeline.Pipeline
}

// newHandler builds the HTTP routes. Identity keys are URLs, so lead
// endpoints take the key as a query parameter.
func newHandler(a *api) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", a.health)
	r.Method(http.MethodGet, "/metrics", monitoring.Handler())
	r.Get("/stats", a.stats)
	r.Get("/leads", a.queryLeads)
	r.Get("/lead", a.getLead)
	r.Post("/lead/rescore", a.rescoreLead)
	r.Post("/ingest/{platform}", a.ingest)
	return r
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) stats(w http.ResponseWriter, r *http.Request) {
	s, err := a.store.Stats(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active":    s.Active,
		"discarded": s.Discarded,
		"by_status": s.ByStatus,
	})
}

func (a *api) queryLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lo, err := queryFloat(q.Get("min"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "min must be a number")
		return
	}
	hi, err := queryFloat(q.Get("max"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "max must be a number")
		return
	}
	scope, err := store.ParseScope(q.Get("scope"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "scope must be active or all")
		return
	}
	limit := 100
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	leads, err := a.router.QueryByScore(r.Context(), lo, hi, scope, limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if leads == nil {
		leads = []model.Lead{}
	}
	writeJSON(w, http.StatusOK, leads)
}

func (a *api) getLead(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	lead, bucket, err := a.store.Get(r.Context(), key)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"store": bucket, "lead": lead})
}

func (a *api) rescoreLead(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	res, err := a.router.Rescore(r.Context(), key)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"from":           res.From,
		"to":             res.To,
		"previous_score": res.Previous,
		"lead":           res.Lead,
	})
}

func (a *api) ingest(w http.ResponseWriter, r *http.Request) {
	platform, err := model.ParsePlatform(chi.URLParam(r, "platform"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	recs, err := source.DecodeRecords(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON array or JSON lines of objects")
		return
	}

	name := "http:" + string(platform)
	res, err := a.pipeline.RunSources(r.Context(), []source.Adapter{source.NewStatic(name, platform, recs)}, 1)
	if err != nil {
		// Partial counters go back with the error.
		zap.L().Error("http ingest failed", zap.String("platform", string(platform)), zap.Error(err))
		status, msg := storeErrorStatus(err)
		writeJSON(w, status, map[string]any{"error": msg, "result": res})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func queryFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// storeErrorStatus maps store sentinels onto HTTP status codes.
func storeErrorStatus(err error) (int, string) {
	switch {
	case eris.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "lead not found"
	case eris.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable, "store unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	status, msg := storeErrorStatus(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
	}
	writeError(w, status, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response", zap.Error(err))
	}
}
