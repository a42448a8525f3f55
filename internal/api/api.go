// Package api serves run history and tier rows over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/tess-exoclass/internal/model"
	"github.com/sells-group/tess-exoclass/internal/store"
	"github.com/sells-group/tess-exoclass/internal/tier"
)

type handler struct {
	store store.Store
}

// NewRouter builds the read-only results API on top of st.
func NewRouter(st store.Store, allowedOrigins []string) http.Handler {
	h := &handler{store: st}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", h.listRuns)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getRun)
			r.Get("/tiers", h.listTiers)
			r.Get("/tiers/{tier}", h.listTiers)
			r.Get("/flags", h.flagCounts)
		})
	})
	return r
}

func (h *handler) listRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		Status: model.RunStatus(q.Get("status")),
		Name:   q.Get("name"),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	runs, err := h.store.ListRuns(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *handler) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *handler) listTiers(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tierNum := 0
	if s := chi.URLParam(r, "tier"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 3 {
			writeError(w, http.StatusBadRequest, "tier must be 1, 2 or 3")
			return
		}
		tierNum = n
	}

	// 404 for unknown runs rather than an empty list.
	if _, err := h.store.GetRun(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	rows, err := h.store.ListTierRows(r.Context(), id, tierNum)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if rows == nil {
		rows = []model.TierRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// FlagCount is how many rows of a run raised one vetting flag.
type FlagCount struct {
	Flag  string `json:"flag"`
	Count int    `json:"count"`
}

// flagCounts tallies the raised flags over every tier row of a run, in
// evaluation order. Rows with an unreadable bit vector are skipped.
func (h *handler) flagCounts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.store.GetRun(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	rows, err := h.store.ListTierRows(r.Context(), id, 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	flags := tier.AllFlags()
	out := make([]FlagCount, len(flags))
	for i, f := range flags {
		out[i].Flag = f.String()
	}
	for _, row := range rows {
		set, ok := tier.ParseBits(row.FlagBits)
		if !ok {
			zap.L().Debug("api: unreadable flag bits",
				zap.Uint64("tic", row.TIC), zap.String("bits", row.FlagBits))
			continue
		}
		for i, f := range flags {
			if set.Has(f) {
				out[i].Count++
			}
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, model.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	zap.L().Error("api: request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("invalid")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}
