package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/WessleyAI/vinwizard/engine/domain"
	"github.com/WessleyAI/vinwizard/engine/estimate"
	"github.com/WessleyAI/vinwizard/engine/history"
	"github.com/WessleyAI/vinwizard/engine/lookup"
	"github.com/WessleyAI/vinwizard/engine/view"
	"github.com/WessleyAI/vinwizard/pkg/metrics"
	"github.com/WessleyAI/vinwizard/pkg/mid"
	"github.com/WessleyAI/vinwizard/pkg/resilience"
)

//go:embed templates/page.html
var templateFS embed.FS

var pageTmpl = template.Must(template.ParseFS(templateFS, "templates/page.html"))

// breakerReporter exposes the decoder's circuit state on /api/health.
type breakerReporter interface {
	BreakerState() resilience.State
}

type appDeps struct {
	lookups  *lookup.Service
	decoder  breakerReporter
	backend  history.Backend
	metrics  *metrics.Registry
	estimate estimate.Options
	origin   string
	logger   *slog.Logger
}

// app owns the per-session state and runs lookups in the background.
type app struct {
	ctx      context.Context
	lookups  *lookup.Service
	decoder  breakerReporter
	stores   *history.Stores
	sessions *view.Sessions
	metrics  *metrics.Registry
	estimate estimate.Options
	logger   *slog.Logger
	upgrader websocket.Upgrader
	wg       sync.WaitGroup

	recordFailures *metrics.Counter
	liveSessions   *metrics.Gauge
}

func newApp(ctx context.Context, d appDeps) (*app, error) {
	stores, err := history.NewStores(d.backend, 4096, d.logger)
	if err != nil {
		return nil, err
	}
	sessions, err := view.NewSessions(4096)
	if err != nil {
		return nil, err
	}
	if d.metrics == nil {
		d.metrics = metrics.New()
	}
	return &app{
		ctx:            ctx,
		lookups:        d.lookups,
		decoder:        d.decoder,
		stores:         stores,
		sessions:       sessions,
		metrics:        d.metrics,
		estimate:       d.estimate,
		logger:         d.logger,
		upgrader:       websocket.Upgrader{CheckOrigin: checkOrigin(d.origin)},
		recordFailures: d.metrics.Counter("vinwizard_history_record_failures_total", "History writes that failed to persist."),
		liveSessions:   d.metrics.Gauge("vinwizard_sessions", "Sessions currently held in memory."),
	}, nil
}

// wait blocks until background lookups have finished.
func (a *app) wait() { a.wg.Wait() }

// start resolves vin for the session in the background and records it in
// history once it has loaded.
func (a *app) start(id string, sess *view.Session, vin string) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		rec, err := a.lookups.Lookup(a.ctx, vin)
		if err != nil {
			a.logger.Warn("lookup failed", "vin", vin, "err", err)
		}
		if !sess.Resolve(vin, rec, err) || err != nil || !sess.ShouldRecord() {
			return
		}
		if _, err := a.stores.For(a.ctx, id).Record(a.ctx, domain.NewHistoryEntry(vin, rec)); err != nil {
			a.recordFailures.Inc()
			a.logger.Error("history record failed", "vin", vin, "err", err)
			return
		}
		sess.MarkRecorded(vin)
	}()
}

func (a *app) session(r *http.Request) (string, *view.Session) {
	id := mid.SessionID(r.Context())
	sess := a.sessions.Get(id)
	a.liveSessions.Set(int64(a.sessions.Len()))
	return id, sess
}

// --- Page handlers ---

func (a *app) handleIndex(w http.ResponseWriter, r *http.Request) {
	id, sess := a.session(r)
	if q := r.URL.Query().Get("vin"); q != "" {
		if vin, ok := sess.Submit(q); ok {
			a.start(id, sess, vin)
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	page := view.BuildPage(sess.Snapshot(), a.stores.For(r.Context(), id).Entries(), a.estimate)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTmpl.Execute(w, page); err != nil {
		a.logger.Error("render page failed", "err", err)
	}
}

func (a *app) handleLookup(w http.ResponseWriter, r *http.Request) {
	id, sess := a.session(r)
	if vin, ok := sess.Submit(r.FormValue("vin")); ok {
		a.start(id, sess, vin)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (a *app) handleSelect(w http.ResponseWriter, r *http.Request) {
	id, sess := a.session(r)
	store := a.stores.For(r.Context(), id)
	entry := domain.HistoryEntry{VIN: domain.NormalizeVIN(r.FormValue("vin"))}
	for _, e := range store.Entries() {
		if e.VIN == entry.VIN {
			entry = e
			break
		}
	}
	if vin, ok := sess.Select(entry); ok {
		a.start(id, sess, vin)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (a *app) handleDrawer(w http.ResponseWriter, r *http.Request) {
	_, sess := a.session(r)
	sess.ToggleDrawer()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (a *app) handleDrawerClose(w http.ResponseWriter, r *http.Request) {
	_, sess := a.session(r)
	sess.CloseDrawer()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// --- JSON API ---

// VehicleResponse is the JSON body for GET /api/vehicles/{vin}.
type VehicleResponse struct {
	VIN           string                      `json:"vin"`
	Vehicle       domain.VehicleRecord        `json:"vehicle"`
	Estimate      *estimate.ConverterEstimate `json:"estimate"`
	EstimateError *string                     `json:"estimate_error"`
}

func (a *app) handleVehicle(w http.ResponseWriter, r *http.Request) {
	vin := domain.NormalizeVIN(r.PathValue("vin"))
	if vin == "" {
		writeError(w, http.StatusBadRequest, "vin is required")
		return
	}
	rec, err := a.lookups.Lookup(r.Context(), vin)
	if err != nil {
		a.logger.Warn("vehicle lookup failed", "vin", vin, "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	resp := VehicleResponse{VIN: vin, Vehicle: rec}
	if resp.Vehicle == nil {
		resp.Vehicle = domain.VehicleRecord{}
	}
	est, err := estimate.Estimate(estimate.InputFrom(rec), a.estimate)
	if err != nil {
		msg := err.Error()
		resp.EstimateError = &msg
	} else {
		resp.Estimate = &est
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *app) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, _ := a.session(r)
	writeJSON(w, http.StatusOK, a.stores.For(r.Context(), id).Entries())
}

func (a *app) handleRecord(w http.ResponseWriter, r *http.Request) {
	var e domain.HistoryEntry
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	e.VIN = domain.NormalizeVIN(e.VIN)

	id, _ := a.session(r)
	list, err := a.stores.For(r.Context(), id).Record(r.Context(), e)
	switch {
	case errors.Is(err, domain.ErrEmptyVIN):
		writeError(w, http.StatusBadRequest, "vin is required")
		return
	case err != nil:
		a.recordFailures.Inc()
		a.logger.Error("history record failed", "vin", e.VIN, "err", err)
		writeError(w, http.StatusInternalServerError, "history could not be saved")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *app) handleState(w http.ResponseWriter, r *http.Request) {
	_, sess := a.session(r)
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (a *app) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]string{"status": "ok"}
	if a.decoder != nil {
		resp["decoder"] = a.decoder.BreakerState().String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
