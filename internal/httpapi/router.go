package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jkaflik/tbcover2mqtt/internal/cover"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type Snapshotter interface {
	Snapshot(ctx context.Context, id string) ([]cover.Record, error)
}

type api struct {
	covers  Snapshotter
	timeout time.Duration
}

func NewRouter(covers Snapshotter, gatherer prometheus.Gatherer) *mux.Router {
	a := &api{covers: covers, timeout: 2 * time.Second}

	r := mux.NewRouter()
	r.HandleFunc("/health", healthHandler).Methods("GET")
	r.HandleFunc("/covers", a.listCovers).Methods("GET")
	r.HandleFunc("/covers/{id}", a.getCover).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")

	return r
}

// Serve runs the API on addr until ctx is canceled.
func Serve(ctx context.Context, addr string, router http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handlers.RecoveryHandler()(handlers.LoggingHandler(logrus.StandardLogger().Writer(), router)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.Errorf("http: shutdown: %s", err)
		}
	}()

	logrus.Infof("http: listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) listCovers(w http.ResponseWriter, r *http.Request) {
	a.respond(w, r, "")
}

func (a *api) getCover(w http.ResponseWriter, r *http.Request) {
	a.respond(w, r, mux.Vars(r)["id"])
}

func (a *api) respond(w http.ResponseWriter, r *http.Request, id string) {
	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()

	records, err := a.covers.Snapshot(ctx, id)
	switch {
	case errors.Is(err, cover.ErrUnknownCover):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	case err != nil:
		logrus.Errorf("http: snapshot: %s", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}

	if id != "" && len(records) == 1 {
		writeJSON(w, http.StatusOK, records[0])
		return
	}

	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("http: encode response: %s", err)
	}
}
