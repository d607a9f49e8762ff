package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"skypointer/internal/controller"
	"skypointer/internal/hostlink"
)

// StatusSnapshot is the diagnostic view served at /api/status.
type StatusSnapshot struct {
	Controller controller.Snapshot `json:"controller"`
	Link       hostlink.Snapshot   `json:"link"`
	Now        time.Time           `json:"now_utc"`
}

// Handler serves the status API. snapCtrl/snapLink are snapshot getters
// from the running services.
func Handler(snapCtrl func() controller.Snapshot, snapLink func() hostlink.Snapshot) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		snap := StatusSnapshot{Now: time.Now().UTC()}
		if snapCtrl != nil {
			snap.Controller = snapCtrl()
		}
		if snapLink != nil {
			snap.Link = snapLink()
		}
		b, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			http.Error(w, "marshal failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
		_, _ = w.Write([]byte("\n"))
	})

	return mux
}

// Serve runs the status server until ctx is done.
func Serve(ctx context.Context, listen string, h http.Handler) error {
	srv := &http.Server{Addr: listen, Handler: h}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
