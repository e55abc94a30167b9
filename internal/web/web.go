// Package web serves the control page and the JSON API over a session
// controller.
package web

import (
	_ "embed"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/satindergrewal/sruthi/internal/session"
	"github.com/satindergrewal/sruthi/internal/theory"
)

//go:embed index.html
var IndexHTML []byte

// NewMux returns a mux with the page and the /api routes registered. Stream
// endpoints are mounted by the caller.
func NewMux(ctrl *session.Controller) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(IndexHTML)
	})

	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ctrl.Snapshot())
	})

	mux.HandleFunc("/api/catalog", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, catalog())
	})

	mux.HandleFunc("/api/tonic", post(ctrl, func(r *http.Request) error {
		var req struct {
			Kattai string `json:"kattai"`
		}
		if err := decode(r, &req); err != nil {
			return err
		}
		return ctrl.SelectTonic(req.Kattai)
	}))

	mux.HandleFunc("/api/raga", post(ctrl, func(r *http.Request) error {
		var req struct {
			ID string `json:"id"`
		}
		if err := decode(r, &req); err != nil {
			return err
		}
		return ctrl.SelectRaga(req.ID)
	}))

	mux.HandleFunc("/api/pulse", post(ctrl, func(r *http.Request) error {
		var req struct {
			Seconds *int `json:"seconds"`
		}
		if err := decode(r, &req); err != nil {
			return err
		}
		if req.Seconds == nil {
			return errBadRequest
		}
		return ctrl.SelectPulse(*req.Seconds)
	}))

	mux.HandleFunc("/api/volume", post(ctrl, func(r *http.Request) error {
		var req struct {
			Level *float64 `json:"level"`
		}
		if err := decode(r, &req); err != nil {
			return err
		}
		if req.Level == nil {
			return errBadRequest
		}
		return ctrl.SetVolume(*req.Level)
	}))

	mux.HandleFunc("/api/tap", post(ctrl, func(r *http.Request) error {
		var req struct {
			Swara string `json:"swara"`
		}
		if err := decode(r, &req); err != nil {
			return err
		}
		id, ok := theory.ParseSwara(req.Swara)
		if !ok {
			return session.ErrUnknownSwara
		}
		return ctrl.Tap(id)
	}))

	mux.HandleFunc("/api/stop", post(ctrl, func(r *http.Request) error {
		ctrl.Stop()
		return nil
	}))

	// An empty body toggles.
	mux.HandleFunc("/api/mode", post(ctrl, func(r *http.Request) error {
		var req struct {
			Mode *session.Mode `json:"mode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			return errBadRequest
		}
		if req.Mode == nil {
			ctrl.ToggleMode()
			return nil
		}
		return ctrl.SetMode(*req.Mode)
	}))

	mux.HandleFunc("/api/loop/backspace", post(ctrl, func(r *http.Request) error {
		ctrl.Backspace()
		return nil
	}))

	mux.HandleFunc("/api/loop/clear", post(ctrl, func(r *http.Request) error {
		ctrl.Clear()
		return nil
	}))

	mux.HandleFunc("/api/loop/toggle", post(ctrl, func(r *http.Request) error {
		_, err := ctrl.ToggleLoop()
		return err
	}))

	return mux
}

var errBadRequest = errors.New("invalid request")

// post wraps a state-changing call. Every response carries the resulting
// snapshot, including audio failures where the selection still applied.
func post(ctrl *session.Controller, fn func(r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		err := fn(r)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, ctrl.Snapshot())
		case errors.Is(err, session.ErrAudio):
			log.Printf("Audio: %v", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"error": "audio unavailable",
				"state": ctrl.Snapshot(),
			})
		default:
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		}
	}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadRequest
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type ragaEntry struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Scale []theory.Swara `json:"scale"`
}

func catalog() map[string]any {
	ragas := make([]ragaEntry, 0, len(theory.Ragas))
	for _, r := range theory.Ragas {
		ragas = append(ragas, ragaEntry{ID: r.ID, Name: r.Name, Scale: r.Scale()})
	}
	swaras := make([]string, 0, theory.NumSwaras)
	for id := theory.Sa; id < theory.NumSwaras; id++ {
		swaras = append(swaras, id.Key())
	}
	return map[string]any{
		"tonics": theory.Sruthis,
		"ragas":  ragas,
		"pulses": theory.PulseOptions,
		"swaras": swaras,
	}
}
