package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"voice-dialogue-service/internal/service/audio"
	"voice-dialogue-service/internal/service/latency"
	"voice-dialogue-service/internal/service/session"
)

// Controller is the session surface exposed over HTTP.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() session.Status
	LastTurn() (latency.Record, bool)
}

// LatencyView is the JSON form of the last completed turn's latencies.
type LatencyView struct {
	TurnID               string `json:"turnId"`
	Text                 string `json:"text"`
	RecognitionLatencyMs int64  `json:"recognitionLatencyMs"`
	DialogueLatencyMs    int64  `json:"dialogueLatencyMs"`
	TotalLatencyMs       int64  `json:"totalLatencyMs"`
	ResponseMissing      bool   `json:"responseMissing"`
}

const stopTimeout = 10 * time.Second

// NewRouter constructs the HTTP router for the service.
func NewRouter(ctrl Controller, hub *Hub) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if ctrl.Status().State != session.StateActive.String() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("inactive"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Get("/session", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, ctrl.Status())
		})

		r.Post("/session/start", func(w http.ResponseWriter, r *http.Request) {
			if err := ctrl.Start(r.Context()); err != nil {
				code := http.StatusInternalServerError
				if errors.Is(err, audio.ErrDeviceUnavailable) || errors.Is(err, audio.ErrInvalidBuffer) {
					code = http.StatusServiceUnavailable
				}
				writeError(w, code, err)
				return
			}
			writeJSON(w, http.StatusOK, ctrl.Status())
		})

		r.Post("/session/stop", func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), stopTimeout)
			defer cancel()
			if err := ctrl.Stop(ctx); err != nil {
				writeError(w, http.StatusGatewayTimeout, err)
				return
			}
			writeJSON(w, http.StatusOK, ctrl.Status())
		})

		r.Get("/latency", func(w http.ResponseWriter, _ *http.Request) {
			rec, ok := ctrl.LastTurn()
			if !ok {
				writeError(w, http.StatusNotFound, errors.New("no completed turns"))
				return
			}
			writeJSON(w, http.StatusOK, LatencyView{
				TurnID:               rec.TurnID,
				Text:                 rec.Text,
				RecognitionLatencyMs: rec.RecognitionLatency.Milliseconds(),
				DialogueLatencyMs:    rec.DialogueLatency.Milliseconds(),
				TotalLatencyMs:       rec.TotalLatency.Milliseconds(),
				ResponseMissing:      rec.ResponseMissing,
			})
		})

		if hub != nil {
			r.Get("/turns/ws", hub.ServeWS)
		}
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
