package serving

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"creditscore/internal/logging"
	"creditscore/internal/telemetry"
)

const maxBody = 1 << 20

// Scorer is what the HTTP and gRPC front ends call.
type Scorer interface {
	Predict(ctx context.Context, in map[string]any) (Result, error)
}

// Router mounts GET /health and POST /predict/.
func Router(s Scorer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, Result{Result: "OK"})
	})
	r.Post("/predict/", predictHandler(s))
	return r
}

func predictHandler(s Scorer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
		dec.UseNumber()
		var in map[string]any
		if err := dec.Decode(&in); err != nil {
			if errors.Is(err, io.EOF) {
				err = errors.New("empty body")
			}
			telemetry.Predictions.WithLabelValues("http", "invalid").Inc()
			writeJSON(w, http.StatusBadRequest, Result{ErrorMsg: fmt.Sprintf("decode request: %v", err)})
			return
		}

		res, err := s.Predict(r.Context(), in)
		status := statusFor(err)
		telemetry.Predictions.WithLabelValues("http", outcome(err)).Inc()
		if status >= http.StatusInternalServerError {
			logging.L().Error("prediction failed", "err", err, "request_id", middleware.GetReqID(r.Context()))
		}
		writeJSON(w, status, res)
	}
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsInputError(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// outcome labels the prediction counter.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsInputError(err):
		return "invalid"
	case errors.Is(err, ErrNotReady):
		return "not_ready"
	default:
		return "error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ServeHTTP listens on port until ctx is done.
func ServeHTTP(ctx context.Context, port int, h http.Handler) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
	logging.L().Info("http listening", "port", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
