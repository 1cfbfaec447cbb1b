// Command faultyserver is a local stand-in for the upstream the poller
// targets. Each GET answers with {"value": n} or {"error": "..."} after a
// random delay.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"time"

	"github.com/spf13/pflag"
)

type faults struct {
	errorRate float64
	maxDelay  time.Duration
	maxValue  uint32
	rnd       func() float64
}

var failures = []struct {
	status  int
	message string
}{
	{http.StatusInternalServerError, "Internal Server Error"},
	{http.StatusTooManyRequests, "Too Many Requests"},
	{http.StatusServiceUnavailable, "Service Unavailable"},
}

func main() {
	port := pflag.Int("port", 3000, "Listening port")
	errorRate := pflag.Float64("error-rate", 0.3, "Fraction of requests answered with an error payload")
	maxDelay := pflag.Duration("max-delay", 200*time.Millisecond, "Upper bound of the random response delay")
	maxValue := pflag.Uint32("max-value", 100, "Upper bound of returned values")
	pflag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	f := &faults{errorRate: *errorRate, maxDelay: *maxDelay, maxValue: *maxValue, rnd: rand.Float64}

	addr := fmt.Sprintf(":%d", *port)
	log.Info("faulty server listening", "addr", addr)
	if err := http.ListenAndServe(addr, f.handler(log)); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func (f *faults) handler(log *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		if f.maxDelay > 0 {
			time.Sleep(time.Duration(f.rnd() * float64(f.maxDelay)))
		}
		runID := r.Header.Get("X-Run-Id")
		if f.rnd() < f.errorRate {
			fail := failures[int(f.rnd()*float64(len(failures)))%len(failures)]
			log.Debug("answering with error", "run_id", runID, "status", fail.status)
			respondJSON(w, fail.status, map[string]string{"error": fail.message})
			return
		}
		value := uint32(f.rnd() * float64(f.maxValue))
		respondJSON(w, http.StatusOK, map[string]uint32{"value": value})
	})
	return mux
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
