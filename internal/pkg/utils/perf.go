package utils

import (
	"net/http"
	"strconv"
	"time"

	"github.com/airenas/go-app/pkg/goapp"

	_ "net/http/pprof"
)

// RunPerfEndpoint starts pprof endpoint, skips if port is not provided
func RunPerfEndpoint(port int) {
	if port <= 0 {
		goapp.Log.Info().Msg("no debug.port provided - skip pprof")
		return
	}
	goapp.Log.Info().Int("port", port).Msg("Starting debug http endpoint")
	srv := &http.Server{Addr: ":" + strconv.Itoa(port), ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		goapp.Log.Error().Err(err).Msg("can't start debug endpoint")
	}
}
