package utils

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/airenas/go-app/pkg/goapp"

	_ "net/http/pprof"
)

// RunPerfEndpoint serves pprof handlers on debug.port, blocks until the server fails
func RunPerfEndpoint() {
	port := goapp.Config.GetInt("debug.port")
	if port <= 0 {
		goapp.Log.Info().Msg("no debug.port, skip pprof endpoint")
		return
	}
	goapp.Log.Info().Int("port", port).Msg("starting pprof endpoint")
	srv := &http.Server{Addr: ":" + strconv.Itoa(port), Handler: http.DefaultServeMux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		goapp.Log.Error().Err(err).Msg("can't start pprof endpoint")
	}
}
