package app

import (
	"fmt"
	"log/slog"

	"github.com/grafana/pyroscope-go"

	"github.com/alanyoungcy/arbengine/internal/config"
)

// startProfiler begins continuous profiling when a server address is set.
// The returned stop function is never nil.
func startProfiler(cfg *config.Config, logger *slog.Logger) (func(), error) {
	if cfg.Profiling.ServerAddress == "" {
		return func() {}, nil
	}
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.Profiling.ApplicationName,
		ServerAddress:   cfg.Profiling.ServerAddress,
		Tags: map[string]string{
			"mode": cfg.Mode,
		},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("pyroscope start: %w", err)
	}
	logger.Info("continuous profiling enabled", slog.String("server", cfg.Profiling.ServerAddress))
	return func() { _ = profiler.Stop() }, nil
}
