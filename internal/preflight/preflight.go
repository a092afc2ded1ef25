package preflight

import (
	"context"

	"wharf/internal/config"
)

// Result reports the outcome of a single readiness check. Advisory
// results never block daemon startup.
type Result struct {
	Name     string
	Passed   bool
	Advisory bool
	Detail   string
}

// RunAll executes all readiness checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Download directory", cfg.Paths.DownloadDir),
		CheckDirectoryAccess("Incomplete directory", cfg.Paths.IncompleteDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDatabase(cfg),
		CheckHoster(ctx, cfg),
	}
	return results
}

// Failed reports whether any required check failed.
func Failed(results []Result) bool {
	for _, result := range results {
		if !result.Passed && !result.Advisory {
			return true
		}
	}
	return false
}
