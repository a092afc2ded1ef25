package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"wharf/internal/config"
	"wharf/internal/hoster"
	"wharf/internal/queue"
	"wharf/internal/services"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDatabase verifies the queue database opens at the configured path.
// Opening also applies pending schema migrations, so a failure here means
// the daemon could not have started either.
func CheckDatabase(cfg *config.Config) Result {
	const name = "Queue database"

	store, err := queue.Open(cfg)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", cfg.DatabasePath(), err)}
	}
	store.Close()
	return Result{Name: name, Passed: true, Detail: cfg.DatabasePath()}
}

// CheckHoster verifies the host API is reachable and the configured token
// names a valid session. It uses a 10-second timeout and a single attempt.
func CheckHoster(ctx context.Context, cfg *config.Config) Result {
	const name = "Host session"

	if strings.TrimSpace(cfg.Hoster.APIToken) == "" {
		return Result{Name: name, Advisory: true, Detail: "api token missing"}
	}

	client, err := hoster.NewFromConfig(cfg)
	if err != nil {
		return Result{Name: name, Advisory: true, Detail: err.Error()}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	account, err := client.Account(checkCtx)
	if err != nil {
		return Result{Name: name, Advisory: true, Detail: summarizeHostError(err)}
	}
	if !account.Valid {
		return Result{Name: name, Advisory: true, Detail: "session expired (renew the api token)"}
	}

	detail := fmt.Sprintf("valid session for %s", account.Username)
	if account.Premium {
		detail += " (premium)"
	}
	return Result{Name: name, Passed: true, Advisory: true, Detail: detail}
}

// summarizeHostError produces a short summary for host check failures.
func summarizeHostError(err error) string {
	if errors.Is(err, services.ErrUnauthorized) {
		return "auth failed (invalid api token)"
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, services.ErrTimeout) {
		return "check timed out (host api unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (host api unreachable)"
	}
	return err.Error()
}
