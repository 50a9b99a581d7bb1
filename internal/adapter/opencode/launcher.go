package opencode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/deckhand-ai/deckhand/internal/config"
	"github.com/deckhand-ai/deckhand/internal/domain"
	"github.com/deckhand-ai/deckhand/internal/port/backend"
	"github.com/deckhand-ai/deckhand/internal/resilience"
)

// The backend server writes its address under the workspace on startup.
const (
	stateDir  = ".opencode"
	stateFile = "server.json"
)

// FileResolver locates a workspace's backend endpoint from the state file its
// server writes, then probes the server to weed out stale files.
type FileResolver struct {
	Client *http.Client // probe requests; nil uses a short-timeout default
}

var _ backend.Resolver = (*FileResolver)(nil)

func (r *FileResolver) Resolve(ctx context.Context, workspacePath string) (string, error) {
	data, err := os.ReadFile(filepath.Join(workspacePath, stateDir, stateFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("no backend state for %s: %w", workspacePath, domain.ErrNotFound)
		}
		return "", fmt.Errorf("read backend state: %w", err)
	}

	var st struct {
		URL string `json:"url"`
		PID int    `json:"pid"`
	}
	if err := json.Unmarshal(data, &st); err != nil || st.URL == "" {
		return "", fmt.Errorf("invalid backend state for %s: %w", workspacePath, domain.ErrNotFound)
	}

	if err := r.probe(ctx, st.URL); err != nil {
		return "", fmt.Errorf("backend at %s not responding (%v): %w", st.URL, err, domain.ErrNotFound)
	}
	return st.URL, nil
}

func (r *FileResolver) probe(ctx context.Context, url string) error {
	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(url, "/")+"/app", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	return nil
}

// Launcher spawns workspace backend servers on demand. Concurrent ensures for
// one workspace share a single launch, total parallel spawns are capped, and
// a breaker short-circuits workspaces whose server keeps failing to come up.
type Launcher struct {
	resolver backend.Resolver
	command  string
	args     []string
	timeout  time.Duration
	sem      *semaphore.Weighted
	breaker  *resilience.Breaker
	group    singleflight.Group
}

var _ backend.Launcher = (*Launcher)(nil)

// NewLauncher creates a Launcher from config, resolving through resolver.
func NewLauncher(cfg config.Backend, resolver backend.Resolver) *Launcher {
	maxLaunches := cfg.MaxLaunches
	if maxLaunches <= 0 {
		maxLaunches = 4
	}
	return &Launcher{
		resolver: resolver,
		command:  cfg.Command,
		args:     cfg.ServeArgs,
		timeout:  cfg.LaunchTimeout,
		sem:      semaphore.NewWeighted(maxLaunches),
		breaker:  resilience.NewBreaker(3, 30*time.Second),
	}
}

// EnsureRunning resolves the workspace endpoint, launching the server first
// when none is reachable.
func (l *Launcher) EnsureRunning(ctx context.Context, workspacePath string) (string, error) {
	v, err, _ := l.group.Do(workspacePath, func() (any, error) {
		if url, err := l.resolver.Resolve(ctx, workspacePath); err == nil {
			return url, nil
		}

		var url string
		err := l.breaker.Execute(func() error {
			var launchErr error
			url, launchErr = l.launch(ctx, workspacePath)
			return launchErr
		})
		if err != nil {
			return nil, err
		}
		return url, nil
	})
	if err != nil {
		return "", fmt.Errorf("ensure backend for %s: %w", workspacePath, err)
	}
	return v.(string), nil
}

func (l *Launcher) launch(ctx context.Context, workspacePath string) (string, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquire launch slot: %w", err)
	}
	defer l.sem.Release(1)

	// Deliberately not CommandContext: the server must outlive this call.
	cmd := exec.Command(l.command, l.args...)
	cmd.Dir = workspacePath
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start %s: %w", l.command, err)
	}
	slog.Info("backend launched", "workspace", workspacePath, "pid", cmd.Process.Pid)
	go func() {
		// Reap so exited servers never linger as zombies.
		_ = cmd.Wait()
	}()

	deadline := time.NewTimer(l.timeout)
	defer deadline.Stop()
	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", fmt.Errorf("backend for %s did not come up within %s", workspacePath, l.timeout)
		case <-tick.C:
			if url, err := l.resolver.Resolve(ctx, workspacePath); err == nil {
				return url, nil
			}
		}
	}
}
