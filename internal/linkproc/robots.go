package linkproc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/benjaminestes/robots"
)

// maxRobotsBody limits how much of a robots.txt is read.
const maxRobotsBody = 512 * 1024

// Gate decides whether a discovered link may enter the frontier.
type Gate interface {
	Allowed(ctx context.Context, u *url.URL) bool
}

// RobotsGate admits links allowed by their host's robots.txt. Files are
// fetched once per host. A robots.txt that cannot be fetched or parsed
// allows everything.
type RobotsGate struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger

	mu    sync.Mutex
	cache map[string]*robots.Robots
}

// NewRobotsGate returns a gate that checks links against robots.txt for userAgent.
func NewRobotsGate(client *http.Client, userAgent string, logger *slog.Logger) *RobotsGate {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsGate{
		client:    client,
		userAgent: userAgent,
		logger:    logger,
		cache:     make(map[string]*robots.Robots),
	}
}

// Allowed implements Gate.
func (g *RobotsGate) Allowed(ctx context.Context, u *url.URL) bool {
	raw := u.String()
	robotsURL, err := robots.Locate(raw)
	if err != nil {
		return true
	}

	r := g.lookup(ctx, robotsURL)
	if r == nil {
		return true
	}
	return r.Test(g.userAgent, raw)
}

func (g *RobotsGate) lookup(ctx context.Context, robotsURL string) *robots.Robots {
	g.mu.Lock()
	r, ok := g.cache[robotsURL]
	g.mu.Unlock()
	if ok {
		return r
	}

	r, err := g.fetch(ctx, robotsURL)
	if err != nil {
		g.logger.Warn("failed to fetch robots.txt, allowing all",
			slog.String("robots_url", robotsURL),
			slog.String("error", err.Error()))
		r = nil
	}
	if ctx.Err() != nil {
		return r
	}

	g.mu.Lock()
	g.cache[robotsURL] = r
	g.mu.Unlock()
	return r
}

func (g *RobotsGate) fetch(ctx context.Context, robotsURL string) (r *robots.Robots, err error) {
	defer func() {
		if p := recover(); p != nil {
			r, err = nil, fmt.Errorf("robots.txt parser panicked: %v", p)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return robots.From(resp.StatusCode, bytes.NewReader(body))
}
