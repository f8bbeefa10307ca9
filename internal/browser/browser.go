package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/nao1215/depthcrawl/internal/extract"
)

// Default browser settings.
const (
	// DefaultPageLoadTimeout bounds a navigation including the load event.
	DefaultPageLoadTimeout = 300 * time.Second

	// DefaultScriptTimeout bounds one script evaluation.
	DefaultScriptTimeout = 300 * time.Second
)

// Config describes how to obtain a browser.
type Config struct {
	// Headless runs Chromium without a window.
	Headless bool

	// NoSandbox disables the Chromium sandbox. Needed in most containers.
	NoSandbox bool

	// Bin is the Chromium executable. Empty lets go-rod find or download one.
	Bin string

	// ControlURL attaches to an already running browser instead of launching one.
	ControlURL string

	PageLoadTimeout time.Duration
	ScriptTimeout   time.Duration
}

// DefaultConfig returns a headless, sandboxless configuration.
func DefaultConfig() Config {
	return Config{
		Headless:        true,
		NoSandbox:       true,
		PageLoadTimeout: DefaultPageLoadTimeout,
		ScriptTimeout:   DefaultScriptTimeout,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.PageLoadTimeout <= 0 || c.ScriptTimeout <= 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// Browser is a connected Chromium instance.
type Browser struct {
	cfg      Config
	rod      *rod.Browser
	launcher *launcher.Launcher
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

var _ extract.Launcher = (*Browser)(nil)

// Launch starts Chromium, or attaches to cfg.ControlURL, and connects to it.
func Launch(ctx context.Context, cfg Config, logger *slog.Logger) (*Browser, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := &Browser{cfg: cfg, logger: logger}

	controlURL := cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().
			Context(ctx).
			Headless(cfg.Headless).
			NoSandbox(cfg.NoSandbox).
			Set("disable-dev-shm-usage").
			Set("disable-gpu")
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		b.launcher = l
		controlURL = u
		logger.Debug("browser launched", slog.Bool("headless", cfg.Headless))
	}

	r := rod.New().ControlURL(controlURL)
	if err := r.Connect(); err != nil {
		b.killLauncher()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	b.rod = r
	return b, nil
}

// NewSession opens a new tab.
func (b *Browser) NewSession(ctx context.Context) (extract.Session, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	page, err := b.rod.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	return &session{page: page, cfg: b.cfg}, nil
}

// Close disconnects from the browser and stops it if it was launched here.
// Close is idempotent.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var err error
	if b.rod != nil {
		if cerr := b.rod.Close(); cerr != nil {
			err = fmt.Errorf("failed to close browser: %w", cerr)
		}
	}
	b.killLauncher()
	return err
}

func (b *Browser) killLauncher() {
	if b.launcher == nil {
		return
	}
	b.launcher.Kill()
	b.launcher.Cleanup()
}
