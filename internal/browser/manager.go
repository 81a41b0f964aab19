package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consent-probe/internal/config"
)

// Manager handles the browser process lifecycle and session creation using
// Playwright. One Chromium process is shared by all trials; every trial gets
// its own isolated context via NewSession.
type Manager struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	logger  *zap.Logger
	cfg     *config.Config

	sessions map[string]*Session
	mu       sync.RWMutex
	wg       sync.WaitGroup

	initOnce sync.Once
	initErr  error
}

const playwrightInstallTimeout = 5 * time.Minute

// NewManager creates a browser manager. Driver startup is deferred until the
// first session is requested.
func NewManager(cfg *config.Config, logger *zap.Logger) *Manager {
	return &Manager{
		logger:   logger.Named("browser_manager"),
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// initialize starts the Playwright driver and launches the browser instance.
func (m *Manager) initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.logger.Info("Initializing Playwright and launching browser...")

		if err := m.ensureInstallation(ctx); err != nil {
			m.initErr = err
			return
		}

		pw, err := playwright.Run()
		if err != nil {
			m.initErr = fmt.Errorf("failed to start playwright driver: %w", err)
			return
		}
		m.pw = pw

		browser, err := pw.Chromium.Launch(m.prepareLaunchOptions())
		if err != nil {
			pw.Stop()
			m.initErr = fmt.Errorf("failed to launch browser instance: %w", err)
			return
		}
		m.browser = browser

		m.logger.Info("Browser manager initialized successfully.",
			zap.String("browser_version", browser.Version()),
			zap.Bool("headful", m.cfg.Browser.Headful))
	})
	return m.initErr
}

func (m *Manager) ensureInstallation(ctx context.Context) error {
	m.logger.Info("Verifying Playwright browser installation...")
	installCtx, installCancel := context.WithTimeout(ctx, playwrightInstallTimeout)
	defer installCancel()

	// Run the install command in a goroutine as it blocks.
	installErrChan := make(chan error, 1)
	go func() {
		options := &playwright.RunOptions{
			Browsers: []string{"chromium"},
		}
		if err := playwright.Install(options); err != nil {
			installErrChan <- fmt.Errorf("failed to install playwright browsers: %w", err)
		} else {
			installErrChan <- nil
		}
	}()

	select {
	case err := <-installErrChan:
		return err
	case <-installCtx.Done():
		return fmt.Errorf("timeout waiting for Playwright installation: %w", installCtx.Err())
	}
}

func (m *Manager) prepareLaunchOptions() playwright.BrowserTypeLaunchOptions {
	launchOptions := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(!m.cfg.Browser.Headful),
		Args:     m.cfg.Browser.Args,
		Timeout:  playwright.Float(60000),
	}

	// Arguments necessary for stability, especially in containers.
	defaultArgs := []string{
		"--disable-gpu",
		"--no-sandbox",
		"--disable-dev-shm-usage",
	}
	launchOptions.Args = append(defaultArgs, launchOptions.Args...)
	return launchOptions
}

// NewSession creates an isolated context and page for one trial, emulating
// the given device profile and locale.
func (m *Manager) NewSession(ctx context.Context, device Device, locale string) (*Session, error) {
	if err := m.initialize(ctx); err != nil {
		return nil, err
	}

	opts := playwright.BrowserNewContextOptions{
		Locale: playwright.String(locale),
		// Broken certificates are common in the candidate population and are
		// not what this tool measures.
		IgnoreHttpsErrors: playwright.Bool(true),
		Viewport:          &playwright.Size{Width: device.Width, Height: device.Height},
		IsMobile:          playwright.Bool(device.IsMobile),
	}
	if device.UserAgent != "" {
		opts.UserAgent = playwright.String(device.UserAgent)
	}

	bctx, err := m.browser.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	session := newSession(bctx, page, m.logger)

	m.wg.Add(1)
	session.onClose = func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.sessions, session.ID())
		m.wg.Done()
	}

	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.mu.Unlock()

	m.logger.Debug("New session created.",
		zap.String("session_id", session.ID()),
		zap.String("device", device.Kind))
	return session, nil
}

// Shutdown closes any remaining sessions, the browser process, and the
// driver. Safe to call when initialization never happened.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser manager.")

	if m.pw == nil {
		m.logger.Info("Manager not fully initialized, skipping full shutdown sequence.")
		return nil
	}

	m.mu.RLock()
	sessionsToClose := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessionsToClose = append(sessionsToClose, s)
	}
	m.mu.RUnlock()

	for _, s := range sessionsToClose {
		go func(s *Session) {
			if err := s.Close(); err != nil {
				m.logger.Warn("Error during session close in shutdown.",
					zap.String("session_id", s.ID()), zap.Error(err))
			}
		}(s)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All sessions closed gracefully.")
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for sessions to close. Proceeding with forceful shutdown.",
			zap.Error(ctx.Err()))
	}

	var shutdownErr error
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.logger.Error("Failed to close browser instance.", zap.Error(err))
			shutdownErr = fmt.Errorf("failed to close browser: %w", err)
		}
	}
	if err := m.pw.Stop(); err != nil {
		m.logger.Error("Failed to stop Playwright driver.", zap.Error(err))
		if shutdownErr == nil {
			shutdownErr = fmt.Errorf("failed to stop playwright driver: %w", err)
		}
	}

	m.logger.Info("Browser manager shutdown complete.")
	return shutdownErr
}
