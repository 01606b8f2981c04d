// ABOUTME: Gateway orchestrator that wires the workspace components to one HTTP server
// ABOUTME: Manages store, push channel, background loops, and the optional tailnet listener

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/scout-desk/internal/auth"
	"github.com/2389/scout-desk/internal/client"
	"github.com/2389/scout-desk/internal/config"
	"github.com/2389/scout-desk/internal/conversation"
	"github.com/2389/scout-desk/internal/directory"
	"github.com/2389/scout-desk/internal/mcp"
	"github.com/2389/scout-desk/internal/notice"
	"github.com/2389/scout-desk/internal/prospect"
	"github.com/2389/scout-desk/internal/push"
	"github.com/2389/scout-desk/internal/records"
	"github.com/2389/scout-desk/internal/research"
	"github.com/2389/scout-desk/internal/store"
)

// Gateway serves the workspace API for one analyst.
type Gateway struct {
	config      *config.Config
	store       store.Store
	broadcaster *push.Broadcaster
	notices     *notice.Board
	creds       *auth.Credentials
	verifier    *auth.JWTVerifier // nil when no jwt_secret is configured
	client      *client.Client

	// directory and conversation are nil when the configured credential does
	// not resolve to an owner; their routes then answer 401.
	directory    *directory.Directory
	conversation *conversation.Engine
	prospects    *prospect.Orchestrator
	research     *research.Service
	mcpServer    *mcp.Server

	handler     http.Handler
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger
}

// initStore opens the SQLite store, honouring SCOUT_DB_PATH.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("SCOUT_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a Gateway from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	broadcaster := push.NewBroadcaster(logger)
	s.SetNotifier(broadcaster)
	notices := notice.NewBoard(notice.DefaultCapacity, logger)

	var verifier *auth.JWTVerifier
	var tokenVerifier auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		tokenVerifier = verifier
	}
	creds := auth.NewCredentials(tokenVerifier, cfg.Auth.Token)

	apiClient := client.New(client.Options{
		BaseURL:    cfg.Upstream.BaseURL,
		RecordsURL: cfg.Upstream.RecordsURL,
		Timeout:    cfg.Upstream.Timeout,
		Tokens:     creds,
		Logger:     logger,
	})

	gw := &Gateway{
		config:      cfg,
		store:       s,
		broadcaster: broadcaster,
		notices:     notices,
		creds:       creds,
		verifier:    verifier,
		client:      apiClient,
		logger:      logger.With("component", "gateway"),
	}

	gw.prospects = prospect.New(prospect.Options{
		API:             apiClient,
		Identity:        creds,
		Notices:         notices,
		PageSizeCeiling: cfg.Search.PageSizeCeiling,
		Logger:          logger,
	})
	gw.research = research.NewService(research.Options{
		API:      apiClient,
		Identity: creds,
		Notices:  notices,
		Logger:   logger,
	})

	gw.mcpServer, err = mcp.NewServer(mcp.Config{
		Tools:  mcp.NewToolset(gw.prospects, gw.research),
		Logger: logger,
	})
	if err != nil {
		gw.research.Close()
		_ = s.Close()
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}

	dir, err := directory.New(directory.Options{
		Store:         s,
		Push:          broadcaster,
		Identity:      creds,
		Notices:       notices,
		RefreshWindow: cfg.Directory.RefreshWindow,
		Logger:        logger,
	})
	switch {
	case errors.Is(err, auth.ErrIdentity):
		gw.logger.Warn("no resolvable identity; session routes disabled until a token is configured", "error", err)
		notices.Post(notice.Reauth("gateway"))
	case err != nil:
		_ = s.Close()
		return nil, fmt.Errorf("creating session directory: %w", err)
	default:
		gw.directory = dir
		gw.conversation = conversation.New(conversation.Options{
			OwnerID:       dir.OwnerID(),
			Store:         s,
			Answerer:      apiClient,
			Push:          broadcaster,
			Notices:       notices,
			Scope:         cfg.Conversation.Scope,
			StaleResponse: cfg.Conversation.StaleResponse,
			SwitchWindow:  cfg.Conversation.SwitchWindow,
			Logger:        logger,
		})
	}

	var rec *records.Handler
	if cfg.Records.Enabled {
		rec = records.New(s, logger)
		gw.logger.Info("records endpoints enabled")
	}

	gw.handler = gw.routes(rec)
	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return gw, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// setupListener creates the HTTP listener (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", g.config.Server.HTTPAddr)
		}
		return g.setupTailscaleListener(ctx)
	}

	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
// Returns nil on graceful shutdown, or the first server error.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	if g.directory != nil {
		eg.Go(func() error { return g.directory.Run(egCtx) })
	}
	if g.conversation != nil {
		eg.Go(func() error { return g.conversation.Run(egCtx) })
	}

	eg.Go(func() error {
		<-egCtx.Done()
		g.logger.Info("context canceled, initiating shutdown")
		return g.gracefulShutdown()
	})

	return eg.Wait()
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server and releases every component.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.conversation != nil {
		g.conversation.Close()
	}
	g.research.Close()
	g.broadcaster.Close()

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", g.store.Close())

	return errors.Join(errs...)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "scout-desk", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener joins the tailnet and listens on :80, or :443 with
// tailnet certificates when https is set.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	if !tsCfg.HTTPS {
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}

	g.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := g.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := g.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}
