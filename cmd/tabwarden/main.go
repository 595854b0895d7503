package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dgnsrekt/tabwarden/internal/api"
	"github.com/dgnsrekt/tabwarden/internal/browser"
	"github.com/dgnsrekt/tabwarden/internal/classify"
	"github.com/dgnsrekt/tabwarden/internal/config"
	"github.com/dgnsrekt/tabwarden/internal/host"
	"github.com/dgnsrekt/tabwarden/internal/monitor"
	"github.com/dgnsrekt/tabwarden/internal/netutil"
	"github.com/dgnsrekt/tabwarden/internal/notify"
	"github.com/dgnsrekt/tabwarden/internal/pagebridge"
	"github.com/dgnsrekt/tabwarden/internal/relay"
	"github.com/dgnsrekt/tabwarden/internal/visitlog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	journalBufferSize = 1000
	journalMaxSizeMB  = 50
)

// service joins the monitor with the browser tab listing for the API.
type service struct {
	*monitor.Monitor
	tabs *host.Client
}

func (s service) ListTabs(ctx context.Context) ([]host.Tab, error) {
	return s.tabs.ListTabs(ctx)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("tabwarden config loaded",
		"cdp_url", cfg.CDPURL(),
		"bind_addr", cfg.BindAddr,
		"classifier_url", cfg.ClassifierURL,
		"http_timeout_ms", cfg.HTTPTimeoutMS,
		"eval_timeout_ms", cfg.EvalTimeoutMS,
		"visit_dir", cfg.VisitDir,
		"ignore_config", cfg.IgnoreConfig,
		"launch_browser", cfg.LaunchBrowser,
		"ntfy_enabled", cfg.NtfyEndpoint != "",
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	ignore, err := config.LoadIgnoreRules(cfg.IgnoreConfig)
	if err != nil {
		slog.Error("failed to load ignore rules", "path", cfg.IgnoreConfig, "error", err)
		os.Exit(1)
	}

	candidates, err := netutil.Candidates(cfg.BindAddr, cfg.PortCandidates)
	if err != nil {
		slog.Error("invalid bind configuration", "error", err)
		os.Exit(1)
	}
	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, candidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	var launcher *browser.Launcher
	if cfg.LaunchBrowser {
		launcher = browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			ProfileDir: cfg.BrowserProfileDir,
		})
		if err := launcher.Launch(context.Background()); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer launcher.Stop()
	}

	httpClient := &http.Client{}
	classifier := classify.NewClient(cfg.ClassifierURL, httpClient, cfg.HTTPTimeout())
	healthCtx, healthCancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout())
	if err := classifier.Health(healthCtx); err != nil {
		slog.Warn("classifier health check failed", "url", cfg.ClassifierURL, "error", err)
	} else {
		slog.Info("classifier reachable", "url", cfg.ClassifierURL)
	}
	healthCancel()

	var journal *visitlog.Journal
	if cfg.VisitDir != "" {
		journal, err = visitlog.NewJournal(cfg.VisitDir, journalBufferSize, journalMaxSizeMB)
		if err != nil {
			slog.Error("failed to open visit journal", "dir", cfg.VisitDir, "error", err)
			os.Exit(1)
		}
	}
	visits := visitlog.NewLogger(cfg.ClassifierURL+"/tab-event", httpClient, journal, cfg.HTTPTimeout())
	defer func() {
		if err := visits.Close(); err != nil {
			slog.Debug("visit logger close failed", "error", err)
		}
	}()

	bridge := pagebridge.New(cfg.CDPURL(), cfg.EvalTimeout())
	bridge.Start()
	defer bridge.Close()

	hostClient := host.NewClient(cfg.CDPURL(), cfg.EvalTimeout())
	broker := relay.NewBroker()

	opts := monitor.Options{
		Ignore:      ignore,
		Events:      broker,
		CallTimeout: cfg.HTTPTimeout(),
	}
	if cfg.NtfyEndpoint != "" {
		opts.Notifier = notify.NewNotifier(cfg.NtfyEndpoint, httpClient)
	}
	mon := monitor.New(monitor.NewStore(monitor.RealClock{}), hostClient, bridge, classifier, visits, opts)
	defer mon.Close()

	bridge.OnActivated(func(tabID, url string) {
		if err := mon.TabActivated(context.Background(), tabID, url); err != nil {
			slog.Debug("activation rejected", "tab_id", tabID, "error", err)
		}
	})

	hostClient.Subscribe(host.Handlers{
		OnURLUpdated: func(tabID, url string) {
			if err := mon.TabURLUpdated(context.Background(), tabID, url); err != nil {
				slog.Debug("url update rejected", "tab_id", tabID, "error", err)
			}
		},
		OnDestroyed: func(tabID string) {
			mon.TabDestroyed(tabID)
			go bridge.Forget(tabID)
		},
	})
	if err := hostClient.Connect(context.Background()); err != nil {
		slog.Error("failed to connect to browser", "cdp_url", cfg.CDPURL(), "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := hostClient.Close(); err != nil {
			slog.Debug("CDP client close failed", "error", err)
		}
	}()
	watchOpenTabs(context.Background(), hostClient, bridge, ignore)

	h := api.NewServer(service{Monitor: mon, tabs: hostClient}, broker)
	srv := &http.Server{Addr: bindAddr, Handler: h}

	go func() {
		slog.Info("tabwarden listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("tabwarden server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-hostClient.Done():
		slog.Error("browser connection lost")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("tabwarden shutdown failed", "error", err)
	}
}

type tabLister interface {
	ListTabs(ctx context.Context) ([]host.Tab, error)
}

type tabWatcher interface {
	Watch(ctx context.Context, tabID string, reportVisible bool) error
}

// watchOpenTabs installs the activation listener in tabs that were open
// before tabwarden connected. The visible one reports itself right away.
func watchOpenTabs(ctx context.Context, tabs tabLister, watcher tabWatcher, ignore monitor.Ignorer) {
	open, err := tabs.ListTabs(ctx)
	if err != nil {
		slog.Warn("listing open tabs failed", "error", err)
		return
	}
	for _, t := range open {
		if ignore != nil && ignore.Ignored(t.URL) {
			continue
		}
		go func() {
			if err := watcher.Watch(ctx, t.ID, true); err != nil {
				slog.Debug("watching open tab failed", "tab_id", t.ID, "error", err)
			}
		}()
	}
	slog.Info("watching open tabs", "count", len(open))
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
