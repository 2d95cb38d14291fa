// Command littlehydra runs the process-supervision daemon: it loads a
// TOML service registry, starts every configured service in priority
// order, keeps them alive, and exposes a control surface over a local
// named pipe (and, if configured, a TCP port) for an operator or
// companion tool to drive.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/littlehydra/daemon/internal/config"
	"github.com/littlehydra/daemon/internal/firewall"
	"github.com/littlehydra/daemon/internal/logsink"
	"github.com/littlehydra/daemon/internal/manager"
	"github.com/littlehydra/daemon/internal/rpc"
	"github.com/littlehydra/daemon/internal/spawner"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	var (
		configPath = flag.String("c", "config.toml", "path to config.toml")
		logFolder  = flag.String("l", defaultLogFolder(), "folder to write log files into")
		logHost    = flag.String("log-host", "", "optional host:port to mirror log lines to over TCP")
		verbose    = flag.Int("verbose", 0, "verbosity level (reported at startup; does not filter log output)")
	)
	flag.StringVar(configPath, "config", "config.toml", "path to config.toml (same as -c)")
	flag.StringVar(logFolder, "log-folder", defaultLogFolder(), "folder to write log files into (same as -l)")
	flag.Parse()

	if err := setUpLogging(*logFolder, *logHost); err != nil {
		log.Fatalf("[daemon] logging setup failed: %v", err)
	}
	if *verbose > 0 {
		log.Printf("[daemon] verbosity = %d", *verbose)
	}

	app, err := newApp(*configPath)
	if err != nil {
		log.Fatalf("[daemon] startup failed: %v", err)
	}
	defer app.fwEngine.Close()

	app.mgr.StartAll()

	ctx, cancel := context.WithCancel(context.Background())
	app.mgr.StartMonitor(ctx)

	stopRPC := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.dispatcher.ServePipe(stopRPC); err != nil {
			log.Printf("[daemon] named pipe server stopped: %v", err)
		}
	}()

	if app.cfg.General.RPCPort != 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := app.dispatcher.ServeTCP(app.cfg.General.RPCPort, stopRPC); err != nil {
				log.Printf("[daemon] TCP RPC server stopped: %v", err)
			}
		}()
	}

	log.Printf("[daemon] running (pipe=%s, tcp_port=%d)", rpc.PipeName, app.cfg.General.RPCPort)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("[daemon] shutting down")
	close(stopRPC)
	cancel()
	app.mgr.Shutdown()
	wg.Wait()
}

// app bundles every long-lived collaborator main wires together, mostly
// so shutdown has one place to reach them from.
type app struct {
	cfg        *config.Config
	fwEngine   firewall.Engine
	mgr        *manager.ProcessManager
	dispatcher *rpc.Dispatcher
	configPath string
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	fwEngine, err := firewall.New()
	if err != nil {
		return nil, err
	}
	if err := fwEngine.DisableLegacyFirewalls(); err != nil {
		log.Printf("[daemon] legacy firewall reset failed (continuing): %v", err)
	}

	sp := spawner.New(cfg.General, fwEngine)
	mgr := manager.New(configPath, cfg, sp, fwEngine)

	a := &app{cfg: cfg, fwEngine: fwEngine, mgr: mgr, configPath: configPath}
	a.dispatcher = &rpc.Dispatcher{Mgr: mgr, Reloader: a}
	return a, nil
}

// ReloadConfig implements rpc.ConfigReloader. It only refreshes the
// in-memory general settings snapshot used by saveConfig; service
// registrations already live in the manager and are not affected.
func (a *app) ReloadConfig() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) GeneralSettings() config.GeneralSettings {
	return a.cfg.General
}

func defaultLogFolder() string {
	return os.TempDir()
}

func setUpLogging(folder, host string) error {
	writers := []io.Writer{os.Stderr}

	fileSink, err := logsink.OpenFile(folder)
	if err != nil {
		return fmt.Errorf("open log folder: %w", err)
	}
	writers = append(writers, fileSink)

	if host != "" {
		hostSink, err := logsink.DialHost(host)
		if err != nil {
			log.Printf("[daemon] log host %s unreachable, continuing without it: %v", host, err)
		} else {
			writers = append(writers, hostSink)
		}
	}

	log.SetOutput(io.MultiWriter(writers...))
	return nil
}
