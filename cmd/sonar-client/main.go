// Command sonar-client runs the contact-tracing daemon: it scans for and
// keeps alive nearby peers, records contacts, and advances the user's
// health status.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/chaz8081/sonar-client/internal/ble"
	"github.com/chaz8081/sonar-client/internal/config"
	"github.com/chaz8081/sonar-client/internal/contact"
	"github.com/chaz8081/sonar-client/internal/notify"
	"github.com/chaz8081/sonar-client/internal/status"
	"github.com/chaz8081/sonar-client/internal/store"
	"github.com/chaz8081/sonar-client/internal/upload"
	"github.com/chaz8081/sonar-client/internal/web"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/sonar-client/config.yaml)")
	initConfig := flag.Bool("init-config", false, "write the default config file and exit")
	flag.Parse()

	if *initConfig {
		path, err := config.WriteDefault()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if path == "" {
			fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
			return
		}
		fmt.Printf("Wrote default config to %s\n", path)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))

	printBanner(cfg)

	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg *config.Config) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	recorder := contact.NewRecorder(db)
	log.Printf("Contact log loaded (%d events)", len(recorder.Events()))

	bus := notify.NewBus()
	defer bus.Close()

	scheduler := notify.NewScheduler(notify.LogDeliver)
	defer scheduler.Stop()

	uploader, closeUploader := newUploader(cfg)
	defer closeUploader()

	machine := status.NewMachine(status.Collaborators{
		Store:     db,
		Contacts:  recorder,
		Uploader:  uploader,
		Publisher: bus,
		Scheduler: scheduler,
	}, status.MachineOptions{
		Location:      loc,
		UploadTimeout: cfg.Upload.Timeout,
	})
	log.Printf("Status: %s", machine.State().Kind())

	opts := ble.ListenerOptions{
		ServiceUUID:       cfg.BLE.ServiceUUID,
		IdentityCharUUID:  cfg.BLE.IdentityCharUUID,
		KeepaliveCharUUID: cfg.BLE.KeepaliveCharUUID,
		IdentityLength:    cfg.BLE.IdentityLength,
		KeepaliveInterval: cfg.BLE.KeepaliveInterval,
		QueueSize:         cfg.BLE.QueueSize,
	}
	central := ble.NewTinyGoCentral()
	listener := ble.NewListener(central, newBroadcaster(cfg, central, opts, db), opts)
	collector := contact.NewCollector(recorder)
	listener.Start(radioLogger{}, collector)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := listener.Run(ctx); err != nil {
			// Keep serving status and health; /healthz reports the radio as down.
			slog.Error("[BLE] listener stopped", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		machine.Run(ctx, cfg.TickInterval)
	}()

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, web.Deps{
			Machine:       machine,
			Driver:        listener,
			Bus:           bus,
			Notifications: scheduler,
		})
		go srv.Run(ctx)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		log.Printf("HTTP status server listening on %s", cfg.HTTP.Addr)
	}

	log.Println("Ready! Ctrl+C to quit.")
	<-ctx.Done()

	log.Println("Shutting down...")
	if err := central.Close(); err != nil {
		slog.Debug("[BLE] close central", "error", err)
	}
	wg.Wait()
	machine.Wait()
	if n := collector.Pending(); n > 0 {
		slog.Info("[CONTACT] identity reads without an RSSI sample were not recorded", "count", n)
	}
	log.Println("Goodbye!")
	return nil
}

// newUploader returns the MQTT uploader when a broker is configured, and
// a logging stand-in otherwise or when the broker cannot be reached.
func newUploader(cfg *config.Config) (status.Uploader, func()) {
	if cfg.Upload.Broker == "" {
		log.Println("No upload broker configured, contact uploads are logged only")
		return upload.LogUploader{}, func() {}
	}
	u, err := upload.NewMQTTUploader(upload.Options{
		Broker:   cfg.Upload.Broker,
		Topic:    cfg.Upload.Topic,
		ClientID: cfg.Upload.ClientID,
	})
	if err != nil {
		slog.Error("[UPLOAD] broker unavailable, contact uploads are logged only", "error", err)
		return upload.LogUploader{}, func() {}
	}
	return u, func() { u.Close() }
}

// newBroadcaster starts advertising this device's identity when enabled.
// Falls back to logging keepalives if the peripheral role is unavailable.
func newBroadcaster(cfg *config.Config, central *ble.TinyGoCentral, opts ble.ListenerOptions, db *store.SQLite) ble.Broadcaster {
	if !cfg.BLE.Advertise {
		return ble.LogBroadcaster{}
	}
	identity, err := db.BroadcastIdentity(cfg.BLE.IdentityLength)
	if err != nil {
		slog.Error("[BLE] broadcast identity unavailable, not advertising", "error", err)
		return ble.LogBroadcaster{}
	}
	b := ble.NewGATTBroadcaster(central.Adapter(), opts, "sonar")
	if err := b.Start(identity); err != nil {
		slog.Warn("[BLE] peripheral role unavailable, not advertising", "error", err)
		return ble.LogBroadcaster{}
	}
	return b
}

// radioLogger reports radio power changes.
type radioLogger struct{}

func (radioLogger) RadioStateChanged(state ble.RadioState) {
	if state == ble.StatePoweredOn {
		slog.Info("[BLE] radio powered on")
		return
	}
	slog.Warn("[BLE] radio unavailable", "state", state)
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	broker := cfg.Upload.Broker
	if broker == "" {
		broker = "(disabled)"
	}
	httpAddr := cfg.HTTP.Addr
	if httpAddr == "" {
		httpAddr = "(disabled)"
	}
	fmt.Println("=== sonar-client ===")
	fmt.Printf("  Data:      %s\n", cfg.DBPath())
	fmt.Printf("  Service:   %s\n", cfg.BLE.ServiceUUID)
	fmt.Printf("  Keepalive: %s\n", cfg.BLE.KeepaliveInterval)
	fmt.Printf("  Advertise: %t\n", cfg.BLE.Advertise)
	fmt.Printf("  Upload:    %s\n", broker)
	fmt.Printf("  HTTP:      %s\n", httpAddr)
	fmt.Printf("  Log:       %s\n", cfg.LogLevel)
	fmt.Println("====================")
}
