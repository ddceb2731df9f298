// Command sonar-status inspects and drives the health status stored by
// sonar-client. Run it while the daemon is stopped; the daemon keeps its
// own in-memory copy of the state.
//
// Usage:
//
//	sonar-status [-config path] [-db path] <command> [flags]
//
// Commands: show, diagnose, checkin, exposed, tick, result, reset, identity.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/chaz8081/sonar-client/internal/config"
	"github.com/chaz8081/sonar-client/internal/contact"
	"github.com/chaz8081/sonar-client/internal/status"
	"github.com/chaz8081/sonar-client/internal/store"
	"github.com/chaz8081/sonar-client/internal/upload"
)

var errUsage = errors.New("usage: sonar-status [-config path] [-db path] <show|diagnose|checkin|exposed|tick|result|reset|identity> [flags]")

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	if err := run(os.Args[1:], os.Stdin, os.Stdout, time.Now); err != nil {
		log.Fatalf("sonar-status: %v", err)
	}
}

type app struct {
	cfg      *config.Config
	db       *store.SQLite
	recorder *contact.Recorder
	machine  *status.Machine
	loc      *time.Location
	in       io.Reader
	out      io.Writer
	now      func() time.Time
}

func run(args []string, in io.Reader, out io.Writer, now func() time.Time) error {
	global := flag.NewFlagSet("sonar-status", flag.ContinueOnError)
	global.SetOutput(io.Discard)
	configPath := global.String("config", "", "path to config file (default: ~/.config/sonar-client/config.yaml)")
	dbPath := global.String("db", "", "database path (default: <data_path>/sonar.db)")
	if err := global.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if global.NArg() == 0 {
		return errUsage
	}
	cmd, cmdArgs := global.Arg(0), global.Args()[1:]

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	path := cfg.DBPath()
	if *dbPath != "" {
		path = *dbPath
	}
	db, err := store.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	a := &app{cfg: cfg, db: db, loc: loc, in: in, out: out, now: now}
	a.recorder = contact.NewRecorder(db)

	uploader, closeUploader := newUploader(cfg)
	defer closeUploader()
	a.machine = status.NewMachine(status.Collaborators{
		Store:     db,
		Contacts:  a.recorder,
		Uploader:  uploader,
		Scheduler: printScheduler{out: out, loc: loc},
	}, status.MachineOptions{Location: loc, UploadTimeout: cfg.Upload.Timeout})
	defer a.machine.Wait()

	switch cmd {
	case "show":
		return a.show()
	case "diagnose":
		return a.diagnose(cmdArgs)
	case "checkin":
		return a.checkin(cmdArgs)
	case "exposed":
		return a.exposed(cmdArgs)
	case "tick":
		return a.tick(cmdArgs)
	case "result":
		return a.result(cmdArgs)
	case "reset":
		return a.reset()
	case "identity":
		return a.identity()
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func (a *app) show() error {
	s := a.machine.State()
	fmt.Fprintf(a.out, "State:    %s\n", s.Kind())
	switch v := s.(type) {
	case status.Symptomatic:
		fmt.Fprintf(a.out, "Symptoms: %s\n", joinSymptoms(v.Symptoms))
		fmt.Fprintf(a.out, "Since:    %s\n", a.format(v.StartDate))
	case status.Checkin:
		fmt.Fprintf(a.out, "Symptoms: %s\n", joinSymptoms(v.Symptoms))
		fmt.Fprintf(a.out, "Check in: %s\n", a.format(v.CheckinDate))
	case status.Exposed:
		fmt.Fprintf(a.out, "Exposed:  %s\n", a.format(v.ExposureDate))
	}
	if expiry, ok := status.ExpiryDate(s, a.loc); ok {
		fmt.Fprintf(a.out, "Expires:  %s\n", a.format(expiry))
	}
	fmt.Fprintf(a.out, "Contacts: %d\n", len(a.recorder.Events()))
	return nil
}

func (a *app) diagnose(args []string) error {
	fs := newFlagSet("diagnose")
	symptoms := fs.String("symptoms", "", "comma-separated symptoms: cough,temperature")
	start := fs.String("start", "", "symptom start (RFC 3339, 2006-01-02T15:04 or 2006-01-02; default now)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := status.ParseSymptoms(*symptoms)
	if err != nil {
		return err
	}
	at, err := a.parseTime(*start)
	if err != nil {
		return err
	}
	if err := a.machine.SelfDiagnose(s, at); err != nil {
		return fmt.Errorf("diagnose: %w", err)
	}
	return a.show()
}

func (a *app) checkin(args []string) error {
	fs := newFlagSet("checkin")
	symptoms := fs.String("symptoms", "", "comma-separated symptoms still present (empty for none)")
	at := fs.String("at", "", "check-in time (default now)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := status.ParseSymptoms(*symptoms)
	if err != nil {
		return err
	}
	t, err := a.parseTime(*at)
	if err != nil {
		return err
	}
	if a.machine.State().Kind() != status.KindCheckin {
		fmt.Fprintf(a.out, "Not due for a check-in (state %s)\n", a.machine.State().Kind())
		return nil
	}
	a.machine.Checkin(s, t)
	return a.show()
}

func (a *app) exposed(args []string) error {
	fs := newFlagSet("exposed")
	at := fs.String("at", "", "exposure time (default now)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	t, err := a.parseTime(*at)
	if err != nil {
		return err
	}
	a.machine.Exposed(t)
	return a.show()
}

func (a *app) tick(args []string) error {
	fs := newFlagSet("tick")
	at := fs.String("now", "", "evaluate expiry as of this time (default now)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	t, err := a.parseTime(*at)
	if err != nil {
		return err
	}
	a.machine.Tick(t)
	return a.show()
}

func (a *app) result(args []string) error {
	fs := newFlagSet("result")
	file := fs.String("file", "-", "test-result JSON payload file (- for stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var (
		data []byte
		err  error
	)
	if *file == "-" {
		data, err = io.ReadAll(a.in)
	} else {
		data, err = os.ReadFile(*file)
	}
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	if err := a.machine.ReceivedPayload(data); err != nil {
		return err
	}
	return a.show()
}

func (a *app) reset() error {
	if err := a.db.Reset(context.Background()); err != nil {
		return err
	}
	a.recorder.Reset()
	fmt.Fprintln(a.out, "Status and contact log cleared")
	return nil
}

func (a *app) identity() error {
	id, err := a.db.BroadcastIdentity(a.cfg.BLE.IdentityLength)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, hex.EncodeToString(id))
	return nil
}

// parseTime accepts RFC 3339, a local minute, or a local date. Empty
// means now.
func (a *app) parseTime(s string) (time.Time, error) {
	if s == "" {
		return a.now().In(a.loc), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, a.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}

func (a *app) format(t time.Time) string {
	return t.In(a.loc).Format("2006-01-02 15:04 MST")
}

func joinSymptoms(s status.Symptoms) string {
	if len(s) == 0 {
		return "(none)"
	}
	parts := make([]string, len(s))
	for i, x := range s {
		parts[i] = string(x)
	}
	return strings.Join(parts, ", ")
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// printScheduler reports notifications instead of delivering them; the
// daemon owns delivery.
type printScheduler struct {
	out io.Writer
	loc *time.Location
}

func (p printScheduler) Schedule(identifier, title, _ string, fireDate time.Time) error {
	fmt.Fprintf(p.out, "Notification %s (%q) due %s\n", identifier, title, fireDate.In(p.loc).Format("2006-01-02 15:04 MST"))
	return nil
}

func newUploader(cfg *config.Config) (status.Uploader, func()) {
	if cfg.Upload.Broker == "" {
		return upload.LogUploader{}, func() {}
	}
	u, err := upload.NewMQTTUploader(upload.Options{
		Broker:   cfg.Upload.Broker,
		Topic:    cfg.Upload.Topic,
		ClientID: cfg.Upload.ClientID,
	})
	if err != nil {
		slog.Error("[UPLOAD] broker unavailable, contact log not sent", "error", err)
		return upload.LogUploader{}, func() {}
	}
	return u, func() { u.Close() }
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	if _, err := os.Stat(config.DefaultConfigPath()); err == nil {
		return config.Load(config.DefaultConfigPath())
	}
	return config.Default(), nil
}
