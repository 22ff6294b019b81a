// Command headingd reads heading and IR bearing telemetry from a serial port,
// records it to SQLite and serves live debug pages.
package main

import (
	"context"
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/heading.report/internal/config"
	"github.com/banshee-data/heading.report/internal/db"
	"github.com/banshee-data/heading.report/internal/history"
	"github.com/banshee-data/heading.report/internal/monitoring"
	"github.com/banshee-data/heading.report/internal/serialmux"
	"github.com/banshee-data/heading.report/internal/telemetry"
	"github.com/banshee-data/heading.report/internal/version"
)

//go:embed fixtures.txt
var fixtures string

// replayInterval paces fixture lines in -dev mode.
var replayInterval = 200 * time.Millisecond

const replayPortName = "replay"

type options struct {
	configPath  string
	dev         bool
	listPorts   bool
	showVersion bool
}

// loadConfig parses args into fs and returns the configuration. Flags that
// were set explicitly override the config file.
func loadConfig(fs *flag.FlagSet, args []string) (options, *config.Config, error) {
	var opts options
	fs.StringVar(&opts.configPath, "config", "", "Path to a JSON config file")
	fs.BoolVar(&opts.dev, "dev", false, "Replay built-in fixture lines instead of opening a serial port")
	fs.BoolVar(&opts.listPorts, "list-ports", false, "List serial ports and exit")
	fs.BoolVar(&opts.showVersion, "version", false, "Print version and exit")
	port := fs.String("port", "", "Serial port to use (ignored in dev mode)")
	baud := fs.Int("baud", serialmux.DefaultBaudRate, "Baud rate")
	listen := fs.String("listen", "", "Listen address for the debug server")
	dbPath := fs.String("db", "", "SQLite database path")

	if err := fs.Parse(args); err != nil {
		return opts, nil, err
	}

	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return opts, nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "baud":
			cfg.BaudRate = *baud
		case "listen":
			cfg.Listen = *listen
		case "db":
			cfg.DBPath = *dbPath
		}
	})

	if err := cfg.Validate(); err != nil {
		return opts, nil, err
	}
	return opts, cfg, nil
}

func main() {
	opts, cfg, err := loadConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if opts.showVersion {
		fmt.Println(version.String())
		return
	}
	if opts.listPorts {
		for _, p := range serialmux.ListPorts() {
			fmt.Println(p)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts.dev, nil); err != nil {
		log.Fatal(err)
	}
	log.Printf("Graceful shutdown complete")
}

// openReader opens the configured port, or a fixture replay in dev mode.
func openReader(ctx context.Context, cfg *config.Config, dev bool) (*serialmux.LineReader, error) {
	if dev {
		lines := strings.Split(strings.TrimSpace(fixtures), "\n")
		return serialmux.NewLineReader(replayPortName, serialmux.NewReplayPort(ctx, lines, replayInterval)), nil
	}

	path := cfg.Port
	if path == "" {
		ports := serialmux.ListPorts()
		if len(ports) == 0 {
			return nil, errors.New("no serial port configured and none found")
		}
		path = ports[0]
		log.Printf("no port configured, using %s", path)
	}

	opts, err := cfg.PortOptions().Normalise()
	if err != nil {
		return nil, err
	}
	return serialmux.OpenPort(path, opts)
}

// consoleSinks logs every emission, mirroring the sensor feed on stderr.
func consoleSinks() telemetry.Sinks {
	return telemetry.Sinks{
		OnReading: func(r telemetry.Reading) {
			monitoring.Logf("%s", r)
		},
		OnRawText: func(text string) {
			monitoring.Logf("%s", telemetry.DisplayLine(text))
		},
		OnError: func(msg string) {
			monitoring.Logf("%s", msg)
		},
	}
}

// run decodes until ctx is done or the port fails. If ready is non-nil the
// bound listen address is sent on it once the debug server is up.
func run(ctx context.Context, cfg *config.Config, dev bool, ready chan<- string) error {
	readTimeout, idle, err := cfg.Durations()
	if err != nil {
		return err
	}

	reader, err := openReader(ctx, cfg, dev)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	defer reader.Close()

	database, err := db.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	session, err := database.StartSession(reader.Name(), cfg.BaudRate)
	if err != nil {
		return err
	}
	log.Printf("session %s started on %s (%s)", session.ID, reader.Name(), cfg.PortOptions())

	buf := history.NewBuffer(cfg.HistoryLength)
	sinks := telemetry.Tee(
		consoleSinks(),
		buf.Sinks(nil),
		database.NewRecorder(session, cfg.RecordRaw).Sinks(),
	)

	sensor := serialmux.NewSerialMux(reader, sinks, serialmux.WithDecoderOptions(
		telemetry.WithReadTimeout(readTimeout),
		telemetry.WithIdleInterval(idle),
	))

	mux := http.NewServeMux()
	sensor.AttachAdminRoutes(mux)
	buf.AttachAdminRoutes(mux)
	if err := database.AttachAdminRoutes(mux); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	server := &http.Server{Handler: mux}
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	log.Printf("debug server listening on http://%s/debug/", ln.Addr())
	if ready != nil {
		ready <- ln.Addr().String()
	}

	if err := sensor.Start(ctx); err != nil {
		server.Close()
		return err
	}

	reason := "stopped"
	var runErr error
	select {
	case <-ctx.Done():
	case <-sensor.Done():
		if ctx.Err() == nil {
			reason = "transport error"
		}
	case runErr = <-serverErr:
		reason = "server error"
	}
	log.Printf("shutting down: %s", reason)

	sensor.Stop()
	if err := sensor.Close(); err != nil {
		log.Printf("failed to close serial port: %v", err)
	}
	if err := database.EndSession(session.ID, reason); err != nil {
		log.Printf("failed to end session: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	return runErr
}
