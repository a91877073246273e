package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/always-cache/webserver-auth/pagecache"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// CLI flags
	configFilenameFlag string
	listenFlag         string
	originFlag         string
	hostFlag           string
	dbFilenameFlag     string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.StringVar(&listenFlag, "listen", "", "Address to listen on (overrides config)")
	flag.StringVar(&originFlag, "origin", "", "Origin URL to proxy to (overrides config)")
	flag.StringVar(&hostFlag, "host", "", "Hostname of origin (overrides config)")
	flag.StringVar(&dbFilenameFlag, "db", "", "Cache DB file name, 'memory' for in-memory db (overrides config)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [serve | warm <path>...]\n", os.Args[0])
		flag.PrintDefaults()
	}

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()
	setupLogging()

	config, err := getConfig(configFilenameFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not read config")
	}
	if listenFlag != "" {
		config.Listen = listenFlag
	}
	if originFlag != "" {
		config.Origin.URL = originFlag
	}
	if hostFlag != "" {
		config.Origin.Host = hostFlag
	}
	if dbFilenameFlag != "" {
		config.Cache.DB = dbFilenameFlag
	}

	switch command := flag.Arg(0); command {
	case "", "serve":
		err = serve(config)
	case "warm":
		err = warm(config, flag.Args()[1:])
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Send()
	}
}

// setupLogging logs to stdout, and also to a rotated log file if specified.
func setupLogging() {
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}
	logOutputs := []io.Writer{zerolog.ConsoleWriter{Out: os.Stdout}}
	if logFilenameFlag != "" {
		logOutputs = append(logOutputs, &lumberjack.Logger{
			Filename:   logFilenameFlag,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     7,
			Compress:   true,
		})
	}
	log.Logger = log.Level(logLevel).Output(zerolog.MultiLevelWriter(logOutputs...)).
		With().Str("version", version).Logger()
}

func serve(config Config) error {
	a, err := newApp(config, log.Logger, false)
	if err != nil {
		return err
	}
	defer a.closeCache()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	refreshing := a.startRefresh(ctx)
	// the cache is closed only after the refresh loop has stopped using it
	defer func() {
		stop()
		refreshing.Wait()
	}()

	server := &http.Server{
		Addr:              config.Listen,
		Handler:           a.router,
		ReadHeaderTimeout: 15 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Could not shut down server")
		}
	}()

	log.Info().
		Strs("features", a.features.List()).
		Msgf("Proxying %s to %s (with hostname '%s')", config.Listen, config.Origin.URL, config.Origin.Host)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// warm requests the given paths through the handler chain in-process,
// as a command-line task, so that the page cache gets primed.
func warm(config Config, paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("no paths to warm")
	}
	a, err := newApp(config, log.Logger, true)
	if err != nil {
		return err
	}
	defer a.closeCache()

	for _, path := range paths {
		req, err := http.NewRequest(http.MethodGet, path, nil)
		if err != nil {
			return fmt.Errorf("could not create request for %s: %w", path, err)
		}
		rw := pagecache.NewResponseSaver(nil)
		a.chain.ServeHTTP(rw, req)
		log.Info().
			Str("path", path).
			Int("status", rw.StatusCode()).
			Str("cacheStatus", rw.Header().Get("Cache-Status")).
			Msg("Warmed")
	}
	return nil
}
