package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/planeboard/engine/internal/align"
	"github.com/planeboard/engine/internal/api"
	"github.com/planeboard/engine/internal/channel"
	"github.com/planeboard/engine/internal/config"
	"github.com/planeboard/engine/internal/dispatcher"
	"github.com/planeboard/engine/internal/drag"
	"github.com/planeboard/engine/internal/handlers"
	"github.com/planeboard/engine/internal/influx"
	"github.com/planeboard/engine/internal/logging"
	"github.com/planeboard/engine/internal/monitor"
	intOtel "github.com/planeboard/engine/internal/otel"
	"github.com/planeboard/engine/internal/storage"
	"github.com/planeboard/engine/internal/worker"

	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.1.0"
	BuildDate      string = "unknown"

	AppName string = "planeboard"
)

// file paths
var (
	// ConfigDir holds planeboard.cfg.json. PLANEBOARD_CONFIG_DIR overrides it.
	ConfigDir string = "."

	LogFilePath string
	LogFile     *os.File

	StatusFilePath string
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	// InfluxManager records gesture and status points when influx is enabled
	InfluxManager *influx.Manager

	SessionStartTime time.Time = time.Now()

	// Services
	boardContext    *handlers.BoardContext = handlers.NewBoardContext()
	handlerService  *handlers.Service
	workerManager   *worker.Manager
	monitorService  *monitor.Service
	eventDispatcher *dispatcher.Dispatcher

	// Storage backend
	storageBackend storage.Backend
)

// setup loads config and brings up logging, OTel and influx.
func setup() {
	var err error

	if dir := os.Getenv("PLANEBOARD_CONFIG_DIR"); dir != "" {
		ConfigDir = dir
	}

	// console logging until the log file exists
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(logging.Options{Level: "info"})
	Logger = SlogManager.Logger()

	if err = config.Load(ConfigDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config")
	}

	logsDir := viper.GetString("logsDir")
	LogFilePath = logging.LogFilePath(logsDir, AppName, SessionStartTime)
	LogFile, err = logging.OpenLogFile(LogFilePath)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", LogFilePath)
		LogFile = nil
	}
	StatusFilePath = filepath.Join(logsDir, "status.json")

	logOut := logWriter()

	otelCfg := config.GetOTelConfig()
	OTelProvider, err = intOtel.New(intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		LogWriter:    logOut,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	})
	if err != nil {
		Logger.Error("Failed to initialize OTel provider", "error", err)
		OTelProvider = nil
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil && OTelProvider.Enabled() {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	SlogManager.Setup(logging.Options{
		Writer:   logOut,
		Level:    viper.GetString("logLevel"),
		Provider: otelLogProvider,
		State:    boardContext.LogAttrs,
	})
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", LogFilePath, "version", CurrentVersion, "buildDate", BuildDate)

	if viper.GetBool("influx.enabled") {
		InfluxManager = influx.NewManager(
			influx.ConfigFromViper(),
			logging.NewZerolog(logOut, viper.GetString("logLevel"), "influx"),
			filepath.Join(logsDir, fmt.Sprintf("%s_%s.influx.gz", AppName, SessionStartTime.Format("20060102_150405"))),
		)
		if err := InfluxManager.Connect(); err != nil {
			Logger.Warn("InfluxDB unavailable", "error", err)
			InfluxManager = nil
		} else {
			Logger.Info("InfluxDB recording", "online", InfluxManager.Online())
		}
	}
}

// initEngine creates the dispatcher and services and wires them to the
// storage backend. guides and offsets receive the per-frame presentation
// output.
func initEngine(guides channel.Sender[[]align.Guide], offsets channel.Sender[drag.Offset]) error {
	var err error

	eventDispatcher, err = dispatcher.New(logging.NewDispatcherLogger(
		logging.NewZerolog(logWriter(), viper.GetString("logLevel"), "dispatcher"),
	))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	registerLifecycleHandlers(eventDispatcher)

	storageBackend, err = createStorageBackend(config.GetStorageConfig())
	if err != nil {
		return fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := storageBackend.Init(); err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}

	engineCfg := config.GetEngineConfig()
	if err := engineCfg.Validate(); err != nil {
		return fmt.Errorf("invalid engine config: %w", err)
	}
	handlerService = handlers.NewService(handlers.Dependencies{
		Logger:         Logger,
		Drag:           dragConfig(engineCfg),
		IndexTolerance: engineCfg.IndexTolerance,
		Guides:         guides,
		Offsets:        offsets,
	}, boardContext)
	handlerService.SetBackend(storageBackend)
	handlerService.RegisterHandlers(eventDispatcher)

	deps := worker.Dependencies{
		Context: boardContext,
		Logger:  Logger,
	}
	if InfluxManager != nil {
		deps.Recorder = InfluxManager
	}
	workerManager = worker.NewManager(deps, storageBackend)
	workerManager.RegisterHandlers(eventDispatcher)
	Logger.Info("Engine handlers registered with dispatcher")

	monDeps := monitor.Dependencies{
		Logger:        Logger,
		BoardContext:  boardContext,
		WorkerManager: workerManager,
		StatusPath:    StatusFilePath,
	}
	if InfluxManager != nil {
		monDeps.Recorder = InfluxManager
	}
	monitorService = monitor.NewService(monDeps)
	if !monitorService.IsRunning() {
		if err := monitorService.Start(); err != nil {
			Logger.Warn("Failed to start status monitor", "error", err)
		}
	}
	return nil
}

func dragConfig(c config.EngineConfig) drag.Config {
	return drag.Config{
		GridEnabled:    c.GridEnabled,
		GridUnit:       c.GridUnit,
		SnapTolerance:  c.SnapTolerance,
		SearchMargin:   c.SearchMargin,
		TitleBarHeight: c.FrameTitleBarHeight,
		FramePadding:   c.FramePadding,
		Predominance:   c.Predominance,
	}
}

func registerLifecycleHandlers(d *dispatcher.Dispatcher) {
	d.Register("version", func(dispatcher.Event) (any, error) {
		return map[string]string{"version": CurrentVersion, "buildDate": BuildDate}, nil
	})
	d.Register("status", func(dispatcher.Event) (any, error) {
		if monitorService == nil {
			return nil, fmt.Errorf("status monitor not running")
		}
		return monitorService.GetStatus(), nil
	})
}

// shutdown closes the open board, drains queued writes and flushes telemetry.
func shutdown() {
	if monitorService != nil {
		monitorService.Stop()
	}
	if handlerService != nil {
		if err := handlerService.CloseBoard(); err != nil && !errors.Is(err, handlers.ErrNoBoard) {
			Logger.Error("Failed to close board", "error", err)
		}
	}
	if eventDispatcher != nil {
		eventDispatcher.Close()
	}
	if storageBackend != nil {
		if err := storageBackend.Close(); err != nil {
			Logger.Error("Failed to close storage backend", "error", err)
		}
		uploadExport(storageBackend)
	}
	if InfluxManager != nil {
		if err := InfluxManager.Close(); err != nil {
			Logger.Warn("Failed to close InfluxDB client", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if OTelProvider != nil {
		if err := OTelProvider.Flush(ctx); err != nil {
			Logger.Warn("Failed to flush OTel", "error", err)
		}
	}
	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to shut down OTel: %v\n", err)
		}
	}
	if LogFile != nil {
		LogFile.Close()
	}
}

// uploadExport sends the last board export to the sync server when
// api.uploadOnClose is set.
func uploadExport(b storage.Backend) {
	exp, ok := b.(storage.Exportable)
	if !ok || !viper.GetBool("api.uploadOnClose") {
		return
	}
	path := exp.GetExportedFilePath()
	if path == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client := api.New(viper.GetString("api.serverUrl"), viper.GetString("api.apiKey"))
	if err := client.Healthcheck(ctx); err != nil {
		Logger.Warn("Board sync server is offline, export kept on disk", "path", path, "error", err)
		return
	}
	res, err := client.Upload(ctx, path, exp.GetExportMetadata())
	if err != nil {
		Logger.Error("Failed to upload board export", "path", path, "error", err)
		return
	}
	Logger.Info("Uploaded board export", "path", path, "id", res.ID, "url", res.URL)
}

func logWriter() io.Writer {
	if LogFile != nil {
		return LogFile
	}
	return os.Stderr
}

func usage() {
	fmt.Fprintf(os.Stderr, `%s %s

Usage:
  %s replay <script.jsonl> [board.json]   run a recorded command script
  %s migrate                              migrate the schema and import SQLite dumps
  %s export <boardId>                     write a stored board to a JSON export
  %s version                              print the version
`, AppName, CurrentVersion, AppName, AppName, AppName, AppName)
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	cmd := strings.ToLower(args[0])
	if cmd == "version" {
		out, _ := json.Marshal(map[string]string{"version": CurrentVersion, "buildDate": BuildDate})
		fmt.Println(string(out))
		return
	}

	setup()

	var err error
	switch cmd {
	case "replay":
		if len(args) < 2 {
			usage()
			os.Exit(2)
		}
		boardFile := ""
		if len(args) > 2 {
			boardFile = args[2]
		}
		err = runReplay(args[1], boardFile, os.Stdout)
	case "migrate":
		err = runMigrate()
	case "export":
		if len(args) < 2 {
			usage()
			os.Exit(2)
		}
		err = runExport(args[1])
	default:
		usage()
		shutdown()
		os.Exit(2)
	}

	if err != nil {
		Logger.Error("Command failed", "command", cmd, "error", err)
		fmt.Fprintln(os.Stderr, err)
		shutdown()
		os.Exit(1)
	}
	shutdown()
}
