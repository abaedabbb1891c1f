package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/arcflux/reeltime/internal/api"
	"github.com/arcflux/reeltime/internal/api/auth"
	"github.com/arcflux/reeltime/internal/capability"
	"github.com/arcflux/reeltime/internal/config"
	"github.com/arcflux/reeltime/internal/coordinator"
	"github.com/arcflux/reeltime/internal/database"
	"github.com/arcflux/reeltime/internal/dispatch"
	"github.com/arcflux/reeltime/internal/event"
	"github.com/arcflux/reeltime/internal/hub"
	"github.com/arcflux/reeltime/internal/probe"
	"github.com/arcflux/reeltime/internal/ratelimit"
	"github.com/arcflux/reeltime/internal/runner"
	"github.com/arcflux/reeltime/internal/store"
	"github.com/arcflux/reeltime/internal/user"
	"github.com/arcflux/reeltime/internal/workspace"
	"github.com/arcflux/reeltime/pkg/logger"
)

const version = "1.0"

var (
	log = logger.Get("Bootstrap")

	logLevelFlag = flag.String("log-level", "info", "Define logging level from one of [verbose, debug, info, important, warning, error]")
	configFlag   = flag.String("config", "", "Path to a TOML config file; if empty, configuration is read from environment variables")
)

func main() {
	flag.Parse()

	level, err := parseLogLevelFromString(*logLevelFlag)
	if err != nil {
		fmt.Println(err.Error())
		flag.Usage()
		return
	}
	logger.SetMinLoggingLevel(level)

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("failed to load configuration: %v\n", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	go listenForInterrupt(cancel)

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("reeltime exited with error: %v\n", err)
		return
	}

	log.Emit(logger.STOP, "reeltime shutdown complete\n")
}

func run(ctx context.Context, cfg *config.Config) error {
	log.Emit(logger.INFO, " --- Starting reeltime (version %s) ---\n", version)

	db := database.New()
	if err := db.Connect(cfg.Database); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlxDB := db.GetSqlxDB()

	userStore := user.NewStore()
	if err := ensureInitialUser(sqlxDB, userStore); err != nil {
		return fmt.Errorf("failed to bootstrap initial user: %w", err)
	}

	ws, err := workspace.New(cfg.Transcode.WorkspaceRoot)
	if err != nil {
		return fmt.Errorf("failed to initialise workspace: %w", err)
	}

	taskStore := store.New(sqlxDB)
	events := event.New()
	progressHub := hub.New()
	taskRunner := runner.New()

	override := cfg.Transcode.CapabilityVendorOverride
	if !cfg.Transcode.EnableHardwareAccelerationDetection && override == "" {
		override = string(capability.VendorNone)
	}
	detector := capability.New(cfg.Transcode.FfmpegBinaryPath, override)

	warmupCtx, warmupCancel := context.WithTimeout(ctx, 10*time.Second)
	if _, err := detector.Detect(warmupCtx); err != nil {
		log.Warnf("capability detection failed, falling back to software encoding: %v\n", err)
	}
	warmupCancel()

	dispatcher := dispatch.New(cfg.Transcode.MaxConcurrentTasks)
	stallTimeout := time.Duration(cfg.Transcode.StallTimeoutSeconds) * time.Second
	coord := coordinator.New(taskStore, ws, dispatcher, progressHub, events, taskRunner, detector, cfg.Transcode.FfmpegBinaryPath, stallTimeout)

	if err := coord.RecoverFromCrash(); err != nil {
		return fmt.Errorf("crash recovery failed: %w", err)
	}

	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	authProvider, err := auth.New(sqlxDB, userStore, time.Duration(cfg.Auth.AccessTokenExpireMinutes)*time.Minute)
	if err != nil {
		return fmt.Errorf("failed to initialise auth provider: %w", err)
	}
	tokenRate := ratelimit.New(cfg.Auth.TokenRateLimitPerMinute)

	prober := probe.New(probe.Config{FfmpegBinPath: cfg.Transcode.FfmpegBinaryPath, FfprobeBinPath: cfg.Transcode.FfprobeBinaryPath})

	maxUploadBytes, err := parseByteSize(cfg.HTTP.MaxUploadSize)
	if err != nil {
		return fmt.Errorf("invalid max_upload_size %q: %w", cfg.HTTP.MaxUploadSize, err)
	}

	gateway := api.NewGateway(
		api.Config{HostAddr: cfg.HTTP.HostAddr, CORSOrigins: cfg.HTTP.CORSOrigins},
		authProvider,
		tokenRate,
		api.NewAuthController(sqlxDB, userStore),
		api.NewAssetController(taskStore, ws, prober, maxUploadBytes),
		api.NewTaskController(coord, taskStore),
		api.NewCapabilityController(detector),
		api.NewProgressController(progressHub, taskStore),
	)

	log.Emit(logger.SUCCESS, "reeltime is listening on %s [CTRL+C to stop]\n", cfg.HTTP.HostAddr)
	return gateway.Run(ctx)
}

// ensureInitialUser creates a default admin account the first time reeltime
// starts against an empty users table, mirroring the teacher's
// createInitialUserIfNonePresent bootstrapping step.
func ensureInitialUser(db *sqlx.DB, userStore *user.Store) error {
	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM users"); err != nil {
		return fmt.Errorf("failed to count existing users: %w", err)
	}
	if count > 0 {
		log.Debugf("existing users found (%d), not creating initial user\n", count)
		return nil
	}

	log.Emit(logger.NEW, "no existing users found, creating initial user [username=admin, password=admin - change this immediately]\n")
	return userStore.Create(db, []byte("admin"), []byte("admin"))
}

func listenForInterrupt(cancel context.CancelFunc) {
	exitChannel := make(chan os.Signal, 1)
	signal.Notify(exitChannel, os.Interrupt, syscall.SIGTERM)

	<-exitChannel
	cancel()
}

func parseLogLevelFromString(l string) (logger.LogLevel, error) {
	switch strings.ToLower(l) {
	case "verbose":
		return logger.VERBOSE.Level(), nil
	case "debug":
		return logger.DEBUG.Level(), nil
	case "info":
		return logger.INFO.Level(), nil
	case "important":
		return logger.SUCCESS.Level(), nil
	case "warning":
		return logger.WARNING.Level(), nil
	case "error":
		return logger.ERROR.Level(), nil
	default:
		return logger.INFO.Level(), fmt.Errorf("logging level %s is not recognized", l)
	}
}

// parseByteSize parses a human size like "2G", "512M" or a bare byte count.
func parseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	multiplier := int64(1)
	numPart := s
	switch s[len(s)-1] {
	case 'k', 'K':
		multiplier = 1 << 10
		numPart = s[:len(s)-1]
	case 'm', 'M':
		multiplier = 1 << 20
		numPart = s[:len(s)-1]
	case 'g', 'G':
		multiplier = 1 << 30
		numPart = s[:len(s)-1]
	}

	value, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric size %q: %w", numPart, err)
	}
	return value * multiplier, nil
}
