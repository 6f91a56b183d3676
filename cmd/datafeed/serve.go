package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"datafeed-go/internal/app"
	"datafeed-go/internal/config"
	"datafeed-go/internal/db"
	"datafeed-go/pkg/log"
)

// serve - основной режим демона
func serve(cfgPath string) error {
	fmt.Printf("[LOG][DEBUG] Loading config from %s\n", cfgPath)
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config (%s): %w", cfgPath, err)
	}
	fmt.Printf("[LOG][DEBUG] Config loaded: %+v\n", config.GetConfigForLogging(cfg))
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := setupLogging(cfg)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic: %v", r)
			log.Close()
			os.Exit(2)
		}
		log.Close()
	}()

	logger.Info("Daemon starting...")
	logger.Debug("[DEBUG] Process PID: %d", os.Getpid())

	var driver db.DBDriver
	if cfg.DatabaseEnabled() {
		driver, err = connectDB(cfg, logger)
		if err != nil {
			return err
		}
	} else {
		logger.Info("[DB] Database is not configured, static capabilities only")
	}

	manager := app.NewManager(cfg, driver, logger)
	manager.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	logger.Debug("[DEBUG] Signal handler registered, waiting for signals...")
	select {
	case sig := <-sigChan:
		logger.Debug("[DEBUG] Signal received: %v", sig)
	case <-manager.ShutdownRequested():
		logger.Info("Shutdown requested via API")
	}

	if err := safeStop(manager, logger); err != nil {
		logger.Error("error during shutdown: %v", err)
	}
	logger.Info("Daemon stopped gracefully")
	return nil
}

// setupLogging: режим global или modular, ротация и уровень из конфига
func setupLogging(cfg *config.Config) *log.Logger {
	log.SetRotation(cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups)
	if cfg.Logging.Mode == "modular" {
		log.SetGlobalMode(false)
		fmt.Printf("[LOG][DEBUG] Modular logging mode enabled\n")
	} else {
		log.SetGlobalMode(true)
		if err := log.Init(cfg.Logging.File); err != nil {
			fmt.Printf("[LOG][ERROR] Failed to init log file: %v\n", err)
		} else {
			fmt.Printf("[LOG][DEBUG] Log file initialized: %s\n", cfg.Logging.File)
		}
	}

	if lvl, err := log.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetGlobalLevel(lvl)
		fmt.Printf("[LOG][DEBUG] Log level set to %s\n", lvl.String())
	} else {
		fmt.Printf("[LOG][ERROR] Invalid log level in config: %s\n", cfg.Logging.Level)
	}

	if cfg.Logging.Mode == "modular" && cfg.Logging.Dir != "" {
		logPath := cfg.Logging.Dir + "/daemon.log"
		l, err := log.NewWithFile("daemon", logPath)
		if err == nil {
			return l
		}
		fmt.Printf("[LOG][ERROR] Failed to create modular logger: %v\n", err)
	}
	return log.New("daemon")
}

// connectDB подключается с повторами
func connectDB(cfg *config.Config, logger *log.Logger) (db.DBDriver, error) {
	dbCfg := map[string]string{
		"host":     cfg.Database.Host,
		"port":     strconv.Itoa(cfg.Database.Port),
		"user":     cfg.Database.User,
		"password": cfg.Database.Password,
		"database": cfg.Database.Database,
	}
	driver, err := db.NewDriver(cfg.Database.Type, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create db driver: %w", err)
	}

	maxAttempts := 10
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := driver.Connect(); err != nil {
			lastErr = err
			logger.Warn("[DB] Connect attempt %d/%d failed: %v", attempt, maxAttempts, err)
			time.Sleep(2 * time.Second)
			continue
		}
		logger.Info("DB connected (attempt %d)", attempt)
		return driver, nil
	}
	return nil, fmt.Errorf("db connect failed: %w", lastErr)
}

func safeStop(manager interface{ Stop() }, logger *log.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[DEBUG] Panic during Stop: %v", r)
			err = fmt.Errorf("panic during stop: %v", r)
		}
	}()
	manager.Stop()
	return nil
}
