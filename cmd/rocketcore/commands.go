package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"rocketcore/internal/config"
	"rocketcore/internal/httpapi"
	"rocketcore/internal/pipeline"
	"rocketcore/internal/registry"
	"rocketcore/internal/scheduler"
	"rocketcore/internal/storage"
	"rocketcore/internal/webhookdispatch"
	"rocketcore/internal/workflow"
)

var fixturePath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the rocketcore HTTP server and background schedulers",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE:  runMigrate,
}

func init() {
	serveCmd.Flags().StringVar(&fixturePath, "fixture", "", "path to a YAML metadata fixture to load before serving")
	migrateCmd.Flags().StringVar(&fixturePath, "fixture", "", "path to a YAML metadata fixture to load after migrating")
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := storage.Open(cfg.Database.Path, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	fmt.Println("migrations applied")

	if fixturePath != "" {
		reg, err := registry.New(db.Conn())
		if err != nil {
			return fmt.Errorf("failed to load registry: %w", err)
		}
		if err := reg.LoadFixture(fixturePath); err != nil {
			return fmt.Errorf("failed to load fixture: %w", err)
		}
		fmt.Println("fixture loaded")
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := log.New(os.Stderr, "rocketcore ", log.LstdFlags)

	db, err := storage.Open(cfg.Database.Path, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	reg, err := registry.New(db.Conn())
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	if fixturePath != "" {
		if err := reg.LoadFixture(fixturePath); err != nil {
			return fmt.Errorf("failed to load fixture: %w", err)
		}
		logger.Printf("loaded fixture %s", fixturePath)
	}

	dispatcher := webhookdispatch.NewDispatcher(db.Conn(), reg, logger)
	store := workflow.NewStore(db.Conn())
	wfEngine := workflow.NewEngine(db.Conn(), store, reg, dispatcher, logger)
	p := pipeline.New(db.Conn(), reg, dispatcher, wfEngine, nil, logger)

	sched := scheduler.New(dispatcher, wfEngine, logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	server := httpapi.NewServer(p, reg, wfEngine, logger)
	router := server.Router()
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	logger.Printf("listening on %s", addr)
	return http.ListenAndServe(addr, router)
}
