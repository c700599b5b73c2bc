/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the vacation engine server: configuration,
  store selection, dependency wiring, graceful shutdown.

STARTUP SEQUENCE:
  1. Load environment configuration (flags override port/DSN)
  2. Open the store (sqlite or postgres per DATABASE_DRIVER)
  3. Load the static directory and holiday set
  4. Wire the lifecycle engine and the HTTP router
  5. Serve until SIGINT/SIGTERM, then drain with a timeout

ENVIRONMENT:
  See config/config.go. JWT_SECRET is required.

EXAMPLES:
  # In-memory SQLite, port 3000
  JWT_SECRET=dev ./server -port=3000 -db=":memory:"

  # PostgreSQL
  JWT_SECRET=dev DATABASE_DRIVER=postgres \
    DATABASE_DSN=postgres://localhost/vacation ./server
*/
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/vacation-engine/api"
	"github.com/warp/vacation-engine/calendar"
	"github.com/warp/vacation-engine/config"
	"github.com/warp/vacation-engine/store/memory"
	"github.com/warp/vacation-engine/store/postgres"
	"github.com/warp/vacation-engine/store/sqlite"
	"github.com/warp/vacation-engine/vacation"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	port := flag.Int("port", cfg.Server.Port, "HTTP server port")
	dsn := flag.String("db", cfg.Database.DSN, "database DSN (SQLite path or PostgreSQL URL)")
	flag.Parse()

	store, closeStore, err := openStore(cfg.Database.Driver, *dsn)
	if err != nil {
		logger.Error("failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStore()

	directory, err := loadDirectory(cfg.Vacation.DirectoryFile)
	if err != nil {
		logger.Error("failed to load directory", slog.String("error", err.Error()))
		os.Exit(1)
	}

	holidays, err := loadHolidays(cfg.Vacation.Holidays)
	if err != nil {
		logger.Error("failed to parse holidays", slog.String("error", err.Error()))
		os.Exit(1)
	}

	threshold, _ := cfg.Threshold() // validated in config.Load

	engine := vacation.NewLifecycle(store, directory, holidays)
	engine.Admission.Threshold = threshold

	auth := &api.Authenticator{Secret: []byte(cfg.JWT.Secret)}
	handler := api.NewHandler(engine, logger)
	router := api.NewRouter(handler, auth, cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		logger.Info("server starting",
			slog.Int("port", *port),
			slog.String("driver", cfg.Database.Driver))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// openStore selects the store implementation by driver name.
func openStore(driver, dsn string) (vacation.TxStore, func(), error) {
	switch driver {
	case "sqlite":
		store, err := sqlite.New(dsn)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := postgres.New(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

// directoryFile is the JSON shape of the static directory file.
type directoryFile struct {
	Employees []struct {
		ID   string `json:"id"`
		Role string `json:"role"`
	} `json:"employees"`
	Teams []struct {
		ID      string   `json:"id"`
		Name    string   `json:"name"`
		Members []string `json:"members"`
	} `json:"teams"`
}

// loadDirectory builds the static directory from a JSON file. In
// production the Directory interface would be backed by the HR system.
func loadDirectory(path string) (*memory.Directory, error) {
	directory := memory.NewDirectory()
	if path == "" {
		return directory, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file directoryFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse directory file %s: %w", path, err)
	}

	for _, e := range file.Employees {
		directory.AddEmployee(vacation.EmployeeID(e.ID), vacation.Role(e.Role))
	}
	for _, t := range file.Teams {
		members := make([]vacation.EmployeeID, len(t.Members))
		for i, m := range t.Members {
			members[i] = vacation.EmployeeID(m)
		}
		directory.AddTeam(vacation.TeamID(t.ID), t.Name, members...)
	}
	return directory, nil
}

// loadHolidays parses the configured holiday dates.
func loadHolidays(dates []string) (calendar.HolidaySource, error) {
	if len(dates) == 0 {
		return calendar.NoHolidays{}, nil
	}
	holidays := make([]calendar.Holiday, 0, len(dates))
	for _, raw := range dates {
		date, err := calendar.ParseDate(raw)
		if err != nil {
			return nil, err
		}
		holidays = append(holidays, calendar.Holiday{Date: date})
	}
	return calendar.NewHolidaySet(holidays...), nil
}
