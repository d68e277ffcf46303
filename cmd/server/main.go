package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/cors"

	"github.com/genlab/seqmeta/internal/api"
	"github.com/genlab/seqmeta/internal/config"
	"github.com/genlab/seqmeta/internal/db"
	"github.com/genlab/seqmeta/internal/export"
	"github.com/genlab/seqmeta/internal/middleware"
	"github.com/genlab/seqmeta/internal/repository"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("[Server] failed to load configuration: %v", err)
	}

	// Setup database connection
	conn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("[Server] failed to connect to database: %v", err)
	}
	defer conn.Close()

	// Create repositories
	projects := repository.NewProjectRepository(conn, conn.Dialect())
	participants := repository.NewParticipantRepository(conn, conn.Dialect())
	samples := repository.NewSampleRepository(conn, conn.Dialect())
	groups := repository.NewSequencingGroupRepository(conn, conn.Dialect())

	// Export worker pool
	exporter := export.NewService(samples,
		export.WithExportDirectory(cfg.Export.Directory),
		export.WithWorkerCount(cfg.Export.Workers),
		export.WithQueueSize(cfg.Export.QueueSize),
		export.WithPageSize(cfg.Export.PageSize),
		export.WithJobTimeout(cfg.Export.JobTimeout),
	)
	exporter.Start(ctx)

	apiHandler := api.NewHandler(projects, participants, samples, groups)
	loaders := middleware.LoaderMiddleware(participants, samples, groups,
		middleware.WithBatchWait(cfg.Loader.Wait),
		middleware.WithBatchLimit(cfg.Loader.BatchLimit),
		middleware.WithGroupLimit(cfg.Loader.GroupLimit),
	)

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	chain := func(h http.Handler) http.Handler {
		return corsHandler.Handler(middleware.RequestIDMiddleware(middleware.LoggingMiddleware(h)))
	}

	mux := http.NewServeMux()
	mux.Handle(api.Prefix, chain(loaders(apiHandler)))
	exportHandler := export.NewHTTPHandler(exporter)
	mux.Handle("/exports", chain(exportHandler))
	mux.Handle("/exports/", chain(exportHandler))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("[Server] listening on %s", server.Addr)
		log.Printf("[Server] query API at http://localhost:%d%s", cfg.Server.Port, api.Prefix)
		log.Printf("[Server] exports at http://localhost:%d/exports", cfg.Server.Port)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Server] failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[Server] shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("[Server] forced to shutdown: %v", err)
	}

	// Stop export workers and wait for in-flight jobs to wind down
	cancel()
	exporter.Stop()

	log.Println("[Server] exited")
}
