package main

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	dermawebui "github.com/dermalink/derma-web-ui"
	"github.com/dermalink/derma-web-ui/internal/handlers"
	"github.com/dermalink/derma-web-ui/internal/platform"
	"github.com/dermalink/derma-web-ui/internal/services"
	"gopkg.in/yaml.v3"
)

func main() {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		log.Fatal(fmt.Errorf("error getting user config dir: %w", err))
	}
	cfgPath := filepath.Join(cfgDir, "dermalink")
	if err := os.MkdirAll(cfgPath, 0755); err != nil {
		log.Fatal(fmt.Errorf("error creating config directory: %w", err))
	}

	cfgFile, err := os.Open(filepath.Join(cfgPath, "config.yaml"))
	if err != nil {
		log.Fatal(fmt.Errorf("error opening config file: %w", err))
	}
	defer cfgFile.Close()

	cfg := config{}
	if err := yaml.NewDecoder(cfgFile).Decode(&cfg); err != nil {
		log.Fatal(fmt.Errorf("error decoding config file: %w", err))
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	boltDB, err := services.NewBoltDB(filepath.Join(cfgPath, "store.db"))
	if err != nil {
		log.Fatal(fmt.Errorf("error opening store: %w", err))
	}
	defer boltDB.Close()

	if cfg.Platform.Token != "" {
		if err := boltDB.SetToken(cfg.Platform.Token); err != nil {
			log.Fatal(fmt.Errorf("error persisting platform token: %w", err))
		}
	}

	// The session store is the primary token source; the bolt-persisted
	// token is the fallback when it is absent or failing.
	tokens := platform.ChainTokenProvider{}
	if cfg.Platform.SessionURL != "" {
		tokens = append(tokens, platform.NewSessionTokenProvider(cfg.Platform.SessionURL, cfg.Platform.RefreshToken))
	}
	tokens = append(tokens, boltDB)

	if cfg.Platform.Endpoint == "" {
		log.Fatal("platform endpoint is required")
	}
	client := platform.NewClient(cfg.Platform.Endpoint, tokens, logger)

	llm, err := cfg.Assist.llm(client, cfg.SystemPrompt, logger)
	if err != nil {
		log.Fatal(fmt.Errorf("error configuring assist provider: %w", err))
	}
	titleGen, err := cfg.Assist.titleGen(client, cfg.TitleGeneratorPrompt, logger)
	if err != nil {
		log.Fatal(fmt.Errorf("error configuring title generator: %w", err))
	}

	m, err := handlers.NewMain(llm, titleGen, boltDB, client, logger)
	if err != nil {
		log.Fatal(fmt.Errorf("error creating handlers: %w", err))
	}

	// Serve static files
	staticFS, err := fs.Sub(dermawebui.StaticFS, "static")
	if err != nil {
		log.Fatal(fmt.Errorf("error preparing static assets: %w", err))
	}
	fileServer := http.FileServer(http.FS(staticFS))

	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", fileServer))
	mux.HandleFunc("/{$}", m.HandleHome)
	mux.HandleFunc("/chats", m.HandleChats)
	mux.HandleFunc("GET /patients", m.HandlePatients)
	mux.HandleFunc("GET /patients/{id}", m.HandlePatient)
	mux.HandleFunc("POST /lab-reports/{id}/analyze", m.HandleLabAnalysis)
	mux.HandleFunc("/sse/messages", m.HandleSSE)
	mux.HandleFunc("/sse/chats", m.HandleSSE)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			log.Printf("Failed to shutdown sse server: %v", err)
		}
	})

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		log.Println("Server starting on :" + cfg.Port)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Blocking select waiting for either interrupt or server error
	select {
	case err := <-serverErrors:
		log.Printf("Server error: %v", err)

	case sig := <-shutdown:
		log.Printf("Start shutdown, signal: %v", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Graceful shutdown failed: %v", err)
			if err := srv.Close(); err != nil {
				log.Printf("Forcing server close: %v", err)
			}
		}
	}
}
