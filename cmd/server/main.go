package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hollowfen/pasture/pkg/api"
	authproviders "github.com/hollowfen/pasture/pkg/auth/providers"
	"github.com/hollowfen/pasture/pkg/log"
	"github.com/hollowfen/pasture/pkg/repositories"
	"github.com/hollowfen/pasture/pkg/version"
)

func main() {
	port := flag.Int("port", 8080, "HTTP port to listen on")
	logLevel := flag.String("log-level", "info", "Log level")
	tlsCertFile := flag.String("tls-cert", "", "TLS certificate file")
	tlsKeyFile := flag.String("tls-key", "", "TLS key file")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)

	log.Info("Starting save backend version %s", version.Get())
	ctx := context.Background()

	var repository repositories.Repository
	if connStr := os.Getenv("DATABASE_URL"); connStr != "" {
		repository, err = repositories.NewPostgresRepository(ctx, connStr)
		if err != nil {
			panic(fmt.Sprintf("Failed to connect to postgres: %v", err))
		}
	} else {
		path := os.Getenv("SQLITE_PATH")
		if path == "" {
			path = "pasture-backend.db"
		}
		repository, err = repositories.NewSQLiteRepository(ctx, path)
		if err != nil {
			panic(fmt.Sprintf("Failed to open sqlite database: %v", err))
		}
	}
	defer repository.Close(ctx)

	projectID := os.Getenv("FIREBASE_PROJECT_ID")
	if projectID == "" {
		panic("FIREBASE_PROJECT_ID environment variable must be set")
	}
	apiKey := os.Getenv("FIREBASE_API_KEY")
	if apiKey == "" {
		panic("FIREBASE_API_KEY environment variable must be set")
	}
	authProvider, err := authproviders.NewFirebaseAuthProvider(ctx, projectID, apiKey)
	if err != nil {
		panic(fmt.Sprintf("Failed to create auth provider: %v", err))
	}

	var tlsConfig *api.TLSConfig
	if *tlsCertFile != "" && *tlsKeyFile != "" {
		tlsConfig = &api.TLSConfig{
			CertFile: *tlsCertFile,
			KeyFile:  *tlsKeyFile,
		}
	}

	server := api.NewAPIServer(api.NewAPIServerOptions{
		Port:         *port,
		TLS:          tlsConfig,
		AuthProvider: authProvider,
		Repository:   repository,
	})
	go server.Start()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop server: %v", err)
	}
}
