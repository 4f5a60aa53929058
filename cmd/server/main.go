package main

import (
	"flag"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/audionautics/wavemark/internal/storage"
	"github.com/audionautics/wavemark/pkg/logger"
	"github.com/audionautics/wavemark/pkg/wavemark"
)

var (
	port           int
	dbPath         string
	backend        string
	tempDir        string
	allowedOrigins string
	logLevel       string
)

func init() {
	godotenv.Load()
	flag.IntVar(&port, "port", 8080, "HTTP server port")
	flag.StringVar(&dbPath, "db", getEnvOrDefault("WAVEMARK_DB", "wavemark.sqlite3"), "Catalog database path (file for sqlite, directory for badger)")
	flag.StringVar(&backend, "backend", getEnvOrDefault("WAVEMARK_BACKEND", "sqlite"), "Storage backend: sqlite or badger")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("WAVEMARK_TEMP_DIR", os.TempDir()), "Directory for uploaded audio")
	flag.StringVar(&allowedOrigins, "origins", "*", "Comma-separated list of allowed CORS origins (use * for all)")
	flag.StringVar(&logLevel, "log-level", getEnvOrDefault("WAVEMARK_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	flag.Parse()
	log := logger.New(logLevel)

	var origins []string
	if allowedOrigins == "*" {
		origins = []string{"*"}
	} else {
		origins = strings.Split(allowedOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}

	var (
		store wavemark.Store
		err   error
	)
	switch backend {
	case "sqlite":
		store, err = storage.OpenSQLite(dbPath)
	case "badger":
		store, err = storage.OpenBadger(dbPath)
	default:
		log.Fatalf("Unknown backend %q (want sqlite or badger)", backend)
	}
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	service, err := wavemark.New(
		wavemark.WithStore(store),
		wavemark.WithLogger(log),
	)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer service.Close()

	config := &ServerConfig{
		Port:           port,
		DBPath:         dbPath,
		Backend:        backend,
		TempDir:        tempDir,
		AllowedOrigins: origins,
	}

	server := NewServer(service, config, log)
	if err := server.Run(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
