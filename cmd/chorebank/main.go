package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mvaldes/chorebank/internal/database"
	"github.com/mvaldes/chorebank/internal/logging"
	"github.com/mvaldes/chorebank/internal/push"
	"github.com/mvaldes/chorebank/internal/server"
	"github.com/mvaldes/chorebank/internal/snapshot"
	"github.com/mvaldes/chorebank/internal/store"
)

func main() {
	genKeys := flag.Bool("generate-vapid-keys", false, "print a fresh VAPID key pair and exit")
	flag.Parse()

	if *genKeys {
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			fmt.Fprintln(os.Stderr, "generate VAPID keys:", err)
			os.Exit(1)
		}
		fmt.Println("CHOREBANK_VAPID_PUBLIC_KEY=" + pub)
		fmt.Println("CHOREBANK_VAPID_PRIVATE_KEY=" + priv)
		return
	}

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := logging.Setup(os.Getenv("CHOREBANK_LOG_LEVEL"), os.Getenv("CHOREBANK_LOG_FORMAT"))

	port := os.Getenv("CHOREBANK_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("CHOREBANK_DB_PATH")
	if dbPath == "" {
		dbPath = "chorebank.db"
	}

	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Single-parent household: make sure the parent row exists so the
	// PIN and task creator endpoints always have a subject.
	childStore := store.NewChildStore(db)
	parentName := os.Getenv("CHOREBANK_PARENT_NAME")
	if parentName == "" {
		parentName = "Parent"
	}
	if _, err := childStore.EnsureParent(parentName, ""); err != nil {
		logger.Error("seed parent", "error", err)
		os.Exit(1)
	}

	snapshotCfg := snapshot.Config{
		DBPath:     dbPath,
		Passphrase: os.Getenv("CHOREBANK_SNAPSHOT_PASSPHRASE"),
		S3: snapshot.S3Config{
			Endpoint:  os.Getenv("CHOREBANK_S3_ENDPOINT"),
			Bucket:    os.Getenv("CHOREBANK_S3_BUCKET"),
			Region:    os.Getenv("CHOREBANK_S3_REGION"),
			AccessKey: os.Getenv("CHOREBANK_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("CHOREBANK_S3_SECRET_KEY"),
		},
	}

	pushCfg := push.Config{
		VAPIDPublicKey:  os.Getenv("CHOREBANK_VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("CHOREBANK_VAPID_PRIVATE_KEY"),
	}
	if pushCfg.VAPIDPublicKey == "" {
		logger.Info("push notifications disabled, no VAPID keys configured")
	}

	srv := server.New(db, snapshotCfg, pushCfg, logger)

	srv.SnapshotManager().Start()
	defer srv.SnapshotManager().Stop()

	// Rate limiter entries expire lazily; sweep them hourly.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			srv.RateLimiter().Cleanup()
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("chorebank running", "addr", "http://localhost:"+port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
