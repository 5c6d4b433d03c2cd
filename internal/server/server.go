package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/mvaldes/chorebank/internal/handler"
	"github.com/mvaldes/chorebank/internal/middleware"
	"github.com/mvaldes/chorebank/internal/push"
	"github.com/mvaldes/chorebank/internal/snapshot"
	"github.com/mvaldes/chorebank/internal/store"
	ws "github.com/mvaldes/chorebank/internal/websocket"
)

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	taskH       *handler.TaskHandler
	childH      *handler.ChildHandler
	authH       *handler.AuthHandler
	settingsH   *handler.SettingsHandler
	snapshotH   *handler.SnapshotHandler
	pushH       *handler.PushHandler
	rateLimiter *middleware.RateLimiter
	snapshotMgr *snapshot.Manager
	logger      *slog.Logger
}

func New(db *sql.DB, snapshotCfg snapshot.Config, pushCfg push.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	taskStore := store.NewTaskStore(db)
	childStore := store.NewChildStore(db)
	settingsStore := store.NewSettingsStore(db)
	snapshotStore := store.NewSnapshotStore(db)
	pushStore := store.NewPushStore(db)

	// S3 settings live in the database; seed the manager with whatever
	// is stored, env config wins for path and passphrase.
	if s3, err := settingsStore.GetS3Settings(); err == nil && snapshotCfg.S3.Bucket == "" {
		snapshotCfg.S3 = snapshot.S3Config{
			Endpoint:  s3["s3_endpoint"],
			Bucket:    s3["s3_bucket"],
			Region:    s3["s3_region"],
			AccessKey: s3["s3_access_key"],
			SecretKey: s3["s3_secret_key"],
		}
	}
	snapshotMgr := snapshot.NewManager(snapshotCfg, db, snapshotStore, settingsStore, logger)

	var pushSvc *push.Service
	var notifier *push.Notifier
	var pushH *handler.PushHandler
	if pushCfg.VAPIDPublicKey != "" && pushCfg.VAPIDPrivateKey != "" {
		pushSvc = push.NewService(pushCfg.VAPIDPublicKey, pushCfg.VAPIDPrivateKey)
		notifier = push.NewNotifier(pushSvc, pushStore, logger)
		pushH = handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push_handler"))
	}

	return &Server{
		db:          db,
		hub:         hub,
		taskH:       handler.NewTaskHandler(taskStore, childStore, hub, notifier, logger.With("component", "task")),
		childH:      handler.NewChildHandler(childStore, hub, logger.With("component", "child")),
		authH:       handler.NewAuthHandler(childStore, logger.With("component", "auth")),
		settingsH:   handler.NewSettingsHandler(settingsStore, hub),
		snapshotH:   handler.NewSnapshotHandler(snapshotMgr, snapshotStore, settingsStore, logger.With("component", "snapshot")),
		pushH:       pushH,
		rateLimiter: middleware.NewRateLimiter(),
		snapshotMgr: snapshotMgr,
		logger:      logger,
	}
}

// SnapshotManager returns the snapshot manager so main can start and
// stop its schedule loop.
func (s *Server) SnapshotManager() *snapshot.Manager {
	return s.snapshotMgr
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	// Task lifecycle
	mux.HandleFunc("POST /api/tasks", s.taskH.Create)
	mux.HandleFunc("GET /api/tasks", s.taskH.List)
	mux.HandleFunc("GET /api/tasks/{id}", s.taskH.Get)
	mux.HandleFunc("PATCH /api/tasks/{id}", s.taskH.Update)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.taskH.Delete)
	mux.HandleFunc("POST /api/tasks/{id}/complete", s.taskH.Complete)
	mux.HandleFunc("POST /api/tasks/{id}/validate", s.taskH.Validate)

	// Clarification thread
	mux.HandleFunc("POST /api/tasks/{id}/clarify", s.taskH.Clarify)
	mux.HandleFunc("POST /api/tasks/{id}/messages", s.taskH.PostMessage)
	mux.HandleFunc("GET /api/tasks/{id}/messages", s.taskH.ListMessages)

	// Children and their ledgers
	mux.HandleFunc("POST /api/children", s.childH.Create)
	mux.HandleFunc("GET /api/children", s.childH.List)
	mux.HandleFunc("GET /api/children/{id}", s.childH.Get)
	mux.HandleFunc("PATCH /api/children/{id}", s.childH.Update)
	mux.HandleFunc("DELETE /api/children/{id}", s.childH.Delete)
	mux.HandleFunc("POST /api/children/{id}/grant", s.childH.Grant)
	mux.HandleFunc("POST /api/children/{id}/deduct", s.childH.Deduct)
	mux.HandleFunc("GET /api/children/{id}/inventory", s.childH.Inventory)
	mux.HandleFunc("POST /api/children/{id}/inventory/{index}/redeem", s.childH.Redeem)

	// Parent PIN
	mux.HandleFunc("GET /api/auth/pin", s.authH.Status)
	mux.HandleFunc("POST /api/auth/pin", s.authH.Set)
	mux.HandleFunc("POST /api/auth/pin/verify", s.rateLimitedHandler(s.authH.Verify))
	mux.HandleFunc("DELETE /api/auth/pin", s.authH.Clear)

	// Settings
	mux.HandleFunc("GET /api/settings", s.settingsH.Get)
	mux.HandleFunc("PUT /api/settings", s.settingsH.Update)

	// Snapshots
	mux.HandleFunc("GET /api/snapshots", s.snapshotH.List)
	mux.HandleFunc("POST /api/snapshots", s.snapshotH.Export)
	mux.HandleFunc("POST /api/snapshots/{id}/restore", s.snapshotH.Restore)
	mux.HandleFunc("GET /api/settings/snapshots", s.snapshotH.GetSettings)
	mux.HandleFunc("PUT /api/settings/snapshots", s.snapshotH.UpdateSettings)

	// Push notifications
	if s.pushH != nil {
		mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
		mux.HandleFunc("POST /api/push/unsubscribe", s.pushH.UnsubscribeEndpoint)
		mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
	}

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
