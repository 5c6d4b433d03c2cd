// Package snapshot implements the full-state persistence boundary:
// exporting the whole database as one encrypted blob and replacing the
// whole database from a previously exported blob. Exports are uploaded
// to S3-compatible storage and pruned on a retention schedule.
package snapshot

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/mvaldes/chorebank/internal/model"
	"github.com/mvaldes/chorebank/internal/store"
)

// s3Client is the subset of the S3 API the manager uses. Tests swap in
// an in-memory implementation.
type s3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds the remote storage connection settings.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

func (c S3Config) valid() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// Config holds everything the manager needs besides the stores.
type Config struct {
	DBPath     string
	Passphrase string
	S3         S3Config
}

// Manager coordinates scheduled and on-demand state exports.
type Manager struct {
	mu         sync.Mutex
	cfg        Config
	db         *sql.DB
	snapshots  *store.SnapshotStore
	settings   *store.SettingsStore
	client     s3Client
	logger     *slog.Logger
	stop       chan struct{}
	done       chan struct{}
	lastExport time.Time
}

func NewManager(cfg Config, db *sql.DB, snapshots *store.SnapshotStore, settings *store.SettingsStore, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		db:        db,
		snapshots: snapshots,
		settings:  settings,
		logger:    logger.With("component", "snapshot"),
	}
}

// UpdateS3Config replaces the remote storage settings and drops the
// cached client so the next operation reconnects.
func (m *Manager) UpdateS3Config(cfg S3Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.S3 = cfg
	m.client = nil
}

func (m *Manager) s3() (s3Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		return m.client, nil
	}
	if !m.cfg.S3.valid() {
		return nil, fmt.Errorf("s3 storage not configured")
	}

	opts := s3.Options{
		Region:       m.cfg.S3.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(m.cfg.S3.AccessKey, m.cfg.S3.SecretKey, ""),
		UsePathStyle: true,
	}
	if m.cfg.S3.Endpoint != "" {
		opts.BaseEndpoint = aws.String(m.cfg.S3.Endpoint)
	}
	m.client = s3.New(opts)
	return m.client, nil
}

// Start runs the scheduler until Stop is called. Once a minute it
// checks whether a scheduled export is due according to the persisted
// snapshot settings.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.stop != nil {
		m.mu.Unlock()
		return
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	stop, done := m.stop, m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.runScheduled()
			}
		}
	}()
	m.logger.Info("snapshot scheduler started")
}

func (m *Manager) Stop() {
	m.mu.Lock()
	stop, done := m.stop, m.done
	m.stop, m.done = nil, nil
	m.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
	m.logger.Info("snapshot scheduler stopped")
}

func (m *Manager) runScheduled() {
	settings, err := m.settings.GetSnapshotSettings()
	if err != nil {
		m.logger.Error("read snapshot settings", "error", err)
		return
	}
	if settings["snapshot_enabled"] != "true" {
		return
	}

	hour, err := strconv.Atoi(settings["snapshot_schedule_hour"])
	if err != nil {
		hour = 3
	}

	now := time.Now()
	if now.Hour() != hour {
		return
	}
	m.mu.Lock()
	alreadyRan := m.lastExport.Year() == now.Year() && m.lastExport.YearDay() == now.YearDay()
	m.mu.Unlock()
	if alreadyRan {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if _, err := m.ExportNow(ctx); err != nil {
		m.logger.Error("scheduled export failed", "error", err)
		return
	}

	if days, err := strconv.Atoi(settings["snapshot_retention_days"]); err == nil && days > 0 {
		if err := m.Cleanup(ctx, days); err != nil {
			m.logger.Error("snapshot cleanup failed", "error", err)
		}
	}
}

// ExportNow captures the complete application state as one encrypted
// blob and uploads it. The database stays live; a WAL checkpoint first
// folds pending writes into the main file so the copy is consistent.
func (m *Manager) ExportNow(ctx context.Context) (*model.SnapshotRecord, error) {
	if m.cfg.Passphrase == "" {
		return nil, fmt.Errorf("snapshot passphrase not configured")
	}

	client, err := m.s3()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	filename := fmt.Sprintf("chorebank-%s.db.enc", now.Format("20060102-150405"))
	s3Key := "snapshots/" + filename

	record, err := m.snapshots.Create(filename, s3Key)
	if err != nil {
		return nil, err
	}

	fail := func(stage string, cause error) (*model.SnapshotRecord, error) {
		err := fmt.Errorf("%s: %w", stage, cause)
		if uerr := m.snapshots.UpdateStatus(record.ID, model.SnapshotStatusFailed, err.Error()); uerr != nil {
			m.logger.Error("record snapshot failure", "error", uerr)
		}
		return nil, err
	}

	if _, err := m.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fail("wal checkpoint", err)
	}

	plaintext, err := os.ReadFile(m.cfg.DBPath)
	if err != nil {
		return fail("read database", err)
	}

	salt, err := m.salt()
	if err != nil {
		return fail("snapshot salt", err)
	}

	blob, err := Encrypt(plaintext, m.cfg.Passphrase, salt)
	if err != nil {
		return fail("encrypt", err)
	}

	if err := m.snapshots.UpdateStatus(record.ID, model.SnapshotStatusUploading, ""); err != nil {
		m.logger.Error("update snapshot status", "error", err)
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.S3.Bucket),
		Key:           aws.String(s3Key),
		Body:          bytes.NewReader(blob),
		ContentLength: aws.Int64(int64(len(blob))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return fail("upload", err)
	}

	if err := m.snapshots.SetSize(record.ID, int64(len(blob))); err != nil {
		m.logger.Error("record snapshot size", "error", err)
	}
	if err := m.snapshots.UpdateStatus(record.ID, model.SnapshotStatusDone, ""); err != nil {
		m.logger.Error("update snapshot status", "error", err)
	}

	m.mu.Lock()
	m.lastExport = time.Now()
	m.mu.Unlock()

	m.logger.Info("state exported", "key", s3Key, "bytes", len(blob))
	return m.snapshots.GetByID(record.ID)
}

// salt returns the persisted export salt, generating and storing one
// on first use so all exports of this household share it.
func (m *Manager) salt() ([]byte, error) {
	settings, err := m.settings.GetSnapshotSettings()
	if err != nil {
		return nil, err
	}
	if hexSalt, ok := settings["snapshot_passphrase_salt"]; ok && hexSalt != "" {
		return decodeHex(hexSalt)
	}
	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}
	if err := m.settings.Set("snapshot_passphrase_salt", encodeHex(salt)); err != nil {
		return nil, err
	}
	return salt, nil
}

// Restore replaces the whole application state with a prior export.
// On success the process exits so the supervisor restarts it against
// the replaced database file.
func (m *Manager) Restore(ctx context.Context, id int64) error {
	if m.cfg.Passphrase == "" {
		return fmt.Errorf("snapshot passphrase not configured")
	}

	record, err := m.snapshots.GetByID(id)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("snapshot %d not found", id)
	}

	client, err := m.s3()
	if err != nil {
		return err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Key:    aws.String(record.S3Key),
	})
	if err != nil {
		return fmt.Errorf("download snapshot: %w", err)
	}
	defer out.Body.Close()

	blob, err := io.ReadAll(out.Body)
	if err != nil {
		return fmt.Errorf("read snapshot body: %w", err)
	}

	plaintext, err := Decrypt(blob, m.cfg.Passphrase)
	if err != nil {
		return err
	}

	tmpPath := filepath.Join(filepath.Dir(m.cfg.DBPath), ".restore-"+record.Filename)
	if err := os.WriteFile(tmpPath, plaintext, 0600); err != nil {
		return fmt.Errorf("write restore file: %w", err)
	}
	defer os.Remove(tmpPath)

	if err := verifyIntegrity(tmpPath); err != nil {
		return err
	}

	m.logger.Info("replacing state", "snapshot", record.Filename)

	if err := m.db.Close(); err != nil {
		m.logger.Error("close database before restore", "error", err)
	}
	if err := os.Rename(tmpPath, m.cfg.DBPath); err != nil {
		return fmt.Errorf("replace database: %w", err)
	}
	os.Remove(m.cfg.DBPath + "-wal")
	os.Remove(m.cfg.DBPath + "-shm")

	m.logger.Info("state restored, exiting for restart")
	os.Exit(0)
	return nil
}

// Cleanup deletes exports past the retention window, locally and
// remotely.
func (m *Manager) Cleanup(ctx context.Context, retentionDays int) error {
	expired, err := m.snapshots.DeleteOlderThan(retentionDays)
	if err != nil {
		return err
	}
	if len(expired) == 0 {
		return nil
	}

	client, err := m.s3()
	if err != nil {
		return err
	}

	for _, r := range expired {
		_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.S3.Bucket),
			Key:    aws.String(r.S3Key),
		})
		if err != nil {
			m.logger.Error("delete remote snapshot", "key", r.S3Key, "error", err)
			continue
		}
		m.logger.Info("expired snapshot removed", "key", r.S3Key)
	}
	return nil
}

func verifyIntegrity(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open restore file: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow(`PRAGMA integrity_check`).Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

func encodeHex(b []byte) string {
	return hex.EncodeToString(b)
}

func decodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	return b, nil
}
