package store

import (
	"database/sql"
	"fmt"

	"github.com/mvaldes/chorebank/internal/model"
)

type SnapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

const snapshotCols = `id, filename, s3_key, size_bytes, status, error, created_at`

func scanSnapshot(scanner rowScanner) (*model.SnapshotRecord, error) {
	var r model.SnapshotRecord
	err := scanner.Scan(&r.ID, &r.Filename, &r.S3Key, &r.SizeBytes, &r.Status, &r.Error, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SnapshotStore) Create(filename, s3Key string) (*model.SnapshotRecord, error) {
	result, err := s.db.Exec(
		`INSERT INTO snapshots (filename, s3_key) VALUES (?, ?)`,
		filename, s3Key,
	)
	if err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *SnapshotStore) GetByID(id int64) (*model.SnapshotRecord, error) {
	row := s.db.QueryRow(`SELECT `+snapshotCols+` FROM snapshots WHERE id = ?`, id)
	r, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return r, nil
}

func (s *SnapshotStore) List() ([]model.SnapshotRecord, error) {
	rows, err := s.db.Query(`SELECT ` + snapshotCols + ` FROM snapshots ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var records []model.SnapshotRecord
	for rows.Next() {
		r, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

func (s *SnapshotStore) UpdateStatus(id int64, status model.SnapshotStatus, errMsg string) error {
	_, err := s.db.Exec(
		`UPDATE snapshots SET status = ?, error = ? WHERE id = ?`,
		status, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("update snapshot status: %w", err)
	}
	return nil
}

func (s *SnapshotStore) SetSize(id int64, size int64) error {
	_, err := s.db.Exec(`UPDATE snapshots SET size_bytes = ? WHERE id = ?`, size, id)
	if err != nil {
		return fmt.Errorf("set snapshot size: %w", err)
	}
	return nil
}

// DeleteOlderThan removes records for snapshots past the retention
// window and returns the deleted rows so the caller can remove the
// remote objects.
func (s *SnapshotStore) DeleteOlderThan(days int) ([]model.SnapshotRecord, error) {
	rows, err := s.db.Query(
		`SELECT `+snapshotCols+` FROM snapshots WHERE created_at < datetime('now', ?)`,
		fmt.Sprintf("-%d days", days),
	)
	if err != nil {
		return nil, fmt.Errorf("list expired snapshots: %w", err)
	}
	defer rows.Close()

	var expired []model.SnapshotRecord
	for rows.Next() {
		r, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		expired = append(expired, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, r := range expired {
		if _, err := s.db.Exec(`DELETE FROM snapshots WHERE id = ?`, r.ID); err != nil {
			return nil, fmt.Errorf("delete snapshot %d: %w", r.ID, err)
		}
	}
	return expired, nil
}
