// Package state persists the agent's small key/value state: the API token
// and the preview window geometry.
package state

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/qiaofuyo/video-slice/internal/window"
)

const KeyAuthToken = "auth_token"

type Repository interface {
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetConfig returns "" for a missing key.
func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')
	`, key, value)
	return err
}

// EnsureAuthToken returns the stored API token, generating one on first run.
func EnsureAuthToken(ctx context.Context, repo Repository) (string, error) {
	existing, err := repo.GetConfig(ctx, KeyAuthToken)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, KeyAuthToken, token); err != nil {
		return "", err
	}
	return token, nil
}

// GeometryStore keeps window geometry as JSON under window.StorageKey.
type GeometryStore struct {
	repo Repository
}

func NewGeometryStore(repo Repository) *GeometryStore {
	return &GeometryStore{repo: repo}
}

func (s *GeometryStore) LoadGeometry(ctx context.Context) (window.Geometry, bool, error) {
	raw, err := s.repo.GetConfig(ctx, window.StorageKey)
	if err != nil {
		return window.Geometry{}, false, fmt.Errorf("failed to load geometry: %w", err)
	}
	if raw == "" {
		return window.Geometry{}, false, nil
	}
	var g window.Geometry
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return window.Geometry{}, false, fmt.Errorf("failed to decode geometry: %w", err)
	}
	if g.IsZero() {
		return window.Geometry{}, false, nil
	}
	return g, true, nil
}

func (s *GeometryStore) SaveGeometry(ctx context.Context, g window.Geometry) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to encode geometry: %w", err)
	}
	if err := s.repo.SetConfig(ctx, window.StorageKey, string(raw)); err != nil {
		return fmt.Errorf("failed to save geometry: %w", err)
	}
	return nil
}
