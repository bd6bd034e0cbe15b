// Package storage реализует долговечное key-value хранилище на PostgreSQL.
// Значения хранятся в JSONB, срок жизни задаётся колонкой expires_at;
// истёкшие записи считаются отсутствующими и удаляются при чтении.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/magabrotheeeer/scan-gate/internal/cache"
)

// Storage инкапсулирует соединение с PostgreSQL и реализует cache.Store.
type Storage struct {
	DB  *sql.DB
	now func() time.Time
}

// New создаёт подключение к PostgreSQL. Схему создаёт migrations.Run.
func New(ctx context.Context, storageConnectionString string) (*Storage, error) {
	const op = "storage.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w: %w", op, cache.ErrStoreUnavailable, err)
	}

	return &Storage{
		DB:  db,
		now: time.Now,
	}, nil
}

// Get читает значение по ключу.
func (s *Storage) Get(ctx context.Context, key string, result any) (bool, error) {
	const op = "storage.Get"

	var (
		raw       []byte
		expiresAt sql.NullTime
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv_entries WHERE key = $1`, key,
	).Scan(&raw, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w: %w", op, cache.ErrStoreUnavailable, err)
	}

	if expiresAt.Valid && !s.now().Before(expiresAt.Time) {
		if _, err := s.DB.ExecContext(ctx,
			`DELETE FROM kv_entries WHERE key = $1 AND expires_at <= $2`, key, s.now(),
		); err != nil {
			return false, fmt.Errorf("%s: %w: %w", op, cache.ErrStoreUnavailable, err)
		}
		return false, nil
	}

	if err := json.Unmarshal(raw, result); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// Set сохраняет значение, перезаписывая существующее.
func (s *Storage) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	const op = "storage.Set"

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: s.now().Add(ttl), Valid: true}
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, expires_at, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = now()`,
		key, string(data), expiresAt,
	)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, cache.ErrStoreUnavailable, err)
	}
	return nil
}

// Delete удаляет ключ.
func (s *Storage) Delete(ctx context.Context, key string) error {
	const op = "storage.Delete"
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("%s: %w: %w", op, cache.ErrStoreUnavailable, err)
	}
	return nil
}

// PurgeExpired удаляет все истёкшие записи и возвращает их количество.
func (s *Storage) PurgeExpired(ctx context.Context) (int64, error) {
	const op = "storage.PurgeExpired"
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= $1`, s.now(),
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %w", op, cache.ErrStoreUnavailable, err)
	}
	return res.RowsAffected()
}

// Ping проверяет доступность базы.
func (s *Storage) Ping(ctx context.Context) error {
	if err := s.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("storage.Ping: %w: %w", cache.ErrStoreUnavailable, err)
	}
	return nil
}

// Close закрывает пул соединений.
func (s *Storage) Close() error {
	return s.DB.Close()
}
