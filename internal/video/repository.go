package video

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ariesai/studio-agent/internal/db"
)

// ErrNotFound is returned when a video id has no row.
var ErrNotFound = errors.New("video not found")

// Repository persists video items. Items are ordered newest-first; Insert
// places the item at the head of the list, Replace swaps an item for a new
// one without moving it.
type Repository interface {
	Insert(ctx context.Context, item *Item) error
	Get(ctx context.Context, id string) (*Item, error)
	List(ctx context.Context) ([]*Item, error)
	ListByUser(ctx context.Context, userID string) ([]*Item, error)
	ListPollable(ctx context.Context) ([]*Item, error)
	Update(ctx context.Context, item *Item) error
	Replace(ctx context.Context, oldID string, item *Item) error
	Delete(ctx context.Context, id string) error
	MarkDownloaded(ctx context.Context, id string) error
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

// SQLiteRepository implements Repository backed by the agent database.
type SQLiteRepository struct {
	db *db.DB
}

func NewSQLiteRepository(database *db.DB) *SQLiteRepository {
	return &SQLiteRepository{db: database}
}

const videoColumns = `id, status, title, prompt, model, size, seconds,
	remix_video_id, retry_of, created_at, completed_at, progress,
	download_url, thumbnail_url, downloaded, image_input_required, error,
	user_id`

func (r *SQLiteRepository) Insert(ctx context.Context, item *Item) error {
	errJSON, err := marshalError(item.Error)
	if err != nil {
		return err
	}

	// New items go to the head of the list, above everything inserted
	// before them.
	_, err = r.db.Conn().ExecContext(ctx, `
		INSERT INTO videos (`+videoColumns+`, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			COALESCE((SELECT MAX(position) + 1 FROM videos), 0))
	`,
		item.ID, item.Status, item.Title, item.Prompt, item.Model,
		item.Size, item.Seconds,
		nullString(item.RemixVideoID), nullString(item.RetryOf),
		nullString(item.CreatedAt),
		nullString(item.CompletedAt), nullFloat(item.Progress),
		nullString(item.DownloadURL), nullString(item.ThumbnailURL),
		boolToInt(item.Downloaded), boolToInt(item.ImageInputRequired),
		errJSON, nullString(item.UserID),
	)
	if err != nil {
		return fmt.Errorf("failed to insert video: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Item, error) {
	row := r.db.Conn().QueryRowContext(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	return item, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*Item, error) {
	return r.list(ctx,
		`SELECT `+videoColumns+` FROM videos ORDER BY position DESC`)
}

func (r *SQLiteRepository) ListByUser(ctx context.Context, userID string) ([]*Item, error) {
	return r.list(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE user_id = ? ORDER BY position DESC`,
		userID)
}

func (r *SQLiteRepository) ListPollable(ctx context.Context) ([]*Item, error) {
	return r.list(ctx, `
		SELECT `+videoColumns+` FROM videos
		WHERE LOWER(status) IN ('queued', 'in_progress')
		ORDER BY position DESC`)
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]*Item, error) {
	rows, err := r.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *SQLiteRepository) Update(ctx context.Context, item *Item) error {
	errJSON, err := marshalError(item.Error)
	if err != nil {
		return err
	}

	result, err := r.db.Conn().ExecContext(ctx, `
		UPDATE videos SET
			status = ?, title = ?, prompt = ?, model = ?, size = ?,
			seconds = ?, remix_video_id = ?, retry_of = ?, created_at = ?,
			completed_at = ?, progress = ?, download_url = ?,
			thumbnail_url = ?, downloaded = ?, image_input_required = ?,
			error = ?, user_id = ?
		WHERE id = ?`,
		item.Status, item.Title, item.Prompt, item.Model, item.Size,
		item.Seconds,
		nullString(item.RemixVideoID), nullString(item.RetryOf),
		nullString(item.CreatedAt),
		nullString(item.CompletedAt), nullFloat(item.Progress),
		nullString(item.DownloadURL), nullString(item.ThumbnailURL),
		boolToInt(item.Downloaded), boolToInt(item.ImageInputRequired),
		errJSON, nullString(item.UserID),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update video: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Replace swaps the row identified by oldID for a new item while keeping its
// place in the list. If oldID no longer exists the item is inserted at the
// head instead.
func (r *SQLiteRepository) Replace(ctx context.Context, oldID string, item *Item) error {
	errJSON, err := marshalError(item.Error)
	if err != nil {
		return err
	}

	result, err := r.db.Conn().ExecContext(ctx, `
		UPDATE videos SET
			id = ?, status = ?, title = ?, prompt = ?, model = ?,
			size = ?, seconds = ?, remix_video_id = ?, retry_of = ?,
			created_at = ?, completed_at = ?, progress = ?,
			download_url = ?, thumbnail_url = ?, downloaded = ?,
			image_input_required = ?, error = ?, user_id = ?
		WHERE id = ?`,
		item.ID, item.Status, item.Title, item.Prompt, item.Model,
		item.Size, item.Seconds,
		nullString(item.RemixVideoID), nullString(item.RetryOf),
		nullString(item.CreatedAt),
		nullString(item.CompletedAt), nullFloat(item.Progress),
		nullString(item.DownloadURL), nullString(item.ThumbnailURL),
		boolToInt(item.Downloaded), boolToInt(item.ImageInputRequired),
		errJSON, nullString(item.UserID),
		oldID,
	)
	if err != nil {
		return fmt.Errorf("failed to replace video: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check replace result: %w", err)
	}
	if affected == 0 {
		return r.Insert(ctx, item)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Conn().ExecContext(ctx,
		`DELETE FROM videos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) MarkDownloaded(ctx context.Context, id string) error {
	result, err := r.db.Conn().ExecContext(ctx,
		`UPDATE videos SET downloaded = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark video downloaded: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.Conn().QueryRowContext(ctx,
		`SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get config %s: %w", key, err)
	}
	return value, nil
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to set config %s: %w", key, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var item Item
	var remixID, retryOf, createdAt, completedAt, downloadURL, thumbnailURL, errJSON, userID sql.NullString
	var progress sql.NullFloat64
	var downloaded, imageInput int

	err := row.Scan(
		&item.ID, &item.Status, &item.Title, &item.Prompt, &item.Model,
		&item.Size, &item.Seconds,
		&remixID, &retryOf, &createdAt, &completedAt, &progress,
		&downloadURL, &thumbnailURL, &downloaded, &imageInput,
		&errJSON, &userID,
	)
	if err != nil {
		return nil, err
	}

	item.RemixVideoID = remixID.String
	item.RetryOf = retryOf.String
	item.CreatedAt = createdAt.String
	item.CompletedAt = completedAt.String
	item.DownloadURL = downloadURL.String
	item.ThumbnailURL = thumbnailURL.String
	item.Downloaded = downloaded == 1
	item.ImageInputRequired = imageInput == 1
	item.UserID = userID.String
	if progress.Valid {
		p := progress.Float64
		item.Progress = &p
	}
	if errJSON.Valid && errJSON.String != "" {
		var v any
		if err := json.Unmarshal([]byte(errJSON.String), &v); err == nil {
			item.Error = v
		} else {
			item.Error = errJSON.String
		}
	}
	return &item, nil
}

func marshalError(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode video error: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
