package postgres

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/safety-beacon/internal/errs"
	"github.com/and161185/safety-beacon/internal/model"
	"github.com/and161185/safety-beacon/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// BookmarkRepo implements BookmarkRepository using PostgreSQL.
type BookmarkRepo struct{ db *DB }

// NewBookmarkRepo constructs a bookmark repository.
func NewBookmarkRepo(db *DB) *BookmarkRepo { return &BookmarkRepo{db: db} }

const bookmarkCols = `id, patient_id, name, address,
lat IS NOT NULL AND lng IS NOT NULL, COALESCE(lat, 0), COALESCE(lng, 0),
updated_at`

// Find selects bookmarks by patient and optional name/address equality.
func (r *BookmarkRepo) Find(ctx context.Context, bq repository.BookmarkQuery) ([]model.Bookmark, error) {
	var (
		where = []string{"patient_id=$1"}
		args  = []any{bq.PatientID}
	)
	add := func(col string, v *string) {
		if v == nil {
			return
		}
		args = append(args, *v)
		where = append(where, col+"=$"+strconv.Itoa(len(args)))
	}
	add("name", bq.Name)
	add("address", bq.Address)

	q := `SELECT ` + bookmarkCols + ` FROM bookmarks WHERE ` + strings.Join(where, " AND ") + ` ORDER BY name, id`
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Bookmark
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Get selects a single bookmark.
func (r *BookmarkRepo) Get(ctx context.Context, id uuid.UUID) (*model.Bookmark, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+bookmarkCols+` FROM bookmarks WHERE id=$1`, id)
	b, err := scanBookmark(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

// Create inserts a bookmark row.
func (r *BookmarkRepo) Create(ctx context.Context, b *model.Bookmark) error {
	const q = `
INSERT INTO bookmarks (id, patient_id, name, address, lat, lng)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING updated_at`
	lat, lng := coordArgs(b.Coordinate)
	err := r.db.Pool.QueryRow(ctx, q, b.ID, b.Patient.ID, b.Name, b.Address, lat, lng).Scan(&b.UpdatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// Update overwrites the mutable columns of a bookmark.
func (r *BookmarkRepo) Update(ctx context.Context, b *model.Bookmark) error {
	const q = `
UPDATE bookmarks
SET name=$2, address=$3, lat=$4, lng=$5, updated_at=now()
WHERE id=$1
RETURNING updated_at`
	lat, lng := coordArgs(b.Coordinate)
	if err := r.db.Pool.QueryRow(ctx, q, b.ID, b.Name, b.Address, lat, lng).Scan(&b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		return err
	}
	return nil
}

// Delete removes a bookmark row.
func (r *BookmarkRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM bookmarks WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func scanBookmark(row pgx.Row) (model.Bookmark, error) {
	var (
		b        model.Bookmark
		patient  uuid.UUID
		hasCoord bool
		lat, lng float64
		ts       time.Time
	)
	if err := row.Scan(&b.ID, &patient, &b.Name, &b.Address, &hasCoord, &lat, &lng, &ts); err != nil {
		return model.Bookmark{}, err
	}
	b.Patient = model.AccountRef{ID: patient}
	b.UpdatedAt = ts
	if hasCoord {
		b.Coordinate = &model.Coordinate{Latitude: lat, Longitude: lng}
	}
	return b, nil
}

func coordArgs(c *model.Coordinate) (lat, lng any) {
	if c == nil {
		return nil, nil
	}
	return c.Latitude, c.Longitude
}
