package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/mediahub/pkg/media"
)

const mediaColumns = `team_id, media_id, sk, object_key, thumb_key, filename, content_type, size_bytes,
	album_name, uploader_user_id, created_at`

func scanMedia(row scanner) (*media.Record, error) {
	var r media.Record
	err := row.Scan(&r.TeamID, &r.MediaID, &r.SortKey, &r.ObjectKey, &r.ThumbKey, &r.Filename,
		&r.ContentType, &r.SizeBytes, &r.AlbumName, &r.UploaderID, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) PutMedia(ctx context.Context, r *media.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO media (`+mediaColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (team_id, media_id) DO UPDATE SET
			thumb_key = EXCLUDED.thumb_key, album_name = EXCLUDED.album_name`,
		r.TeamID, r.MediaID, r.SortKey, r.ObjectKey, r.ThumbKey, r.Filename,
		r.ContentType, r.SizeBytes, r.AlbumName, r.UploaderID, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to put media: %w", err)
	}
	return nil
}

func (s *Store) GetMedia(ctx context.Context, teamID, mediaID string) (*media.Record, error) {
	r, err := scanMedia(s.db.QueryRowContext(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE team_id = $1 AND media_id = $2`, teamID, mediaID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, media.ErrMediaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get media: %w", err)
	}
	return r, nil
}

func (s *Store) DeleteMedia(ctx context.Context, teamID, mediaID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM media WHERE team_id = $1 AND media_id = $2`, teamID, mediaID)
	if err != nil {
		return fmt.Errorf("failed to delete media: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return media.ErrMediaNotFound
	}
	return nil
}

func (s *Store) ListMedia(ctx context.Context, teamID string, limit int, cursor string) ([]*media.Record, error) {
	rows, err := s.reader().QueryContext(ctx, `
		SELECT `+mediaColumns+` FROM media
		WHERE team_id = $1 AND ($2 = '' OR sk < $2)
		ORDER BY sk DESC
		LIMIT $3`, teamID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list media: %w", err)
	}
	defer rows.Close()

	var out []*media.Record
	for rows.Next() {
		r, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SumSizeBytes reads the primary; the repairer must not see replica lag
func (s *Store) SumSizeBytes(ctx context.Context, teamID string) (int, int64, error) {
	var (
		items int
		total int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM media WHERE team_id = $1`, teamID).Scan(&items, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sum media sizes: %w", err)
	}
	return items, total, nil
}
