package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	StatusNA       = "n/a"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

func validStatus(s string) bool {
	switch s {
	case StatusNA, StatusApproved, StatusRejected:
		return true
	}
	return false
}

type Video struct {
	ID         string        `yaml:"id" json:"id"`
	Link       string        `yaml:"link" json:"link"`
	Duration   time.Duration `yaml:"duration" json:"duration"`
	Status     string        `yaml:"status" json:"status"`
	Categories []string      `yaml:"categories" json:"categories,omitempty"`
}

// VideoIsKnownAndApproved reports whether id is in the catalog and may be
// scored.
func (s *Store) VideoIsKnownAndApproved(ctx context.Context, id string) (bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM video WHERE vid = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup video %s: %w", id, err)
	}
	if s.requireApproval {
		return status == StatusApproved, nil
	}
	return status != StatusRejected, nil
}

// SeedVideos inserts or updates the given videos and their categories in
// one transaction. It returns the number of videos written.
func (s *Store) SeedVideos(ctx context.Context, videos []Video) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	for _, v := range videos {
		if v.ID == "" {
			return 0, fmt.Errorf("seed: video with link %q has no id", v.Link)
		}
		status := v.Status
		if status == "" {
			status = StatusNA
		}
		if !validStatus(status) {
			return 0, fmt.Errorf("seed: video %s has invalid status %q", v.ID, status)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO video (vid, link, duration, status) VALUES (?, ?, ?, ?)
			ON CONFLICT(vid) DO UPDATE SET link = excluded.link, duration = excluded.duration, status = excluded.status`,
			v.ID, v.Link, v.Duration.Seconds(), status)
		if err != nil {
			return 0, fmt.Errorf("seed video %s: %w", v.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM video_category WHERE vid = ?`, v.ID); err != nil {
			return 0, err
		}
		for _, name := range v.Categories {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO category (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
				return 0, fmt.Errorf("seed category %s: %w", name, err)
			}
			_, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO video_category (vid, cid)
				SELECT ?, cid FROM category WHERE name = ?`, v.ID, name)
			if err != nil {
				return 0, fmt.Errorf("link %s to %s: %w", v.ID, name, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	s.log.WithField("videos", len(videos)).Info("video catalog seeded")
	return len(videos), nil
}

// ListVideos returns the catalog ordered by id. An empty status returns
// every video.
func (s *Store) ListVideos(ctx context.Context, status string) ([]Video, error) {
	q := `
		SELECT v.vid, v.link, v.duration, v.status, COALESCE(GROUP_CONCAT(c.name, ','), '')
		FROM video v
		LEFT JOIN video_category vc ON vc.vid = v.vid
		LEFT JOIN category c ON c.cid = vc.cid`
	var args []any
	if status != "" {
		q += ` WHERE v.status = ?`
		args = append(args, status)
	}
	q += ` GROUP BY v.vid ORDER BY v.vid`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Video
	for rows.Next() {
		var (
			v    Video
			secs float64
			cats string
		)
		if err := rows.Scan(&v.ID, &v.Link, &secs, &v.Status, &cats); err != nil {
			return nil, err
		}
		v.Duration = time.Duration(secs * float64(time.Second))
		if cats != "" {
			v.Categories = strings.Split(cats, ",")
			sort.Strings(v.Categories)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ScorableVideos returns the videos VideoIsKnownAndApproved would accept.
func (s *Store) ScorableVideos(ctx context.Context) ([]Video, error) {
	all, err := s.ListVideos(ctx, "")
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, v := range all {
		if v.Status == StatusRejected || (s.requireApproval && v.Status != StatusApproved) {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) SetVideoStatus(ctx context.Context, id, status string) error {
	if !validStatus(status) {
		return fmt.Errorf("invalid video status %q", status)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE video SET status = ? WHERE vid = ?`, status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	return nil
}
