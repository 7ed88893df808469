package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

type Subject struct {
	ID     int64  `json:"sid"`
	Name   string `json:"name"`
	Age    int    `json:"age"`
	Gender string `json:"gender"`
}

const (
	ExperimentSingle = "single"
	ExperimentGroup  = "group"
)

type Experiment struct {
	ID          int64      `json:"eid"`
	SubjectID   int64      `json:"sid"`
	SubjectName string     `json:"subject_name"`
	Type        string     `json:"type"`
	TotalScore  *float64   `json:"total_score"`
	RunID       string     `json:"run_id"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at"`
}

// VideoScore is one finalized segment of an experiment.
type VideoScore struct {
	ID       int64   `json:"id"`
	VideoID  string  `json:"vid"`
	Position int     `json:"position"`
	Score    float64 `json:"score"`
	Samples  int     `json:"samples"`
}

func (s *Store) GetOrCreateSubject(ctx context.Context, name string, age int, gender string) (Subject, error) {
	sub := Subject{Name: name, Age: age, Gender: gender}
	if name == "" {
		return sub, errors.New("subject name is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subject (name, age, gender) VALUES (?, ?, ?) ON CONFLICT(name, age, gender) DO NOTHING`,
		name, age, gender)
	if err != nil {
		return sub, fmt.Errorf("insert subject: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT sid FROM subject WHERE name = ? AND age = ? AND gender = ?`, name, age, gender).Scan(&sub.ID)
	if err != nil {
		return sub, fmt.Errorf("lookup subject: %w", err)
	}
	return sub, nil
}

func (s *Store) CreateExperiment(ctx context.Context, subjectID int64, typ, runID string, startedAt time.Time) (Experiment, error) {
	if typ == "" {
		typ = ExperimentSingle
	}
	if typ != ExperimentSingle && typ != ExperimentGroup {
		return Experiment{}, fmt.Errorf("invalid experiment type %q", typ)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO experiment (sid, type, run_id, started_at) VALUES (?, ?, ?, ?)`,
		subjectID, typ, runID, startedAt.UnixMilli())
	if err != nil {
		return Experiment{}, fmt.Errorf("insert experiment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Experiment{}, err
	}
	s.log.WithFields(logrus.Fields{"experiment_id": id, "run_id": runID}).Info("experiment created")
	return Experiment{
		ID:        id,
		SubjectID: subjectID,
		Type:      typ,
		RunID:     runID,
		StartedAt: time.UnixMilli(startedAt.UnixMilli()),
	}, nil
}

// SaveVideoScore records one finalized segment. A video that appears twice
// in a session is stored as two rows.
func (s *Store) SaveVideoScore(ctx context.Context, eid int64, vid string, position int, score float64, samples int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO experiment_video (eid, vid, position, score, samples) VALUES (?, ?, ?, ?, ?)`,
		eid, vid, position, score, samples)
	if err != nil {
		return fmt.Errorf("save score for %s in experiment %d: %w", vid, eid, err)
	}
	return nil
}

// FinalizeExperiment sets the total score and finish time. It succeeds only
// once per experiment.
func (s *Store) FinalizeExperiment(ctx context.Context, eid int64, total float64, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE experiment SET total_score = ?, finished_at = ? WHERE eid = ? AND finished_at IS NULL`,
		total, finishedAt.UnixMilli(), eid)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := s.GetExperiment(ctx, eid); err != nil {
		return err
	}
	return fmt.Errorf("experiment %d: %w", eid, ErrAlreadyFinalized)
}

const experimentColumns = `
	SELECT e.eid, e.sid, s.name, e.type, e.total_score, e.run_id, e.started_at, e.finished_at
	FROM experiment e JOIN subject s ON s.sid = e.sid`

type scanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row scanner) (Experiment, error) {
	var (
		e        Experiment
		total    sql.NullFloat64
		started  int64
		finished sql.NullInt64
	)
	if err := row.Scan(&e.ID, &e.SubjectID, &e.SubjectName, &e.Type, &total, &e.RunID, &started, &finished); err != nil {
		return e, err
	}
	e.StartedAt = time.UnixMilli(started)
	if total.Valid {
		v := total.Float64
		e.TotalScore = &v
	}
	if finished.Valid {
		t := time.UnixMilli(finished.Int64)
		e.FinishedAt = &t
	}
	return e, nil
}

func (s *Store) GetExperiment(ctx context.Context, eid int64) (Experiment, error) {
	e, err := scanExperiment(s.db.QueryRowContext(ctx, experimentColumns+` WHERE e.eid = ?`, eid))
	if errors.Is(err, sql.ErrNoRows) {
		return e, fmt.Errorf("experiment %d: %w", eid, ErrNotFound)
	}
	return e, err
}

// ListExperiments returns every experiment, newest first.
func (s *Store) ListExperiments(ctx context.Context) ([]Experiment, error) {
	rows, err := s.db.QueryContext(ctx, experimentColumns+` ORDER BY e.eid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Experiment
	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ExperimentVideos returns the segments of one experiment in playback order.
func (s *Store) ExperimentVideos(ctx context.Context, eid int64) ([]VideoScore, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vid, position, score, samples FROM experiment_video WHERE eid = ? ORDER BY position, id`, eid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VideoScore
	for rows.Next() {
		var v VideoScore
		if err := rows.Scan(&v.ID, &v.VideoID, &v.Position, &v.Score, &v.Samples); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
