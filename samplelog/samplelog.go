// Package samplelog writes and reads the human-readable per-sample log of a
// session.
package samplelog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	title        = "# Amusement Detection Log"
	startPrefix  = "# Session start: "
	runPrefix    = "# Run: "
	columns      = "# time, video_id, au25, au12, au6, audio, smile, laughter, amusement"
	startLayout  = "2006-01-02 15:04:05"
	recordLayout = "15:04:05.00"
	numFields    = 9
)

type Record struct {
	Time      time.Time `json:"time"`
	VideoID   string    `json:"video_id"`
	AU25      float64   `json:"au25"`
	AU12      float64   `json:"au12"`
	AU6       float64   `json:"au6"`
	Audio     float64   `json:"audio"`
	Smile     float64   `json:"smile"`
	Laughter  float64   `json:"laughter"`
	Amusement float64   `json:"amusement"`
}

// Writer appends records no more often than its interval.
type Writer struct {
	mu       sync.Mutex
	w        io.Writer
	closer   io.Closer
	interval time.Duration
	last     time.Time
	wrote    bool
}

// NewWriter writes the log header to w.
func NewWriter(w io.Writer, runID string, start time.Time, interval time.Duration) (*Writer, error) {
	header := fmt.Sprintf("%s\n%s%s\n%s%s\n%s\n",
		title, startPrefix, start.Local().Format(startLayout), runPrefix, runID, columns)
	if _, err := io.WriteString(w, header); err != nil {
		return nil, fmt.Errorf("write log header: %w", err)
	}
	return &Writer{w: w, interval: interval}, nil
}

// Create truncates or creates the file at path, making parent directories
// as needed.
func Create(path, runID string, start time.Time, interval time.Duration) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f, runID, start, interval)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// Write appends rec unless less than the interval has passed since the last
// written record. It reports whether the record was written.
func (w *Writer) Write(rec Record) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.wrote && rec.Time.Sub(w.last) < w.interval {
		return false, nil
	}
	line := fmt.Sprintf("%s, %s, %.3f, %.3f, %.3f, %.3f, %.3f, %.3f, %.3f\n",
		rec.Time.Local().Format(recordLayout), rec.VideoID,
		rec.AU25, rec.AU12, rec.AU6, rec.Audio, rec.Smile, rec.Laughter, rec.Amusement)
	if _, err := io.WriteString(w.w, line); err != nil {
		return false, err
	}
	w.last, w.wrote = rec.Time, true
	return true, nil
}

func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

type Log struct {
	RunID   string
	Start   time.Time
	Records []Record
}

// Parse reads a log written by Writer. Record times carry the session start
// date and roll over to the next day when the clock wraps past midnight.
func Parse(r io.Reader) (*Log, error) {
	out := &Log{}
	day := time.Time{}
	var prev time.Time

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, startPrefix):
			t, err := time.ParseInLocation(startLayout, strings.TrimPrefix(line, startPrefix), time.Local)
			if err != nil {
				return nil, fmt.Errorf("line %d: session start: %w", lineNo, err)
			}
			out.Start = t
			day = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
			continue
		case strings.HasPrefix(line, runPrefix):
			out.RunID = strings.TrimPrefix(line, runPrefix)
			continue
		case strings.HasPrefix(line, "#"):
			continue
		}

		rec, err := parseRecord(line, day)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if !prev.IsZero() && rec.Time.Before(prev) {
			day = day.AddDate(0, 0, 1)
			rec.Time = rec.Time.AddDate(0, 0, 1)
		}
		prev = rec.Time
		out.Records = append(out.Records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseRecord(line string, day time.Time) (Record, error) {
	fields := strings.Split(line, ",")
	if len(fields) != numFields {
		return Record{}, fmt.Errorf("expected %d fields, got %d", numFields, len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	clock, err := time.Parse(recordLayout, fields[0])
	if err != nil {
		return Record{}, fmt.Errorf("time: %w", err)
	}
	rec := Record{
		Time: time.Date(day.Year(), day.Month(), day.Day(),
			clock.Hour(), clock.Minute(), clock.Second(), clock.Nanosecond(), time.Local),
		VideoID: fields[1],
	}
	dst := []*float64{&rec.AU25, &rec.AU12, &rec.AU6, &rec.Audio, &rec.Smile, &rec.Laughter, &rec.Amusement}
	for i, p := range dst {
		v, err := strconv.ParseFloat(fields[i+2], 64)
		if err != nil {
			return Record{}, fmt.Errorf("field %d: %w", i+2, err)
		}
		*p = v
	}
	return rec, nil
}
