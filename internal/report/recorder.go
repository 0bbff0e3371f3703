package report

import (
	"database/sql"
	_ "embed"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/ironsheep/lane-detect/internal/lane"
	"github.com/ironsheep/lane-detect/internal/pipeline"
)

// schema.sql holds one row per run and one row per processed frame.
//
//go:embed schema.sql
var schemaSQL string

// Recorder stores per-frame lane results in a SQLite database.
type Recorder struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open recorder database")
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "set pragmas")
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "apply schema")
	}
	return &Recorder{db: db}, nil
}

// Close closes the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}

// Run records the frames of one pass over a source.
type Run struct {
	ID  string
	rec *Recorder
}

// StartRun registers a new run with a fresh id.
func (r *Recorder) StartRun(source, policy string) (*Run, error) {
	id := uuid.NewString()
	_, err := r.db.Exec(
		`INSERT INTO runs (run_id, source, side_policy, started_at) VALUES (?, ?, ?, ?)`,
		id, source, policy, time.Now().UnixNano())
	if err != nil {
		return nil, errors.Wrap(err, "insert run")
	}
	log.Printf("recording run %s", id)
	return &Run{ID: id, rec: r}, nil
}

// Observe stores one frame. It satisfies pipeline.Observer.
func (run *Run) Observe(index int, res *pipeline.FrameResult) error {
	return run.Record(NewFrameRecord(index, len(res.Segments), res.Lanes))
}

// Record stores a FrameRecord.
func (run *Run) Record(f FrameRecord) error {
	var lf, rf fitColumns
	var ll, rl lineColumns
	lf.set(f.LeftFit)
	rf.set(f.RightFit)
	ll.set(f.Left)
	rl.set(f.Right)

	var failure *string
	if f.Failure != "" {
		failure = &f.Failure
	}

	_, err := run.rec.db.Exec(`
		INSERT INTO frames (
			run_id, frame_index, segments, vertical,
			left_slope, left_intercept, left_x1, left_y1, left_x2, left_y2,
			right_slope, right_intercept, right_x1, right_y1, right_x2, right_y2,
			failure
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, f.Index, f.Segments, f.Vertical,
		lf.slope, lf.intercept, ll.x1, ll.y1, ll.x2, ll.y2,
		rf.slope, rf.intercept, rl.x1, rl.y1, rl.x2, rl.y2,
		failure)
	if err != nil {
		return errors.Wrapf(err, "insert frame %d", f.Index)
	}
	return nil
}

// Finish stores the run totals.
func (run *Run) Finish(stats pipeline.Stats) error {
	_, err := run.rec.db.Exec(`
		UPDATE runs SET finished_at = ?, frames = ?, two_lines = ?, one_line = ?,
			no_lines = ?, degenerate = ?
		WHERE run_id = ?`,
		time.Now().UnixNano(), stats.Frames, stats.TwoLines, stats.OneLine,
		stats.NoLines, stats.Degenerate, run.ID)
	return errors.Wrap(err, "update run")
}

// Stats reads back the totals stored by Finish.
func (r *Recorder) Stats(runID string) (pipeline.Stats, error) {
	var s pipeline.Stats
	err := r.db.QueryRow(`
		SELECT frames, two_lines, one_line, no_lines, degenerate
		FROM runs WHERE run_id = ?`, runID).
		Scan(&s.Frames, &s.TwoLines, &s.OneLine, &s.NoLines, &s.Degenerate)
	if err == sql.ErrNoRows {
		return s, errors.Errorf("unknown run %s", runID)
	}
	return s, errors.Wrap(err, "query run")
}

// Frames returns every frame of a run in index order.
func (r *Recorder) Frames(runID string) ([]FrameRecord, error) {
	rows, err := r.db.Query(`
		SELECT frame_index, segments, vertical,
			left_slope, left_intercept, left_x1, left_y1, left_x2, left_y2,
			right_slope, right_intercept, right_x1, right_y1, right_x2, right_y2,
			failure
		FROM frames WHERE run_id = ? ORDER BY frame_index`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "query frames")
	}
	defer rows.Close()

	var out []FrameRecord
	for rows.Next() {
		var f FrameRecord
		var lf, rf fitColumns
		var ll, rl lineColumns
		var failure *string
		if err := rows.Scan(&f.Index, &f.Segments, &f.Vertical,
			&lf.slope, &lf.intercept, &ll.x1, &ll.y1, &ll.x2, &ll.y2,
			&rf.slope, &rf.intercept, &rl.x1, &rl.y1, &rl.x2, &rl.y2,
			&failure); err != nil {
			return nil, errors.Wrap(err, "scan frame")
		}
		f.LeftFit, f.RightFit = lf.get(), rf.get()
		f.Left, f.Right = ll.get(), rl.get()
		if failure != nil {
			f.Failure = *failure
		}
		out = append(out, f)
	}
	return out, errors.Wrap(rows.Err(), "iterate frames")
}

// FrameRecord is the stored form of one frame's lane result.
type FrameRecord struct {
	Index    int        `json:"index"`
	Segments int        `json:"segments"`
	Vertical int        `json:"vertical"`
	Left     *lane.Line `json:"left,omitempty"`
	Right    *lane.Line `json:"right,omitempty"`
	LeftFit  *lane.Fit  `json:"left_fit,omitempty"`
	RightFit *lane.Fit  `json:"right_fit,omitempty"`
	Failure  string     `json:"failure,omitempty"`
}

// NewFrameRecord flattens a lane result. Non-finite fits are not stored.
func NewFrameRecord(index, segments int, res lane.Result) FrameRecord {
	f := FrameRecord{
		Index:    index,
		Segments: segments,
		Vertical: res.Vertical,
		Left:     res.Left,
		Right:    res.Right,
	}
	if res.LeftFit != nil && res.LeftFit.Finite() {
		f.LeftFit = res.LeftFit
	}
	if res.RightFit != nil && res.RightFit.Finite() {
		f.RightFit = res.RightFit
	}
	if err := res.Err(); err != nil {
		f.Failure = err.Error()
	}
	return f
}

type fitColumns struct {
	slope, intercept *float64
}

func (c *fitColumns) set(f *lane.Fit) {
	if f != nil {
		c.slope, c.intercept = &f.Slope, &f.Intercept
	}
}

func (c *fitColumns) get() *lane.Fit {
	if c.slope == nil || c.intercept == nil {
		return nil
	}
	return &lane.Fit{Slope: *c.slope, Intercept: *c.intercept}
}

type lineColumns struct {
	x1, y1, x2, y2 *int64
}

func (c *lineColumns) set(l *lane.Line) {
	if l == nil {
		return
	}
	x1, y1, x2, y2 := int64(l.X1), int64(l.Y1), int64(l.X2), int64(l.Y2)
	c.x1, c.y1, c.x2, c.y2 = &x1, &y1, &x2, &y2
}

func (c *lineColumns) get() *lane.Line {
	if c.x1 == nil || c.y1 == nil || c.x2 == nil || c.y2 == nil {
		return nil
	}
	return &lane.Line{X1: int(*c.x1), Y1: int(*c.y1), X2: int(*c.x2), Y2: int(*c.y2)}
}
