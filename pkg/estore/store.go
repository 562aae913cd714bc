package estore

// A SQLite backed home for channel stacks, and the registration runs made against them.

import(
	"context"
	"database/sql"
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"log"
	"math"
	"net/url"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/abworrall/stackreg/pkg/emath"
	"github.com/abworrall/stackreg/pkg/eregister"
)

//go:embed schema.sql
var schemaSQL string

// Applied by the driver to every pooled connection, not just the first
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

var ErrNotFound = errors.New("not found")

// Store implements eregister.Store. Unregistered frames are what
// ImportStack writes and GetStack reads; PutStack writes the registered
// copy alongside them.
type Store struct {
	*sql.DB
	Path      string
	Verbosity int
}

var _ eregister.Store = (*Store)(nil)

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %v", path, err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema %s: %v", path, err)
	}
	return &Store{DB: db, Path: path}, nil
}

func (s *Store)GetStack(ctx context.Context, key eregister.StackKey, channel string) (eregister.Stack, error) {
	return s.readStack(ctx, key, channel, false)
}

// GetRegistered reads back what PutStack wrote.
func (s *Store)GetRegistered(ctx context.Context, key eregister.StackKey, channel string) (eregister.Stack, error) {
	return s.readStack(ctx, key, channel, true)
}

func (s *Store)PutStack(ctx context.Context, key eregister.StackKey, channel string, stack eregister.Stack) error {
	return s.writeStack(ctx, key, channel, true, stack)
}

// ImportStack stores raw frames; any previous frames for the channel are replaced.
func (s *Store)ImportStack(ctx context.Context, key eregister.StackKey, channel string, stack eregister.Stack) error {
	if err := stack.Validate(); err != nil {
		return fmt.Errorf("import %s %s: %w", key, channel, err)
	}
	return s.writeStack(ctx, key, channel, false, stack)
}

// ListChannels returns the channels with unregistered frames, by name.
func (s *Store)ListChannels(ctx context.Context, key eregister.StackKey) ([]string, error) {
	rows, err := s.QueryContext(ctx, `SELECT DISTINCT channel FROM frames
		WHERE sample = ? AND scan_type = ? AND registered = 0 ORDER BY channel`, key.Sample, key.ScanType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ListStacks returns every imported stack; an empty sample or scanType matches anything.
func (s *Store)ListStacks(ctx context.Context, sample, scanType string) ([]eregister.StackKey, error) {
	rows, err := s.QueryContext(ctx, `SELECT DISTINCT sample, scan_type FROM frames
		WHERE registered = 0 AND (? = '' OR sample = ?) AND (? = '' OR scan_type = ?)
		ORDER BY sample, scan_type`, sample, sample, scanType, scanType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []eregister.StackKey{}
	for rows.Next() {
		k := eregister.StackKey{}
		if err := rows.Scan(&k.Sample, &k.ScanType); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func registeredFlag(b bool) int {
	if b { return 1 }
	return 0
}

func (s *Store)readStack(ctx context.Context, key eregister.StackKey, channel string, registered bool) (eregister.Stack, error) {
	rows, err := s.QueryContext(ctx, `SELECT frame_index, label, width, height, data FROM frames
		WHERE sample = ? AND scan_type = ? AND channel = ? AND registered = ?
		ORDER BY frame_index`, key.Sample, key.ScanType, channel, registeredFlag(registered))
	if err != nil {
		return eregister.Stack{}, err
	}
	defer rows.Close()

	stack := eregister.Stack{}
	for rows.Next() {
		var idx, w, h int
		var label string
		var data []byte
		if err := rows.Scan(&idx, &label, &w, &h, &data); err != nil {
			return stack, err
		}
		if idx != stack.Len() {
			return stack, fmt.Errorf("%s %s: frame %d stored at position %d", key, channel, stack.Len(), idx)
		}
		fg, err := emath.NewFloatGridFrom(w, h, decodeFloats(data))
		if err != nil {
			return stack, fmt.Errorf("%s %s frame %d: %v", key, channel, idx, err)
		}
		stack.Frames = append(stack.Frames, fg)
		stack.Labels = append(stack.Labels, label)
	}
	if err := rows.Err(); err != nil {
		return stack, err
	}

	if stack.Len() == 0 {
		return stack, fmt.Errorf("%s %s: %w", key, channel, ErrNotFound)
	}
	return stack, nil
}

func (s *Store)writeStack(ctx context.Context, key eregister.StackKey, channel string, registered bool, stack eregister.Stack) error {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM frames
		WHERE sample = ? AND scan_type = ? AND channel = ? AND registered = ?`,
		key.Sample, key.ScanType, channel, registeredFlag(registered)); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO frames
		(sample, scan_type, channel, registered, frame_index, label, width, height, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, fg := range stack.Frames {
		label := ""
		if i < len(stack.Labels) {
			label = stack.Labels[i]
		}
		if _, err := stmt.ExecContext(ctx, key.Sample, key.ScanType, channel, registeredFlag(registered),
			i, label, fg.Dx(), fg.Dy(), encodeFloats(fg.Values())); err != nil {
			return fmt.Errorf("frame %d: %v", i, err)
		}
	}

	if s.Verbosity > 0 {
		log.Printf("estore: wrote %d frames of %s %s (registered=%v)\n", stack.Len(), key, channel, registered)
	}
	return tx.Commit()
}

// {{{ Runs

// A Run is a saved registration: the transforms and their report, but not the frames.
type Run struct {
	ID         string
	Key        eregister.StackKey
	Reference  string
	Policy     string
	Crop       image.Rectangle
	Created    time.Time
	ConfigYaml string
	Pairs      eregister.PairwiseSet
	Absolute   eregister.AbsoluteSet
	Report     eregister.Report
}

// SaveRun records a result under a fresh run ID, which it returns.
func (s *Store)SaveRun(ctx context.Context, cfg eregister.Config, res eregister.Result) (string, error) {
	id := uuid.New().String()

	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	r := res.Report
	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(run_id, sample, scan_type, reference_channel, policy, frames, direct, fallback, failed,
		 crop_x0, crop_y0, crop_x1, crop_y1, drift_p50, drift_p90, drift_max, config_yaml, created_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, res.Key.Sample, res.Key.ScanType, res.Reference, string(cfg.OnFailure),
		r.Frames, r.Direct, r.Fallback, r.Failed,
		res.Crop.Min.X, res.Crop.Min.Y, res.Crop.Max.X, res.Crop.Max.Y,
		r.DriftP50, r.DriftP90, r.DriftMax, cfg.AsYaml(), time.Now().Unix())
	if err != nil {
		return "", fmt.Errorf("insert run: %v", err)
	}

	for i, pr := range res.Pairs {
		abs := emath.Identity()
		if i < len(res.Absolute) {
			abs = res.Absolute[i]
		}
		errStr := ""
		if pr.Err != nil {
			errStr = pr.Err.Error()
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO pairs
			(run_id, frame_index, label, outcome, strategy, correlation, iterations, pairwise, absolute, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, pr.Index, pr.Label, pr.Outcome.String(), pr.Strategy, nullFloat(pr.Correlation),
			pr.Iterations, encodeFloats(pr.Transform[:]), encodeFloats(abs[:]), errStr)
		if err != nil {
			return "", fmt.Errorf("insert pair %d: %v", pr.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	if s.Verbosity > 0 {
		log.Printf("estore: saved run %s for %s\n", id, res.Key)
	}
	return id, nil
}

// LatestRun returns the most recently saved run for the stack.
func (s *Store)LatestRun(ctx context.Context, key eregister.StackKey) (Run, error) {
	var id string
	err := s.QueryRowContext(ctx, `SELECT run_id FROM runs WHERE sample = ? AND scan_type = ?
		ORDER BY created_unix DESC, rowid DESC LIMIT 1`, key.Sample, key.ScanType).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("runs for %s: %w", key, ErrNotFound)
	} else if err != nil {
		return Run{}, err
	}
	return s.LoadRun(ctx, id)
}

func (s *Store)LoadRun(ctx context.Context, id string) (Run, error) {
	run := Run{ID: id}
	var created int64
	err := s.QueryRowContext(ctx, `SELECT sample, scan_type, reference_channel, policy,
		crop_x0, crop_y0, crop_x1, crop_y1, config_yaml, created_unix FROM runs WHERE run_id = ?`, id).Scan(
		&run.Key.Sample, &run.Key.ScanType, &run.Reference, &run.Policy,
		&run.Crop.Min.X, &run.Crop.Min.Y, &run.Crop.Max.X, &run.Crop.Max.Y, &run.ConfigYaml, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return run, fmt.Errorf("run %s: %w", id, ErrNotFound)
	} else if err != nil {
		return run, err
	}
	run.Created = time.Unix(created, 0)

	rows, err := s.QueryContext(ctx, `SELECT frame_index, label, outcome, strategy, correlation, iterations,
		pairwise, absolute, error FROM pairs WHERE run_id = ? ORDER BY frame_index`, id)
	if err != nil {
		return run, err
	}
	defer rows.Close()

	for rows.Next() {
		pr := eregister.PairResult{}
		var outcome, errStr string
		var corr sql.NullFloat64
		var pw, abs []byte
		if err := rows.Scan(&pr.Index, &pr.Label, &outcome, &pr.Strategy, &corr, &pr.Iterations, &pw, &abs, &errStr); err != nil {
			return run, err
		}
		if pr.Outcome, err = eregister.ParseOutcome(outcome); err != nil {
			return run, fmt.Errorf("run %s pair %d: %v", id, pr.Index, err)
		}
		pr.Correlation = math.NaN()
		if corr.Valid {
			pr.Correlation = corr.Float64
		}
		if errStr != "" {
			pr.Err = errors.New(errStr)
		}
		if pr.Transform, err = decodeAff3(pw); err != nil {
			return run, err
		}
		a, err := decodeAff3(abs)
		if err != nil {
			return run, err
		}
		run.Pairs = append(run.Pairs, pr)
		run.Absolute = append(run.Absolute, a)
	}
	if err := rows.Err(); err != nil {
		return run, err
	}

	run.Report = eregister.NewReport(run.Pairs, run.Absolute)
	return run, nil
}

// }}}

// {{{ Blob encoding

func encodeFloats(vals []float64) []byte {
	b := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return b
}

func decodeFloats(b []byte) []float64 {
	vals := make([]float64, len(b)/8)
	for i := range vals {
		vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	}
	return vals
}

func decodeAff3(b []byte) (emath.Aff3, error) {
	m := emath.Aff3{}
	vals := decodeFloats(b)
	if len(vals) != len(m) {
		return m, fmt.Errorf("transform blob has %d values", len(vals))
	}
	copy(m[:], vals)
	return m, nil
}

// SQLite has no NaN, it turns them into NULL anyway
func nullFloat(f float64) sql.NullFloat64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

// }}}

// {{{ -------------------------={ E N D }=----------------------------------

// Local variables:
// folded-file: t
// end:

// }}}
