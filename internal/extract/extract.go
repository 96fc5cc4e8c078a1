// Package extract pulls credit applications newer than the stored
// watermark out of the source Postgres table.
package extract

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"creditscore/internal/preprocess"
	"creditscore/internal/schema"
	"creditscore/internal/state"
)

const dateLayout = "2006-01-02"

var (
	// ErrNoNewData means the table holds nothing past the watermark.
	ErrNoNewData = errors.New("extract: no new data")
	ErrBadRow    = errors.New("extract: bad row")
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

var sqlOpen = sql.Open

// Open connects to the source database through pgx.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sqlOpen("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Variables is the watermark storage.
type Variables interface {
	GetVariable(ctx context.Context, key string) (string, bool, error)
	SetVariable(ctx context.Context, key, value string) error
}

// Batch is one extraction: the feature records, their loan_status labels
// and the created_at range covered.
type Batch struct {
	Columns []string             `json:"columns"`
	Records preprocess.RecordSet `json:"records"`
	Labels  []int                `json:"labels"`
	From    string               `json:"from"`
	To      string               `json:"to"`
}

// Stamp is To without dashes, the suffix of every blob written for this
// batch.
func (b Batch) Stamp() string { return strings.ReplaceAll(b.To, "-", "") }

type Extractor struct {
	db    *sql.DB
	table string
	vars  Variables
	cols  schema.Columns
}

func New(db *sql.DB, table string, vars Variables, cols schema.Columns) (*Extractor, error) {
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("extract: invalid table name %q", table)
	}
	return &Extractor{db: db, table: pgx.Identifier(strings.Split(table, ".")).Sanitize(), vars: vars, cols: cols}, nil
}

// Extract reads every row after the watermark, or every row when no
// watermark is set. The watermark is left untouched; see Commit.
func (e *Extractor) Extract(ctx context.Context) (Batch, error) {
	latest, ok, err := e.boundary(ctx, "DESC")
	if err != nil {
		return Batch{}, err
	}
	if !ok {
		return Batch{}, ErrNoNewData
	}

	last, have, err := e.vars.GetVariable(ctx, state.VarLastExtracted)
	if err != nil {
		return Batch{}, err
	}
	var where, from string
	if have {
		if last >= latest {
			return Batch{}, fmt.Errorf("%w: latest %s, extracted through %s", ErrNoNewData, latest, last)
		}
		where, from = `%s > $1 AND %s <= $2`, last
	} else {
		earliest, _, err := e.boundary(ctx, "ASC")
		if err != nil {
			return Batch{}, err
		}
		where, from = `%s >= $1 AND %s <= $2`, earliest
	}

	b, err := e.query(ctx, where, from, latest)
	if err != nil {
		return Batch{}, err
	}
	if len(b.Records) == 0 {
		return Batch{}, ErrNoNewData
	}
	return b, nil
}

// Commit advances the watermark to the end of b.
func (e *Extractor) Commit(ctx context.Context, b Batch) error {
	return e.vars.SetVariable(ctx, state.VarLastExtracted, b.To)
}

func (e *Extractor) boundary(ctx context.Context, dir string) (string, bool, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s ORDER BY %s %s LIMIT 1`, quote(schema.CreatedAt), e.table, quote(schema.CreatedAt), dir)
	var raw any
	err := e.db.QueryRowContext(ctx, q).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("extract boundary: %w", err)
	}
	d, err := toDate(raw)
	if err != nil {
		return "", false, err
	}
	return d, true, nil
}

func (e *Extractor) selectColumns() []string {
	return slices.Concat(e.cols.Numeric, e.cols.Categorical, []string{schema.LoanStatus, schema.CreatedAt})
}

func (e *Extractor) query(ctx context.Context, where, from, to string) (Batch, error) {
	cols := e.selectColumns()
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
	}
	ca := quote(schema.CreatedAt)
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE `+where+` ORDER BY %s ASC`,
		strings.Join(quoted, ", "), e.table, ca, ca, ca)

	rows, err := e.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return Batch{}, fmt.Errorf("extract query: %w", err)
	}
	defer rows.Close()

	b := Batch{Columns: slices.Clone(cols), From: from}
	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for n := 0; rows.Next(); n++ {
		if err := rows.Scan(ptrs...); err != nil {
			return Batch{}, fmt.Errorf("extract scan: %w", err)
		}
		rec, label, date, err := e.convert(cols, raw)
		if err != nil {
			return Batch{}, fmt.Errorf("row %d: %w", n, err)
		}
		b.Records = append(b.Records, rec)
		b.Labels = append(b.Labels, label)
		b.To = date
	}
	if err := rows.Err(); err != nil {
		return Batch{}, fmt.Errorf("extract rows: %w", err)
	}
	return b, nil
}

func (e *Extractor) convert(cols []string, raw []any) (preprocess.Record, int, string, error) {
	rec := make(preprocess.Record, len(cols)-2)
	var label int
	var date string
	for i, col := range cols {
		var err error
		switch {
		case col == schema.LoanStatus:
			label, err = toLabel(raw[i])
		case col == schema.CreatedAt:
			date, err = toDate(raw[i])
		case slices.Contains(e.cols.Numeric, col):
			rec[col], err = toNumeric(raw[i])
		default:
			rec[col], err = toCategorical(raw[i])
		}
		if err != nil {
			return nil, 0, "", fmt.Errorf("%s: %w", col, err)
		}
	}
	return rec, label, date, nil
}

func quote(col string) string { return pgx.Identifier{col}.Sanitize() }

// toNumeric accepts numbers and numeric text (pgx hands NUMERIC over as
// text). Empty text is missing.
func toNumeric(raw any) (preprocess.Value, error) {
	var s string
	switch x := raw.(type) {
	case string:
		s = x
	case []byte:
		s = string(x)
	default:
		return preprocess.ValueOf(raw)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return preprocess.Null(), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return preprocess.Value{}, fmt.Errorf("%w: %q is not numeric", ErrBadRow, s)
	}
	return preprocess.Num(f), nil
}

func toCategorical(raw any) (preprocess.Value, error) {
	switch x := raw.(type) {
	case nil:
		return preprocess.Null(), nil
	case string:
		return preprocess.Str(x), nil
	case []byte:
		return preprocess.Str(string(x)), nil
	default:
		return preprocess.Value{}, fmt.Errorf("%w: %T is not text", ErrBadRow, raw)
	}
}

func toLabel(raw any) (int, error) {
	switch x := raw.(type) {
	case int64:
		return int(x), nil
	case int32:
		return int(x), nil
	case float64:
		return int(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.Atoi(strings.TrimSpace(x))
	case []byte:
		return strconv.Atoi(strings.TrimSpace(string(x)))
	case nil:
		return 0, fmt.Errorf("%w: missing label", ErrBadRow)
	default:
		return 0, fmt.Errorf("%w: %T label", ErrBadRow, raw)
	}
}

func toDate(raw any) (string, error) {
	switch x := raw.(type) {
	case time.Time:
		return x.Format(dateLayout), nil
	case string, []byte:
		s := strings.TrimSpace(toString(x))
		if len(s) < len(dateLayout) {
			return "", fmt.Errorf("%w: created_at %q", ErrBadRow, s)
		}
		if _, err := time.Parse(dateLayout, s[:len(dateLayout)]); err != nil {
			return "", fmt.Errorf("%w: created_at %q", ErrBadRow, s)
		}
		return s[:len(dateLayout)], nil
	default:
		return "", fmt.Errorf("%w: created_at %T", ErrBadRow, raw)
	}
}

func toString(x any) string {
	if b, ok := x.([]byte); ok {
		return string(b)
	}
	return x.(string)
}
