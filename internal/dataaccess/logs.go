package dataaccess

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/zjrosen/regd/internal/tenant"
)

// LogRecord is one row of the REG_LOG activity table.
type LogRecord struct {
	Path       string    `json:"path"`
	UserID     string    `json:"user"`
	LoggedTime time.Time `json:"loggedTime"`
	Action     Action    `json:"action"`
	ActionData string    `json:"actionData,omitempty"`
	TenantID   int       `json:"tenantId"`
}

// LogQuery filters activity records. The zero value of each filter field
// except Action and TenantID matches everything; use NewLogQuery.
type LogQuery struct {
	Path string
	User string
	// From and To are exclusive bounds on the logged time.
	From time.Time
	To   time.Time
	// Action is ActionAny to match every action.
	Action Action
	// TenantID is tenant.InvalidID to match every tenant.
	TenantID  int
	Ascending bool
	Limit     int
}

// NewLogQuery returns a query matching every record, newest first.
func NewLogQuery() LogQuery {
	return LogQuery{Action: ActionAny, TenantID: tenant.InvalidID}
}

const logColumns = `REG_PATH, REG_USER_ID, REG_LOGGED_TIME, REG_ACTION, REG_ACTION_DATA, REG_TENANT_ID`

// sqliteTimeLayout is fixed width so stored timestamps compare correctly
// as text.
const sqliteTimeLayout = "2006-01-02 15:04:05.000"

// LogsDAO reads and writes REG_LOG.
type LogsDAO struct {
	db      *sql.DB
	dialect Dialect
}

// NewLogsDAO creates a DAO on db.
func NewLogsDAO(db *sql.DB, dialect Dialect) *LogsDAO {
	return &LogsDAO{db: db, dialect: dialect}
}

func (d *LogsDAO) timeArg(t time.Time) any {
	t = t.UTC()
	if d.dialect == DialectSQLite {
		return t.Format(sqliteTimeLayout)
	}
	return t
}

// AddLogs inserts records in a single transaction.
func (d *LogsDAO) AddLogs(ctx context.Context, records []LogRecord) (err error) {
	if len(records) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "dataaccess.add_logs")
	defer span.End()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, d.dialect.Rebind(
		`INSERT INTO REG_LOG (`+logColumns+`) VALUES (?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare log insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		logged := r.LoggedTime
		if logged.IsZero() {
			logged = time.Now()
		}
		if _, err = stmt.ExecContext(ctx,
			r.Path, r.UserID, d.timeArg(logged), int(r.Action), r.ActionData, r.TenantID,
		); err != nil {
			return fmt.Errorf("failed to insert log record for %q: %w", r.Path, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit log records: %w", err)
	}
	return nil
}

func (d *LogsDAO) where(q LogQuery) (string, []any) {
	var conds []string
	var args []any
	if q.Path != "" {
		conds = append(conds, "REG_PATH = ?")
		args = append(args, q.Path)
	}
	if q.User != "" {
		conds = append(conds, "REG_USER_ID = ?")
		args = append(args, q.User)
	}
	if !q.From.IsZero() {
		conds = append(conds, "REG_LOGGED_TIME > ?")
		args = append(args, d.timeArg(q.From))
	}
	if !q.To.IsZero() {
		conds = append(conds, "REG_LOGGED_TIME < ?")
		args = append(args, d.timeArg(q.To))
	}
	if q.Action != ActionAny {
		conds = append(conds, "REG_ACTION = ?")
		args = append(args, int(q.Action))
	}
	if q.TenantID != tenant.InvalidID {
		conds = append(conds, "REG_TENANT_ID = ?")
		args = append(args, q.TenantID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Logs returns the records matching q ordered by logged time.
func (d *LogsDAO) Logs(ctx context.Context, q LogQuery) ([]LogRecord, error) {
	ctx, span := tracer.Start(ctx, "dataaccess.logs")
	defer span.End()

	where, args := d.where(q)
	query := `SELECT ` + logColumns + ` FROM REG_LOG` + where
	if q.Ascending {
		query += " ORDER BY REG_LOGGED_TIME ASC"
	} else {
		query += " ORDER BY REG_LOGGED_TIME DESC"
	}
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := d.db.QueryContext(ctx, d.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	var out []LogRecord
	for rows.Next() {
		r, err := scanLogRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate logs: %w", err)
	}
	return out, nil
}

// Count returns the number of records matching q.
func (d *LogsDAO) Count(ctx context.Context, q LogQuery) (int, error) {
	where, args := d.where(q)
	var n int
	err := d.db.QueryRowContext(ctx, d.dialect.Rebind(`SELECT COUNT(*) FROM REG_LOG`+where), args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count logs: %w", err)
	}
	return n, nil
}

func scanLogRecord(scanner interface{ Scan(...any) error }) (LogRecord, error) {
	var (
		r      LogRecord
		path   sql.NullString
		data   sql.NullString
		logged loggedTime
		action int
	)
	if err := scanner.Scan(&path, &r.UserID, &logged, &action, &data, &r.TenantID); err != nil {
		return LogRecord{}, err
	}
	r.Path = path.String
	r.ActionData = data.String
	r.LoggedTime = logged.Time
	r.Action = Action(action)
	return r, nil
}

// loggedTime scans REG_LOGGED_TIME from drivers that return either a
// time.Time or its text form.
type loggedTime struct {
	time.Time
}

func (t *loggedTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		t.Time = time.Time{}
		return nil
	default:
		return fmt.Errorf("unsupported logged time type %T", src)
	}
}

func (t *loggedTime) parse(s string) error {
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparseable logged time %q", s)
}
