package query

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zjrosen/regd/internal/cachemanager"
	"github.com/zjrosen/regd/internal/dataaccess"
	"github.com/zjrosen/regd/internal/metrics"
	"github.com/zjrosen/regd/internal/plugin"
)

var tracer = otel.Tracer("github.com/zjrosen/regd/internal/query")

const (
	KeySQLProcessor = "SQLQueryProcessor"
	// SQLQueryType is the media type of stored SQL queries.
	SQLQueryType = "application/vnd.sql.query"
)

// Deps are the services query processors run against.
type Deps struct {
	// DataAccess returns the default database, opening it on first use.
	DataAccess func(ctx context.Context) (*dataaccess.Manager, error)
	// Cache stores results; nil disables caching.
	Cache cachemanager.CacheManager[string, Result]
	TTL   time.Duration
	// NoCache reports paths whose queries must not be cached.
	NoCache func(path string) bool
	Metrics *metrics.Metrics
}

// SQLProcessor runs parameterized SQL against the registry database.
type SQLProcessor struct {
	deps  Deps
	cache *cachemanager.ReadThroughCache[string, Result, Query]
}

func NewSQLProcessor(deps Deps) *SQLProcessor {
	p := &SQLProcessor{deps: deps}
	if deps.Cache != nil {
		p.cache = cachemanager.NewReadThroughCache[string, Result, Query](deps.Cache, p.run, nil)
	}
	return p
}

// Execute runs q, serving repeated queries from the cache when one is
// configured. Cached entries expire TTL after their last access.
func (p *SQLProcessor) Execute(ctx context.Context, q Query) (Result, error) {
	defer p.deps.Metrics.ObserveQuery(q.Type, time.Now())

	if p.cache == nil || (p.deps.NoCache != nil && p.deps.NoCache(q.Path)) {
		return p.run(ctx, q)
	}
	key, err := CacheKey(q)
	if err != nil {
		return Result{}, err
	}
	return p.cache.GetWithRefresh(ctx, key, q, p.deps.TTL)
}

func (p *SQLProcessor) run(ctx context.Context, q Query) (Result, error) {
	ctx, span := tracer.Start(ctx, "query.sql")
	defer span.End()
	span.SetAttributes(attribute.String("query.path", q.Path))

	stmt, err := q.Statement()
	if err != nil {
		return Result{}, err
	}
	args, err := q.Args()
	if err != nil {
		return Result{}, err
	}
	if p.deps.DataAccess == nil {
		return Result{}, fmt.Errorf("no data access configured for query %s", q.Path)
	}
	dam, err := p.deps.DataAccess(ctx)
	if err != nil {
		return Result{}, err
	}

	rows, err := dam.DB().QueryContext(ctx, dam.Dialect().Rebind(stmt), args...)
	if err != nil {
		return Result{}, fmt.Errorf("failed to execute query %s: %w", q.Path, err)
	}
	defer rows.Close()

	res, err := scanResult(rows, q.ResultType())
	if err != nil {
		return Result{}, fmt.Errorf("failed to read query %s: %w", q.Path, err)
	}
	return res, nil
}

func scanResult(rows *sql.Rows, resultType string) (Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return Result{}, err
	}
	res := Result{ResultType: resultType, Columns: cols, Rows: [][]string{}}

	values := make([]sql.NullString, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return Result{}, err
		}
		row := make([]string, len(cols))
		for i, v := range values {
			row[i] = v.String
		}
		res.Rows = append(res.Rows, row)
		if resultType == ResultTypeResource && len(row) > 0 && row[0] != "" {
			res.Paths = append(res.Paths, row[0])
		}
	}
	return res, rows.Err()
}

// CacheKey identifies q by tenant, type, path, statement and arguments.
func CacheKey(q Query) (string, error) {
	stmt, err := q.Statement()
	if err != nil {
		return "", err
	}
	args, err := q.Args()
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(struct {
		Stmt       string `json:"s"`
		Args       []any  `json:"a"`
		ResultType string `json:"r"`
	}{stmt, args, q.ResultType()})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadParameter, err)
	}
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%d:%s:%s:%s", q.TenantID, q.Type, q.Path, hex.EncodeToString(sum[:12])), nil
}

// Register adds the built-in processors to r.
func Register(r *plugin.Registry[Processor], deps Deps) error {
	if err := r.Register(KeySQLProcessor, func(plugin.Properties) (Processor, error) {
		return NewSQLProcessor(deps), nil
	}); err != nil {
		return err
	}
	return r.Alias("org.wso2.carbon.registry.core.jdbc.dataaccess."+KeySQLProcessor, KeySQLProcessor)
}
