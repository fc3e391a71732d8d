package dataaccess

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	_ "github.com/ncruces/go-sqlite3/vfs/memdb"

	"github.com/zjrosen/regd/internal/descriptor"
)

// Dialect is the SQL flavour of a database.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// ErrUnsupportedDriver is returned when neither the driver name nor the URL
// identify a supported database.
var ErrUnsupportedDriver = errors.New("unsupported database driver")

// driverName returns the database/sql driver registered for d.
func (d Dialect) driverName() string {
	switch d {
	case DialectPostgres:
		return "pgx"
	case DialectMySQL:
		return "mysql"
	default:
		return "sqlite3"
	}
}

// Rebind rewrites ? placeholders into the dialect's form. A ? inside a
// quoted string, a quoted identifier or a comment is left alone.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'' || c == '"':
			// A doubled quote ends the span and reopens it, so escaped
			// quotes need no special case.
			end := strings.IndexByte(query[i+1:], c)
			if end < 0 {
				b.WriteString(query[i:])
				return b.String()
			}
			b.WriteString(query[i : i+end+2])
			i += end + 1
		case c == '-' && strings.HasPrefix(query[i:], "--"):
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				b.WriteString(query[i:])
				return b.String()
			}
			b.WriteString(query[i : i+end+1])
			i += end
		case c == '/' && strings.HasPrefix(query[i:], "/*"):
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				b.WriteString(query[i:])
				return b.String()
			}
			b.WriteString(query[i : i+end+4])
			i += end + 3
		case c == '?':
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

var driverDialects = map[string]Dialect{
	"org.h2.driver":            DialectSQLite,
	"org.sqlite.jdbc":          DialectSQLite,
	"sqlite":                   DialectSQLite,
	"sqlite3":                  DialectSQLite,
	"org.postgresql.driver":    DialectPostgres,
	"postgres":                 DialectPostgres,
	"postgresql":               DialectPostgres,
	"pgx":                      DialectPostgres,
	"com.mysql.jdbc.driver":    DialectMySQL,
	"com.mysql.cj.jdbc.driver": DialectMySQL,
	"mysql":                    DialectMySQL,
}

// Target is a resolved connection: the database/sql driver, its DSN and
// the dialect used for queries and migrations.
type Target struct {
	Dialect Dialect
	Driver  string
	DSN     string
	// Memory is set for in-memory SQLite databases.
	Memory bool
}

// Resolve maps a direct-connection dbConfig onto a Go driver. Embedded H2
// URLs open an SQLite file next to the H2 path.
func Resolve(cfg descriptor.DBConfig) (Target, error) {
	dialect, ok := dialectFromURL(cfg.URL)
	if !ok {
		dialect, ok = driverDialects[strings.ToLower(strings.TrimSpace(cfg.DriverName))]
	}
	if !ok {
		return Target{}, fmt.Errorf("dbConfig %q (url %q, driver %q): %w", cfg.Name, cfg.URL, cfg.DriverName, ErrUnsupportedDriver)
	}

	t := Target{Dialect: dialect, Driver: dialect.driverName()}
	var err error
	switch dialect {
	case DialectSQLite:
		t.DSN, t.Memory = sqliteDSN(cfg.URL)
	case DialectPostgres:
		t.DSN, err = postgresDSN(cfg)
	case DialectMySQL:
		t.DSN, err = mysqlDSN(cfg)
	}
	if err != nil {
		return Target{}, fmt.Errorf("dbConfig %q: %w", cfg.Name, err)
	}
	return t, nil
}

func dialectFromURL(raw string) (Dialect, bool) {
	u := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(u, "jdbc:h2:"), strings.HasPrefix(u, "jdbc:sqlite:"),
		strings.HasPrefix(u, "sqlite:"), strings.HasPrefix(u, "file:"):
		return DialectSQLite, true
	case strings.HasPrefix(u, "jdbc:postgresql:"), strings.HasPrefix(u, "postgres://"),
		strings.HasPrefix(u, "postgresql://"):
		return DialectPostgres, true
	case strings.HasPrefix(u, "jdbc:mysql:"), strings.HasPrefix(u, "mysql://"):
		return DialectMySQL, true
	}
	return "", false
}

// sqliteDSN converts jdbc:h2:, jdbc:sqlite: and sqlite: URLs. H2 options
// after ';' are dropped and "mem:" databases use the memdb VFS.
func sqliteDSN(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	rest, h2 := cutPrefixFold(s, "jdbc:h2:")
	if h2 {
		if i := strings.IndexByte(rest, ';'); i >= 0 {
			rest = rest[:i]
		}
		rest = strings.TrimPrefix(rest, "file:")
	} else if r, ok := cutPrefixFold(s, "jdbc:sqlite:"); ok {
		rest = r
	} else {
		rest, _ = cutPrefixFold(s, "sqlite:")
	}

	if name, ok := strings.CutPrefix(rest, "mem:"); ok {
		if name == "" {
			name = "regd"
		}
		return "file:/" + name + ".db?vfs=memdb", true
	}
	if h2 && filepath.Ext(rest) == "" {
		rest += ".db"
	}
	return rest, false
}

func splitHostDB(rest string) (host, db, query string) {
	rest = strings.TrimPrefix(rest, "//")
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rest, query = rest[:i], rest[i+1:]
	}
	host, db, _ = strings.Cut(rest, "/")
	return host, db, query
}

func postgresDSN(cfg descriptor.DBConfig) (string, error) {
	raw := strings.TrimSpace(cfg.URL)
	if rest, ok := cutPrefixFold(raw, "jdbc:postgresql:"); ok {
		host, db, query := splitHostDB(rest)
		raw = "postgres://" + host + "/" + db
		if query != "" {
			raw += "?" + query
		}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing postgres url: %w", err)
	}
	if u.User == nil && cfg.UserName != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.UserName, cfg.Password)
		} else {
			u.User = url.User(cfg.UserName)
		}
	}
	return u.String(), nil
}

func mysqlDSN(cfg descriptor.DBConfig) (string, error) {
	raw := strings.TrimSpace(cfg.URL)
	rest, ok := cutPrefixFold(raw, "jdbc:mysql:")
	if !ok {
		rest, _ = cutPrefixFold(raw, "mysql:")
	}
	host, db, query := splitHostDB(rest)
	if host == "" {
		return "", fmt.Errorf("mysql url %q has no host", cfg.URL)
	}
	if !strings.Contains(host, ":") {
		host += ":3306"
	}

	mc := mysql.NewConfig()
	mc.User = cfg.UserName
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = host
	mc.DBName = db
	mc.ParseTime = true
	if query != "" {
		params, err := url.ParseQuery(query)
		if err != nil {
			return "", fmt.Errorf("parsing mysql url parameters: %w", err)
		}
		mc.Params = make(map[string]string, len(params))
		for k := range params {
			// JDBC-only options have no meaning for the Go driver.
			if k == "useSSL" || k == "autoReconnect" || k == "characterEncoding" {
				continue
			}
			mc.Params[k] = params.Get(k)
		}
	}
	return mc.FormatDSN(), nil
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}
