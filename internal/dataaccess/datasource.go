package dataaccess

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zjrosen/regd/internal/log"
)

// ErrDataSourceNotFound is returned when a dbConfig names a data source
// that was never registered.
var ErrDataSourceNotFound = errors.New("data source not found")

// DataSource is a pre-opened database registered under a name.
type DataSource struct {
	DB      *sql.DB
	Dialect Dialect
}

// DataSources maps names to pre-opened databases. dbConfigs with a
// dataSource element are served from here instead of opening a connection.
type DataSources struct {
	mu      sync.RWMutex
	sources map[string]DataSource
}

// NewDataSources creates an empty registry.
func NewDataSources() *DataSources {
	return &DataSources{sources: make(map[string]DataSource)}
}

// Register adds or replaces the data source called name.
func (d *DataSources) Register(name string, db *sql.DB, dialect Dialect) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sources[name] = DataSource{DB: db, Dialect: dialect}
}

// Lookup returns the data source called name.
func (d *DataSources) Lookup(name string) (DataSource, error) {
	if d != nil {
		d.mu.RLock()
		ds, ok := d.sources[name]
		d.mu.RUnlock()
		if ok {
			return ds, nil
		}
	}
	log.Warn(log.CatDB, "data source not found", "name", name)
	return DataSource{}, fmt.Errorf("%q: %w", name, ErrDataSourceNotFound)
}

// Names returns the registered names, sorted.
func (d *DataSources) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.sources))
	for name := range d.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
