package stations

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds the reference database configuration. An empty Host means
// no database is configured and the embedded seed is used alone.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	MinConns int32
	MaxConns int32
}

// Directory resolves CRS codes to station display names. The reference
// table is loaded into memory once at startup; lookups never touch the
// database on the request path.
type Directory struct {
	mu    sync.RWMutex
	names map[string]string
	pool  *pgxpool.Pool
}

// NewDirectory creates a directory seeded with the embedded station set
func NewDirectory() *Directory {
	names := make(map[string]string, len(seedStations))
	for crs, name := range seedStations {
		names[crs] = name
	}
	return &Directory{names: names}
}

// Connect opens the reference database pool and loads the station table,
// replacing seed entries where the table knows better.
func (d *Directory) Connect(ctx context.Context, cfg Config) error {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return fmt.Errorf("unable to parse connection string: %w", err)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("unable to ping database: %w", err)
	}

	d.pool = pool
	return d.Reload(ctx)
}

// Reload re-reads the station reference table into memory
func (d *Directory) Reload(ctx context.Context) error {
	if d.pool == nil {
		return nil
	}

	rows, err := d.pool.Query(ctx, "SELECT crs, name FROM station_reference")
	if err != nil {
		return fmt.Errorf("query station_reference: %w", err)
	}
	defer rows.Close()

	loaded := make(map[string]string)
	for rows.Next() {
		var crs, name string
		if err := rows.Scan(&crs, &name); err != nil {
			return fmt.Errorf("scan station_reference row: %w", err)
		}
		loaded[strings.ToUpper(crs)] = name
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate station_reference: %w", err)
	}

	d.mu.Lock()
	for crs, name := range loaded {
		d.names[crs] = name
	}
	d.mu.Unlock()
	return nil
}

// Name returns the display name for a CRS code, or "" when unknown.
// Nil receivers are allowed so collaborators need no directory at all.
func (d *Directory) Name(crs string) string {
	if d == nil {
		return ""
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.names[strings.ToUpper(crs)]
}

// Count reports how many stations are known
func (d *Directory) Count() int {
	if d == nil {
		return 0
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.names)
}

// Close releases the database pool if one was opened
func (d *Directory) Close() {
	if d != nil && d.pool != nil {
		d.pool.Close()
	}
}
