package dataset

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/osm-waterways/internal/logger"
	"github.com/wegman-software/osm-waterways/internal/wkb"
)

const (
	pgPrefix     = "PG:"
	pgBatchSize  = 10_000
	pgGeomColumn = "geom"
)

// pgDataset loads layers into PostGIS tables with COPY. Tables are created
// UNLOGGED and switched to LOGGED once loading is done.
type pgDataset struct {
	ctx    context.Context
	pool   *pgxpool.Pool
	srid   int
	layers []*pgLayer
}

func openPostgres(ctx context.Context, opts Options) (Dataset, error) {
	connString := strings.TrimSpace(opts.Path)
	if len(connString) >= len(pgPrefix) && strings.EqualFold(connString[:len(pgPrefix)], pgPrefix) {
		connString = connString[len(pgPrefix):]
	}

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if poolConfig.MaxConns < 4 {
		poolConfig.MaxConns = 4
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create postgis extension: %w", err)
	}

	return &pgDataset{ctx: ctx, pool: pool, srid: opts.SRID}, nil
}

func pgType(t FieldType) string {
	switch t {
	case Integer:
		return "BIGINT"
	case Real:
		return "DOUBLE PRECISION"
	}
	return "TEXT"
}

func (d *pgDataset) CreateLayer(name string, geomType GeometryType, fields []Field) (Layer, error) {
	s, err := newSchema(name, geomType, fields)
	if err != nil {
		return nil, err
	}

	table := pgx.Identifier{name}.Sanitize()
	cols := make([]string, 0, len(fields)+1)
	defs := []string{"ogc_fid BIGSERIAL PRIMARY KEY"}
	for _, f := range fields {
		col := strings.ToLower(f.Name)
		cols = append(cols, col)
		defs = append(defs, fmt.Sprintf("%s %s", pgx.Identifier{col}.Sanitize(), pgType(f.Type)))
	}
	cols = append(cols, pgGeomColumn)
	defs = append(defs, fmt.Sprintf("%s GEOMETRY(%s, %d)", pgGeomColumn, geomType, d.srid))

	if _, err := d.pool.Exec(d.ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)); err != nil {
		return nil, fmt.Errorf("failed to drop table %s: %w", name, err)
	}
	createSQL := fmt.Sprintf("CREATE UNLOGGED TABLE %s (\n\t%s\n)", table, strings.Join(defs, ",\n\t"))
	if _, err := d.pool.Exec(d.ctx, createSQL); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", name, err)
	}

	l := &pgLayer{
		schema:  s,
		ds:      d,
		table:   table,
		columns: cols,
		encoder: wkb.NewEncoderWithSRID(1024, d.srid),
		rows:    make([][]any, 0, pgBatchSize),
	}
	d.layers = append(d.layers, l)
	return l, nil
}

// Close flushes all layers, then builds indexes for every table in parallel
func (d *pgDataset) Close() error {
	defer d.pool.Close()
	log := logger.Get()

	for _, l := range d.layers {
		if err := l.flush(); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(d.ctx)
	for _, l := range d.layers {
		g.Go(func() error {
			if err := l.finish(ctx); err != nil {
				return err
			}
			log.Debug("Finished table", zap.String("table", l.name), zap.Int64("rows", l.count))
			return nil
		})
	}
	return g.Wait()
}

type pgLayer struct {
	*schema
	ds      *pgDataset
	table   string
	columns []string
	encoder *wkb.Encoder
	rows    [][]any
	count   int64
}

func (l *pgLayer) Name() string { return l.name }

func (l *pgLayer) Count() int64 { return l.count }

func (l *pgLayer) Add(f Feature) error {
	values, err := l.normalize(f)
	if err != nil {
		return err
	}
	geom, err := l.encoder.Encode(f.Geometry)
	if err != nil {
		return fmt.Errorf("layer %s: %w", l.name, err)
	}

	// The encoder reuses its buffer
	ewkb := make([]byte, len(geom))
	copy(ewkb, geom)

	l.rows = append(l.rows, append(values, ewkb))
	l.count++
	if len(l.rows) >= pgBatchSize {
		return l.flush()
	}
	return nil
}

func (l *pgLayer) flush() error {
	if len(l.rows) == 0 {
		return nil
	}
	n, err := l.ds.pool.CopyFrom(l.ds.ctx, pgx.Identifier{l.name}, l.columns, pgx.CopyFromRows(l.rows))
	if err != nil {
		return fmt.Errorf("failed to copy into %s: %w", l.name, err)
	}
	if n != int64(len(l.rows)) {
		return fmt.Errorf("copy into %s: wrote %d of %d rows", l.name, n, len(l.rows))
	}
	l.rows = l.rows[:0]
	return nil
}

// finish makes the table durable and indexes it
func (l *pgLayer) finish(ctx context.Context) error {
	conn, err := l.ds.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	statements := []string{
		fmt.Sprintf("ALTER TABLE %s SET LOGGED", l.table),
		fmt.Sprintf("CREATE INDEX ON %s USING GIST (%s)", l.table, pgGeomColumn),
	}
	for _, col := range l.columns {
		if col == "id" {
			statements = append(statements, fmt.Sprintf("CREATE INDEX ON %s (id)", l.table))
		}
	}
	statements = append(statements, fmt.Sprintf("ANALYZE %s", l.table))

	for _, stmt := range statements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}
