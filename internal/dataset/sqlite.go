package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/wegman-software/osm-waterways/internal/logger"
	"github.com/wegman-software/osm-waterways/internal/wkb"
)

const spatialiteDriver = "sqlite3_with_spatialite"

func init() {
	sql.Register(spatialiteDriver, &sqlite3.SQLiteDriver{
		Extensions: []string{"mod_spatialite"},
	})
}

// Well-known text for the spatial_ref_sys table of the non-Spatialite layout
var srsWKT = map[int]string{
	4326: `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433],AUTHORITY["EPSG","4326"]]`,
	3857: `PROJCS["WGS 84 / Pseudo-Mercator",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]],PROJECTION["Mercator_1SP"],PARAMETER["central_meridian",0],PARAMETER["scale_factor",1],PARAMETER["false_easting",0],PARAMETER["false_northing",0],UNIT["metre",1],AUTHORITY["EPSG","3857"]]`,
}

// sqliteDataset writes a single SQLite file inside one transaction. With
// mod_spatialite available it is a Spatialite database, otherwise it uses the
// plain OGR layout with WKB geometry blobs.
type sqliteDataset struct {
	ctx     context.Context
	db      *sqlx.DB
	tx      *sqlx.Tx
	srid    int
	spatial bool
	layers  []*sqliteLayer
}

func openSQLite(ctx context.Context, opts Options) (Dataset, error) {
	if _, err := os.Stat(opts.Path); err == nil {
		return nil, fmt.Errorf("%s already exists", opts.Path)
	}

	db, spatial, err := connectSQLite(ctx, opts.Path)
	if err != nil {
		return nil, err
	}

	ds := &sqliteDataset{ctx: ctx, db: db, srid: opts.SRID, spatial: spatial}
	if err := ds.init(); err != nil {
		db.Close()
		os.Remove(opts.Path)
		return nil, err
	}
	return ds, nil
}

// connectSQLite opens path with mod_spatialite, falling back to plain SQLite
func connectSQLite(ctx context.Context, path string) (*sqlx.DB, bool, error) {
	log := logger.Get()

	db, err := sqlx.Open(spatialiteDriver, path)
	if err == nil {
		db.SetMaxOpenConns(1)
		if err = db.PingContext(ctx); err == nil {
			return db, true, nil
		}
		db.Close()
	}
	log.Debug("Spatialite not available, writing plain SQLite", zap.Error(err))

	db, err = sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, false, err
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, false, err
	}
	return db, false, nil
}

func (d *sqliteDataset) init() error {
	if _, err := d.db.ExecContext(d.ctx, "PRAGMA synchronous = OFF"); err != nil {
		return fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	if d.spatial {
		if _, err := d.db.ExecContext(d.ctx, "SELECT InitSpatialMetadata(1, 'NONE')"); err != nil {
			return fmt.Errorf("failed to init spatial metadata: %w", err)
		}
		if _, err := d.db.ExecContext(d.ctx, "SELECT InsertEpsgSrid(?)", d.srid); err != nil {
			return fmt.Errorf("failed to insert SRID %d: %w", d.srid, err)
		}
	} else {
		stmts := []string{
			`CREATE TABLE geometry_columns (
				f_table_name VARCHAR,
				f_geometry_column VARCHAR,
				geometry_type INTEGER,
				coord_dimension INTEGER,
				srid INTEGER,
				geometry_format VARCHAR)`,
			`CREATE TABLE spatial_ref_sys (
				srid INTEGER UNIQUE,
				auth_name TEXT,
				auth_srid TEXT,
				srtext TEXT)`,
		}
		for _, s := range stmts {
			if _, err := d.db.ExecContext(d.ctx, s); err != nil {
				return fmt.Errorf("failed to create metadata tables: %w", err)
			}
		}
		if _, err := d.db.ExecContext(d.ctx,
			"INSERT INTO spatial_ref_sys (srid, auth_name, auth_srid, srtext) VALUES (?, 'EPSG', ?, ?)",
			d.srid, fmt.Sprint(d.srid), srsWKT[d.srid]); err != nil {
			return fmt.Errorf("failed to insert SRID %d: %w", d.srid, err)
		}
	}

	tx, err := d.db.BeginTxx(d.ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	d.tx = tx
	return nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func sqliteColumnType(f Field) string {
	switch f.Type {
	case Integer:
		return "INTEGER"
	case Real:
		return "FLOAT"
	}
	if f.Width > 0 {
		return fmt.Sprintf("VARCHAR(%d)", f.Width)
	}
	return "VARCHAR"
}

func (d *sqliteDataset) CreateLayer(name string, geomType GeometryType, fields []Field) (Layer, error) {
	s, err := newSchema(name, geomType, fields)
	if err != nil {
		return nil, err
	}

	cols := []string{"ogc_fid INTEGER PRIMARY KEY AUTOINCREMENT"}
	if !d.spatial {
		cols = append(cols, "GEOMETRY BLOB")
	}
	for _, f := range fields {
		cols = append(cols, quoteIdent(f.Name)+" "+sqliteColumnType(f))
	}
	table := quoteIdent(name)
	if _, err := d.tx.ExecContext(d.ctx, fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(cols, ", "))); err != nil {
		return nil, fmt.Errorf("failed to create layer %s: %w", name, err)
	}

	geomExpr := "?"
	if d.spatial {
		if _, err := d.tx.ExecContext(d.ctx, "SELECT AddGeometryColumn(?, 'GEOMETRY', ?, ?, 'XY')",
			name, d.srid, geomType.String()); err != nil {
			return nil, fmt.Errorf("failed to add geometry column to %s: %w", name, err)
		}
		geomExpr = fmt.Sprintf("GeomFromWKB(?, %d)", d.srid)
	} else {
		if _, err := d.tx.ExecContext(d.ctx,
			"INSERT INTO geometry_columns VALUES (?, 'GEOMETRY', ?, 2, ?, 'WKB')",
			name, geomType.wkbCode(), d.srid); err != nil {
			return nil, fmt.Errorf("failed to register layer %s: %w", name, err)
		}
	}

	names := []string{"GEOMETRY"}
	params := []string{geomExpr}
	for _, f := range fields {
		names = append(names, quoteIdent(f.Name))
		params = append(params, "?")
	}
	stmt, err := d.tx.PreparexContext(d.ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(names, ", "), strings.Join(params, ", ")))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert for %s: %w", name, err)
	}

	l := &sqliteLayer{
		schema:  s,
		ctx:     d.ctx,
		stmt:    stmt,
		encoder: wkb.NewEncoder(1024),
		args:    make([]any, len(fields)+1),
	}
	d.layers = append(d.layers, l)
	return l, nil
}

func (d *sqliteDataset) Close() error {
	var firstErr error
	for _, l := range d.layers {
		if err := l.stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		if err := d.tx.Commit(); err != nil {
			firstErr = fmt.Errorf("failed to commit: %w", err)
		}
	} else {
		d.tx.Rollback()
	}

	if firstErr == nil && d.spatial {
		for _, l := range d.layers {
			if _, err := d.db.ExecContext(d.ctx, "SELECT CreateSpatialIndex(?, 'GEOMETRY')", l.name); err != nil {
				firstErr = fmt.Errorf("failed to create spatial index on %s: %w", l.name, err)
				break
			}
		}
	}

	if err := d.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

type sqliteLayer struct {
	*schema
	ctx     context.Context
	stmt    *sqlx.Stmt
	encoder *wkb.Encoder
	args    []any
	count   int64
}

func (l *sqliteLayer) Name() string { return l.name }

func (l *sqliteLayer) Count() int64 { return l.count }

func (l *sqliteLayer) Add(f Feature) error {
	values, err := l.normalize(f)
	if err != nil {
		return err
	}
	geom, err := l.encoder.Encode(f.Geometry)
	if err != nil {
		return fmt.Errorf("layer %s: %w", l.name, err)
	}

	l.args[0] = geom
	copy(l.args[1:], values)
	if _, err := l.stmt.ExecContext(l.ctx, l.args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", l.name, err)
	}
	l.count++
	return nil
}
