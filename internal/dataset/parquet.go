package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/wegman-software/osm-waterways/internal/proj"
	"github.com/wegman-software/osm-waterways/internal/wkb"
)

const (
	parquetBatchSize  = 50_000
	parquetGeomColumn = "geometry"
)

// parquetDataset writes one GeoParquet file per layer into a directory
type parquetDataset struct {
	dir    string
	srid   int
	layers []*parquetLayer
}

func openParquet(_ context.Context, opts Options) (Dataset, error) {
	if err := os.MkdirAll(opts.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &parquetDataset{dir: opts.Path, srid: opts.SRID}, nil
}

// geoMetadata returns the GeoParquet "geo" file metadata
func geoMetadata(geomType GeometryType, srid int) (string, error) {
	column := map[string]any{
		"encoding":       "WKB",
		"geometry_types": []string{geomType.geoJSONName()},
	}
	if srid != proj.SRID4326 {
		column["crs"] = map[string]any{
			"id": map[string]any{"authority": "EPSG", "code": srid},
		}
	}
	b, err := json.Marshal(map[string]any{
		"version":        "1.0.0",
		"primary_column": parquetGeomColumn,
		"columns":        map[string]any{parquetGeomColumn: column},
	})
	return string(b), err
}

func arrowType(t FieldType) arrow.DataType {
	switch t {
	case Integer:
		return arrow.PrimitiveTypes.Int64
	case Real:
		return arrow.PrimitiveTypes.Float64
	}
	return arrow.BinaryTypes.String
}

func (d *parquetDataset) CreateLayer(name string, geomType GeometryType, fields []Field) (Layer, error) {
	s, err := newSchema(name, geomType, fields)
	if err != nil {
		return nil, err
	}

	arrowFields := make([]arrow.Field, 0, len(fields)+1)
	for _, f := range fields {
		arrowFields = append(arrowFields, arrow.Field{Name: f.Name, Type: arrowType(f.Type), Nullable: true})
	}
	arrowFields = append(arrowFields, arrow.Field{Name: parquetGeomColumn, Type: arrow.BinaryTypes.Binary, Nullable: false})

	geo, err := geoMetadata(geomType, d.srid)
	if err != nil {
		return nil, err
	}
	md := arrow.NewMetadata([]string{"geo"}, []string{geo})
	arrowSchema := arrow.NewSchema(arrowFields, &md)

	path := filepath.Join(d.dir, name+".parquet")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create layer file: %w", err)
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)
	writer, err := pqarrow.NewFileWriter(arrowSchema, f, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	l := &parquetLayer{
		schema:  s,
		file:    f,
		writer:  writer,
		builder: array.NewRecordBuilder(memory.DefaultAllocator, arrowSchema),
		encoder: wkb.NewEncoder(1024),
	}
	d.layers = append(d.layers, l)
	return l, nil
}

func (d *parquetDataset) Close() error {
	var firstErr error
	for _, l := range d.layers {
		if err := l.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type parquetLayer struct {
	*schema
	file    *os.File
	writer  *pqarrow.FileWriter
	builder *array.RecordBuilder
	encoder *wkb.Encoder
	pending int
	count   int64
}

func (l *parquetLayer) Name() string { return l.name }

func (l *parquetLayer) Count() int64 { return l.count }

func (l *parquetLayer) Add(f Feature) error {
	values, err := l.normalize(f)
	if err != nil {
		return err
	}
	geom, err := l.encoder.Encode(f.Geometry)
	if err != nil {
		return fmt.Errorf("layer %s: %w", l.name, err)
	}

	for i, v := range values {
		fb := l.builder.Field(i)
		if v == nil {
			fb.AppendNull()
			continue
		}
		switch b := fb.(type) {
		case *array.Int64Builder:
			b.Append(v.(int64))
		case *array.Float64Builder:
			b.Append(v.(float64))
		case *array.StringBuilder:
			b.Append(v.(string))
		}
	}
	l.builder.Field(len(values)).(*array.BinaryBuilder).Append(geom)

	l.count++
	l.pending++
	if l.pending >= parquetBatchSize {
		return l.flush()
	}
	return nil
}

func (l *parquetLayer) flush() error {
	if l.pending == 0 {
		return nil
	}
	rec := l.builder.NewRecord()
	defer rec.Release()
	l.pending = 0
	if err := l.writer.Write(rec); err != nil {
		return fmt.Errorf("failed to write %s: %w", l.name, err)
	}
	return nil
}

func (l *parquetLayer) close() error {
	defer l.builder.Release()
	if err := l.flush(); err != nil {
		l.writer.Close()
		return err
	}
	// FileWriter.Close also closes the underlying file
	if err := l.writer.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", l.file.Name(), err)
	}
	return nil
}
