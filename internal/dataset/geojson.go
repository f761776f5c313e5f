package dataset

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"

	"github.com/wegman-software/osm-waterways/internal/proj"
)

// geojsonDataset writes one FeatureCollection file per layer into a directory
type geojsonDataset struct {
	dir    string
	srid   int
	layers []*geojsonLayer
}

func openGeoJSON(_ context.Context, opts Options) (Dataset, error) {
	if err := os.MkdirAll(opts.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &geojsonDataset{dir: opts.Path, srid: opts.SRID}, nil
}

func (d *geojsonDataset) CreateLayer(name string, geomType GeometryType, fields []Field) (Layer, error) {
	s, err := newSchema(name, geomType, fields)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(d.dir, name+".geojson")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create layer file: %w", err)
	}

	l := &geojsonLayer{schema: s, file: f, w: bufio.NewWriterSize(f, 256*1024)}
	quoted, _ := json.Marshal(name)
	l.w.WriteString(`{"type":"FeatureCollection","name":`)
	l.w.Write(quoted)
	if d.srid != proj.SRID4326 {
		fmt.Fprintf(l.w, `,"crs":{"type":"name","properties":{"name":"urn:ogc:def:crs:EPSG::%d"}}`, d.srid)
	}
	l.w.WriteString(`,"features":[`)

	d.layers = append(d.layers, l)
	return l, nil
}

func (d *geojsonDataset) Close() error {
	var firstErr error
	for _, l := range d.layers {
		if err := l.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type geojsonLayer struct {
	*schema
	file  *os.File
	w     *bufio.Writer
	count int64
}

func (l *geojsonLayer) Name() string { return l.name }

func (l *geojsonLayer) Count() int64 { return l.count }

func (l *geojsonLayer) Add(f Feature) error {
	values, err := l.normalize(f)
	if err != nil {
		return err
	}

	feature := geojson.NewFeature(f.Geometry)
	for i, field := range l.fields {
		feature.Properties[field.Name] = values[i]
	}
	data, err := feature.MarshalJSON()
	if err != nil {
		return fmt.Errorf("layer %s: failed to encode feature: %w", l.name, err)
	}

	if l.count > 0 {
		l.w.WriteByte(',')
	}
	l.w.WriteByte('\n')
	if _, err := l.w.Write(data); err != nil {
		return fmt.Errorf("failed to write to %s: %w", l.file.Name(), err)
	}
	l.count++
	return nil
}

func (l *geojsonLayer) close() error {
	l.w.WriteString("\n]}\n")
	err := l.w.Flush()
	if cerr := l.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to finish %s: %w", l.file.Name(), err)
	}
	return nil
}
