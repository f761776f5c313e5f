// Package osmread opens OSM input files and turns them into object scanners.
// PBF, XML, gzip XML and bzip2 XML are detected from the file contents.
package osmread

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync/atomic"

	"github.com/klauspost/compress/gzip"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
)

// Stdin is the input name that selects standard input
const Stdin = "-"

// ErrNotSeekable is returned when a second pass is requested over standard input
var ErrNotSeekable = errors.New("input cannot be read twice; two-pass processing needs a file, not standard input")

// Format is a detected input format
type Format int

const (
	FormatPBF Format = iota
	FormatXML
	FormatGzipXML
	FormatBzip2XML
)

func (f Format) String() string {
	switch f {
	case FormatPBF:
		return "pbf"
	case FormatXML:
		return "xml"
	case FormatGzipXML:
		return "xml.gz"
	case FormatBzip2XML:
		return "xml.bz2"
	}
	return "unknown"
}

// ScanOptions selects which object types a scanner yields
type ScanOptions struct {
	SkipNodes     bool
	SkipWays      bool
	SkipRelations bool
	// Procs is the number of PBF decoder goroutines, 0 means NumCPU
	Procs int
}

// File is an opened input that can be scanned once per pass
type File struct {
	name   string
	f      *os.File
	size   int64
	read   atomic.Int64
	passes int
}

// Open opens path, or standard input for "-"
func Open(path string) (*File, error) {
	if path == Stdin || path == "" {
		return &File{name: Stdin, f: os.Stdin}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat input: %w", err)
	}
	return &File{name: path, f: f, size: info.Size()}, nil
}

// Name returns the input path, "-" for standard input
func (f *File) Name() string {
	return f.name
}

// Size returns the input size in bytes, 0 when unknown
func (f *File) Size() int64 {
	return f.size
}

// BytesRead returns the bytes consumed by the current pass
func (f *File) BytesRead() int64 {
	return f.read.Load()
}

// Seekable reports whether the input can be scanned more than once
func (f *File) Seekable() bool {
	return f.name != Stdin
}

// Scanner starts a new pass over the input
func (f *File) Scanner(ctx context.Context, opts ScanOptions) (osm.Scanner, Format, error) {
	if f.passes > 0 {
		if !f.Seekable() {
			return nil, 0, ErrNotSeekable
		}
		if _, err := f.f.Seek(0, io.SeekStart); err != nil {
			return nil, 0, fmt.Errorf("failed to rewind input: %w", err)
		}
	}
	f.passes++
	f.read.Store(0)

	return NewScanner(ctx, &countingReader{r: f.f, n: &f.read}, opts)
}

// Close closes the input file. Standard input is left open.
func (f *File) Close() error {
	if f.name == Stdin {
		return nil
	}
	return f.f.Close()
}

// NewScanner detects the format of r and returns a scanner over it
func NewScanner(ctx context.Context, r io.Reader, opts ScanOptions) (osm.Scanner, Format, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	format, err := Detect(br)
	if err != nil {
		return nil, 0, err
	}

	var src io.Reader = br
	switch format {
	case FormatGzipXML:
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		src = gz
	case FormatBzip2XML:
		src = bzip2.NewReader(br)
	case FormatPBF:
		procs := opts.Procs
		if procs <= 0 {
			procs = runtime.NumCPU()
		}
		s := osmpbf.New(ctx, br, procs)
		s.SkipNodes = opts.SkipNodes
		s.SkipWays = opts.SkipWays
		s.SkipRelations = opts.SkipRelations
		return s, format, nil
	}

	return &filterScanner{
		Scanner: osmxml.New(ctx, src),
		opts:    opts,
	}, format, nil
}

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	bzip2Magic = []byte("BZh")
	utf8BOM    = []byte{0xef, 0xbb, 0xbf}
)

// Detect peeks at the start of r and returns the input format
func Detect(r *bufio.Reader) (Format, error) {
	head, err := r.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return 0, fmt.Errorf("failed to read input: %w", err)
	}
	if len(head) == 0 {
		return 0, errors.New("input is empty")
	}

	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return FormatGzipXML, nil
	case bytes.HasPrefix(head, bzip2Magic):
		return FormatBzip2XML, nil
	}

	text := bytes.TrimLeft(bytes.TrimPrefix(head, utf8BOM), " \t\r\n")
	if len(text) > 0 && text[0] == '<' {
		return FormatXML, nil
	}
	return FormatPBF, nil
}

// filterScanner applies ScanOptions to scanners that cannot skip by themselves
type filterScanner struct {
	osm.Scanner
	opts ScanOptions
}

func (s *filterScanner) Scan() bool {
	for s.Scanner.Scan() {
		switch s.Scanner.Object().(type) {
		case *osm.Node:
			if s.opts.SkipNodes {
				continue
			}
		case *osm.Way:
			if s.opts.SkipWays {
				continue
			}
		case *osm.Relation:
			if s.opts.SkipRelations {
				continue
			}
		}
		return true
	}
	return false
}

type countingReader struct {
	r io.Reader
	n *atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
