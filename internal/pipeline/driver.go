package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/paulmach/osm"
	"go.uber.org/zap"

	"github.com/wegman-software/osm-waterways/internal/area"
	"github.com/wegman-software/osm-waterways/internal/element"
	"github.com/wegman-software/osm-waterways/internal/logger"
	"github.com/wegman-software/osm-waterways/internal/nodeindex"
	"github.com/wegman-software/osm-waterways/internal/osmread"
	"github.com/wegman-software/osm-waterways/internal/tagfilter"
)

// Options configures a Driver
type Options struct {
	// WithAreas enables pass 1 and area assembly. Without it the input is
	// read once and Handler.Area is never called.
	WithAreas bool
	// Procs is the number of PBF decoder goroutines, 0 means NumCPU
	Procs int
	// ProgressInterval is the interval between progress log lines, 0 means 5s
	ProgressInterval time.Duration
}

// Driver runs the relation pass and the main pass over one input
type Driver struct {
	opts    Options
	input   *osmread.File
	store   nodeindex.Store
	manager *area.Manager
	handler Handler

	relations atomic.Int64
	nodes     atomic.Int64
	ways      atomic.Int64
	missing   int64
}

// NewDriver creates a driver. filter selects the relations and closed ways
// that become areas; it is unused when areas are disabled.
func NewDriver(input *osmread.File, store nodeindex.Store, filter *tagfilter.RuleSet, handler Handler, opts Options) (*Driver, error) {
	if opts.WithAreas && !input.Seekable() {
		return nil, osmread.ErrNotSeekable
	}

	d := &Driver{
		opts:    opts,
		input:   input,
		store:   store,
		handler: handler,
	}
	if opts.WithAreas {
		d.manager = area.NewManager(filter)
	}
	return d, nil
}

// Run reads the input and dispatches ways and areas to the handler
func (d *Driver) Run(ctx context.Context) (*Stats, error) {
	log := logger.Get()

	if d.manager != nil {
		log.Info("Pass 1: Reading relations")
		start := time.Now()
		if err := d.readRelations(ctx); err != nil {
			return nil, fmt.Errorf("pass 1: %w", err)
		}
		log.Info("Pass 1 complete",
			zap.Int64("relations", d.relations.Load()),
			zap.Int64("multipolygons", d.manager.Stats().Relations),
			zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
	}

	log.Info("Pass 2: Reading nodes and ways")
	start := time.Now()
	if err := d.readObjects(ctx); err != nil {
		return nil, fmt.Errorf("pass 2: %w", err)
	}
	log.Info("Pass 2 complete",
		zap.Int64("nodes", d.nodes.Load()),
		zap.Int64("ways", d.ways.Load()),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))

	stats := &Stats{
		Relations:        d.relations.Load(),
		Nodes:            d.nodes.Load(),
		Ways:             d.ways.Load(),
		MissingLocations: d.missing,
		BytesRead:        d.input.BytesRead(),
	}
	if d.manager != nil {
		stats.Areas = d.manager.Stats()
		stats.Incomplete = d.manager.Incomplete()
		if len(stats.Incomplete) > 0 {
			log.Warn("Some member ways missing for these multipolygon relations",
				zap.Int64s("relations", stats.Incomplete))
		}
	}
	return stats, nil
}

func (d *Driver) readRelations(ctx context.Context) error {
	scanner, format, err := d.input.Scanner(ctx, osmread.ScanOptions{
		SkipNodes: true,
		SkipWays:  true,
		Procs:     d.opts.Procs,
	})
	if err != nil {
		return err
	}
	defer scanner.Close()
	logger.Get().Debug("Input format detected", zap.Stringer("format", format))

	stop := d.startProgress(ctx, "relations", &d.relations)
	defer stop()

	for scanner.Scan() {
		rel, ok := scanner.Object().(*osm.Relation)
		if !ok {
			continue
		}
		if d.relations.Add(1)%10_000 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		d.manager.Relation(rel)
	}
	return scanner.Err()
}

func (d *Driver) readObjects(ctx context.Context) error {
	scanner, _, err := d.input.Scanner(ctx, osmread.ScanOptions{
		SkipRelations: true,
		Procs:         d.opts.Procs,
	})
	if err != nil {
		return err
	}
	defer scanner.Close()

	stop := d.startProgress(ctx, "ways", &d.ways)
	defer stop()

	// Reused across ways; handlers must not retain it
	way := &element.Way{Nodes: make([]element.NodeRef, 0, 2000)}

	for scanner.Scan() {
		switch o := scanner.Object().(type) {
		case *osm.Node:
			if d.nodes.Add(1)%100_000 == 0 && ctx.Err() != nil {
				return ctx.Err()
			}
			if err := d.store.Put(int64(o.ID), o.Lat, o.Lon); err != nil {
				return fmt.Errorf("failed to store node %d: %w", o.ID, err)
			}

		case *osm.Way:
			if d.ways.Add(1)%10_000 == 0 && ctx.Err() != nil {
				return ctx.Err()
			}
			d.resolve(o, way)
			if err := d.handler.Way(way); err != nil {
				return err
			}
			if d.manager != nil {
				if err := d.manager.Way(way, d.handler.Area); err != nil {
					return err
				}
			}
		}
	}
	return scanner.Err()
}

// resolve fills w from o, looking up node locations. Nodes without a
// location are kept and marked invalid.
func (d *Driver) resolve(o *osm.Way, w *element.Way) {
	w.ID = int64(o.ID)
	w.Tags = o.Tags
	w.Nodes = w.Nodes[:0]
	for _, n := range o.Nodes {
		ref := element.NodeRef{ID: int64(n.ID)}
		ref.Lat, ref.Lon, ref.Valid = d.store.Get(ref.ID)
		if !ref.Valid {
			d.missing++
		}
		w.Nodes = append(w.Nodes, ref)
	}
}

// startProgress logs read progress in the background until the returned
// function is called
func (d *Driver) startProgress(ctx context.Context, unit string, count *atomic.Int64) func() {
	ctx, cancel := context.WithCancel(ctx)
	tracker := NewProgressTracker(d.input.Size(), unit)
	log := logger.Get()

	ticker := NewProgressTicker(ctx, d.opts.ProgressInterval, func() {
		p := tracker.Calculate(count.Load(), d.input.BytesRead())
		fields := []zap.Field{
			zap.Int64(unit, p.Current),
			zap.String("rate", FormatThroughput(p.Throughput)),
			zap.String("read", FormatBytes(d.input.BytesRead())),
		}
		if p.Total > 0 {
			fields = append(fields,
				zap.String("progress", fmt.Sprintf("%.1f%%", p.Percentage)),
				zap.String("eta", FormatETA(p.ETA)))
		}
		log.Info("Progress", fields...)
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker.Run()
	}()
	return func() {
		cancel()
		<-done
	}
}
