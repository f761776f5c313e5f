package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/osm-waterways/internal/config"
	"github.com/wegman-software/osm-waterways/internal/dataset"
	"github.com/wegman-software/osm-waterways/internal/logger"
	"github.com/wegman-software/osm-waterways/internal/nodeindex"
	"github.com/wegman-software/osm-waterways/internal/proj"
	"github.com/wegman-software/osm-waterways/internal/rivermap"
	"github.com/wegman-software/osm-waterways/internal/rsystem"
)

var listLocationStores bool

var rivermapCmd = &cobra.Command{
	Use:   "rivermap [INFILE [OUTFILE]]",
	Short: "Write waterways to a GIS dataset",
	Long: `Write ways tagged waterway to the layer "waterway" with the fields
id, name, type and rsystem. With --areas, water areas assembled from closed
ways and multipolygon relations go to the layer "water".

INFILE defaults to standard input ("-"), OUTFILE to "ogr_out". Reading
standard input is only possible without --areas.

Output formats: SQLite (default), GeoJSON, Parquet, PostgreSQL. For
PostgreSQL OUTFILE is "PG:<connection string>".`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if listLocationStores {
			printLocationStores(cmd.OutOrStdout())
			return nil
		}
		if len(args) > 0 {
			cfg.Input = args[0]
		}
		if len(args) > 1 {
			cfg.OutputFile = args[1]
		}
		if err := cfg.Validate(config.ModeRiverMap); err != nil {
			return err
		}
		cmd.SilenceUsage = true
		return runRiverMap(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(rivermapCmd)

	f := rivermapCmd.Flags()
	f.StringVarP(&cfg.OutputFormat, "format", "f", cfg.OutputFormat, "Output format (SQLite, GeoJSON, Parquet, PostgreSQL)")
	f.StringVarP(&cfg.LocationStore, "location_store", "l", cfg.LocationStore, "Location store TYPE[,PATH]")
	f.BoolVarP(&listLocationStores, "list-location-stores", "L", false, "List location store types and exit")
	f.StringVarP(&cfg.RiverSystemsFile, "riversystems", "r", "", "CSV file with id,rsystem")
	f.BoolVar(&cfg.WithAreas, "areas", false, "Also write water areas (reads the input twice)")
	f.StringVar(&cfg.RulesFile, "rules", "", "Rules file (text, .yaml/.yml or .lua)")
	f.StringVarP(&cfg.Projection, "projection", "E", cfg.Projection, "Target projection SRID (4326 or 3857)")
}

func printLocationStores(w io.Writer) {
	fmt.Fprintln(w, "Available location store types:")
	for _, t := range nodeindex.Types() {
		fmt.Fprintf(w, "  %-18s %s\n", t, nodeindex.Describe(t))
	}
}

// runRiverMap writes the dataset. All configuration is loaded before the
// dataset is created.
func runRiverMap(ctx context.Context, c *config.Config) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.Get()

	rules, err := c.Rules()
	if err != nil {
		return err
	}

	var systems *rsystem.Map
	if c.RiverSystemsFile != "" {
		if systems, err = rsystem.Load(c.RiverSystemsFile); err != nil {
			return err
		}
		log.Info("River systems loaded",
			zap.Int("ways", systems.Len()),
			zap.Int("systems", systems.Systems()))
	}

	srid, err := c.SRID()
	if err != nil {
		return err
	}
	transform, err := proj.NewTransformer(srid)
	if err != nil {
		return err
	}

	src, err := openSources(c)
	if err != nil {
		return err
	}
	defer src.Close()

	ds, err := dataset.Open(ctx, dataset.Options{Format: c.OutputFormat, Path: c.OutputFile, SRID: srid})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ds.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to finish %s: %w", c.OutputFile, cerr)
		}
	}()

	handler, err := rivermap.New(ds, rules, rivermap.Options{
		Systems:   systems,
		Transform: transform,
		WithAreas: c.WithAreas,
	})
	if err != nil {
		return err
	}

	if _, err := src.drive(ctx, rules, handler, c.WithAreas); err != nil {
		return err
	}

	stats := handler.Stats()
	log.Info("Dataset written",
		zap.String("output", c.OutputFile),
		zap.String("format", c.OutputFormat),
		zap.Int64("waterways", stats.Waterways),
		zap.Int64("water", stats.Water),
		zap.Int64("illegal_geometries", stats.IllegalGeometry))
	return nil
}
