package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wegman-software/osm-waterways/internal/config"
	"github.com/wegman-software/osm-waterways/internal/logger"
	"github.com/wegman-software/osm-waterways/internal/metrics"
	"github.com/wegman-software/osm-waterways/internal/nodeindex"
	"github.com/wegman-software/osm-waterways/internal/osmread"
	"github.com/wegman-software/osm-waterways/internal/pipeline"
	"github.com/wegman-software/osm-waterways/internal/tagfilter"
)

// envPrefix is the prefix of environment variables that set flags
const envPrefix = "OSM_WATERWAYS"

var cfg = config.DefaultConfig()

var rootCmd = &cobra.Command{
	Use:   "osm-waterways",
	Short: "Extract waterways and water areas from OpenStreetMap data",
	Long: `osm-waterways extracts waterway and water-body features from OSM files
(PBF, XML, XML.gz, XML.bz2).

Commands:
  ids       write way and area ids of water features as CSV
  rivermap  write waterways, optionally with water areas, to a GIS dataset

Every flag can also be set as an environment variable, e.g.
OSM_WATERWAYS_LOCATION_STORE=dense_mmap_array.`,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := bindEnv(cmd); err != nil {
			return err
		}

		// Initialize logger with optional file output
		if cfg.LogFile != "" {
			logger.InitWithFile(cfg.Verbose, cfg.LogFile)
		} else {
			logger.Init(cfg.Verbose)
		}
		return nil
	},
}

// Execute runs the command line
func Execute() error {
	defer logger.Sync()
	err := rootCmd.Execute()
	if err != nil {
		rootCmd.PrintErrln("Error:", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfg.LogFile, "log-file", "", "Path to log file for persistent logging (JSON format)")
	rootCmd.PersistentFlags().DurationVar(&cfg.MetricsInterval, "metrics-interval", cfg.MetricsInterval, "Interval for system metrics logging, 0 disables (e.g. 10s, 1m)")
	rootCmd.PersistentFlags().DurationVar(&cfg.ProgressInterval, "progress-interval", cfg.ProgressInterval, "Interval for progress logging")
}

// bindEnv sets flags that were not given on the command line from
// OSM_WATERWAYS_<FLAG> environment variables
func bindEnv(cmd *cobra.Command) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var firstErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed || firstErr != nil || !v.IsSet(f.Name) {
			return
		}
		value := v.GetString(f.Name)
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			firstErr = sv.Replace(strings.Split(value, ","))
		} else {
			firstErr = cmd.Flags().Set(f.Name, value)
		}
		if firstErr != nil {
			firstErr = fmt.Errorf("invalid %s_%s: %w", envPrefix, strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")), firstErr)
		}
	})
	return firstErr
}

// sources are the input file and the location store of a run
type sources struct {
	cfg   *config.Config
	input *osmread.File
	store nodeindex.Store
}

// openSources opens the input and the location store. It is called before
// any output is created so that a missing input leaves nothing behind.
func openSources(c *config.Config) (*sources, error) {
	input, err := osmread.Open(c.Input)
	if err != nil {
		return nil, err
	}
	store, err := nodeindex.New(c.LocationStore)
	if err != nil {
		input.Close()
		return nil, err
	}
	return &sources{cfg: c, input: input, store: store}, nil
}

func (s *sources) Close() {
	s.store.Close()
	s.input.Close()
}

// drive runs the passes into handler, with progress and system metrics logging
func (s *sources) drive(ctx context.Context, filter *tagfilter.RuleSet, handler pipeline.Handler, withAreas bool) (*pipeline.Stats, error) {
	log := logger.Get()

	driver, err := pipeline.NewDriver(s.input, s.store, filter, handler, pipeline.Options{
		WithAreas:        withAreas,
		ProgressInterval: s.cfg.ProgressInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.input.Name(), err)
	}

	collector := metrics.NewCollector(s.cfg.MetricsInterval, log)
	metricsCtx, stopMetrics := context.WithCancel(ctx)
	go collector.Start(metricsCtx)
	defer stopMetrics()

	start := time.Now()
	stats, err := driver.Run(ctx)
	if err != nil {
		return nil, err
	}

	log.Info("Input read",
		zap.String("input", s.input.Name()),
		zap.String("bytes", pipeline.FormatBytes(stats.BytesRead)),
		zap.Int64("nodes", stats.Nodes),
		zap.Int64("ways", stats.Ways),
		zap.Int64("missing_locations", stats.MissingLocations),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
	if withAreas {
		log.Info("Areas assembled",
			zap.Int64("multipolygons", stats.Areas.Relations),
			zap.Int64("from_ways", stats.Areas.AreasFromWays),
			zap.Int64("from_relations", stats.Areas.AreasFromRelations),
			zap.Int64("failed", stats.Areas.Failed))
	}
	collector.Report()
	return stats, nil
}
