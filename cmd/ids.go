package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/osm-waterways/internal/config"
	"github.com/wegman-software/osm-waterways/internal/emitter"
	"github.com/wegman-software/osm-waterways/internal/logger"
)

var idsCmd = &cobra.Command{
	Use:   "ids <input> <ways.csv> <areas.csv> [rules-file]",
	Short: "Write ids of water ways and areas as CSV",
	Long: `Read the input twice and write two CSV files without header:

  ways.csv   id,value,node_id,... for ways tagged waterway, natural or landuse
  areas.csv  id,value,node_id,... for areas assembled from closed ways and
             multipolygon relations (outer ring nodes only)

value is the value of the first of waterway, natural and landuse present
(natural and landuse for areas). Ways tagged natural or landuse go to the
areas file. The rules file (text, .yaml/.yml or .lua) and --rule select the
objects; without either the built-in water rules are used.`,
	Args: cobra.RangeArgs(3, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg.Input = args[0]
		cfg.WaysFile = args[1]
		cfg.AreasFile = args[2]
		if len(args) == 4 {
			cfg.RulesFile = args[3]
		}
		if err := cfg.Validate(config.ModeIDs); err != nil {
			return err
		}
		cmd.SilenceUsage = true
		return runIDs(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(idsCmd)

	idsCmd.Flags().StringArrayVarP(&cfg.RuleExprs, "rule", "R", nil, "Rule expression [!]key[=value], repeatable")
	idsCmd.Flags().StringVarP(&cfg.LocationStore, "location_store", "l", cfg.LocationStore, "Location store TYPE[,PATH] (see rivermap -L)")
}

// runIDs writes the CSV id lists. Rules and input are opened before the
// outputs are created.
func runIDs(ctx context.Context, c *config.Config) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.Get()

	rules, err := c.Rules()
	if err != nil {
		return err
	}
	log.Debug("Rules loaded", zap.Int("rules", rules.Len()))

	src, err := openSources(c)
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := emitter.Open(rules, c.WaysFile, c.AreasFile)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if _, err := src.drive(ctx, rules, out, true); err != nil {
		return err
	}

	stats := out.Stats()
	log.Info("Ids written",
		zap.String("ways_file", c.WaysFile),
		zap.Int64("ways", stats.WayRecords),
		zap.String("areas_file", c.AreasFile),
		zap.Int64("areas", stats.AreaRecords))
	return nil
}
