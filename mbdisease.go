package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"mbdisease/pkg"
)

var logLevel string
var logFormat string
var runParameters pkg.RunParameters

func RunCommand(mode, short string) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   mode,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := runParameters
			p.Mode = mode
			report, err := pkg.Run(cmd.Context(), p)
			if err != nil {
				return err
			}
			log.Info().Int("Labels", len(report.Results)).Int("Failed", len(report.LabelErrors)).Msg("done")
			return nil
		},
	}
	return cmd
}

func CleanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Removes the temp and out data directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pkg.Clean(runParameters)
			return nil
		},
	}
}

func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:               "mbdisease",
		Short:             "Predicts cohort disease labels from microbiome features, one classifier per label",
		PersistentPreRunE: setupLogging,
		SilenceUsage:      true,
	}

	root.PersistentFlags().StringVarP(&logLevel, "log-level", "", "info", "Logging level: info error or debug")
	root.PersistentFlags().StringVarP(&logFormat, "log-format", "", "pretty", "Logging format: pretty or json")
	root.PersistentFlags().StringVarP(&runParameters.ConfigDir, "config-dir", "c", "config", "directory holding the parameter files")
	root.PersistentFlags().StringVarP(&runParameters.DataDir, "data-dir", "d", "data", "directory holding the temp and out directories")
	root.PersistentFlags().StringVarP(&runParameters.TestDataDir, "test-data-dir", "", "test/testdata", "directory holding the test metadata and feature table")

	root.AddCommand(RunCommand(pkg.ModeTest, "Runs the pipeline on the bundled test data"))
	root.AddCommand(RunCommand(pkg.ModeAll, "Runs the pipeline on the data named in data-params"))
	root.AddCommand(CleanCommand())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func setupLogging(cmd *cobra.Command, args []string) error {

	switch logLevel {
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	default:
		return fmt.Errorf("invalid logging level %q", logLevel)
	}

	switch logFormat {
	case "pretty":
		setupPrettyLogging()
	case "json":
	default:
		return fmt.Errorf("invalid log format %q", logFormat)
	}
	return nil
}

func setupPrettyLogging() {
	writer := zerolog.ConsoleWriter{Out: os.Stderr}
	writer.FormatFieldValue = func(i interface{}) string {
		switch v := i.(type) {
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return strconv.FormatInt(n, 10)
			}
			val, _ := v.Float64()
			return fmt.Sprintf("%.3f", val)
		default:
			return fmt.Sprintf("%s", i)
		}

	}
	log.Logger = log.Output(writer)

}
