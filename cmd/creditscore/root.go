package main

import (
	"github.com/spf13/cobra"

	"creditscore/internal/config"
	"creditscore/internal/logging"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfgFile string
	cfg     config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "creditscore",
		Short: "Credit scoring pipeline and prediction service",
		Long: `creditscore extracts new loan applications, fits preprocessing artifacts,
trains and promotes a default classifier, and serves predictions over
HTTP, gRPC and Kafka.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			cfg, err := config.Load(a.cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			a.cfg = cfg
			logging.Configure(cfg.Log)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := root.PersistentFlags()
	f.StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	f.String("log-level", "", "log level (debug|info|warn|error)")
	f.Bool("log-json", false, "log as JSON")
	f.String("source-dsn", "", "postgres DSN of the application table")
	f.String("source-table", "", "application table")
	f.String("state", "", "path of the state database")
	f.String("blob-driver", "", "blob store driver (fs|s3|memory)")
	f.String("blob-root", "", "blob directory for the fs driver")
	f.String("blob-bucket", "", "bucket for the s3 driver")
	f.StringSlice("sinks", nil, "event sinks (stdout,kafka)")
	f.Int("grpc-port", 0, "gRPC port")
	f.Int("http-port", 0, "HTTP port")
	f.Int("metrics-port", 0, "metrics port")
	f.String("schema-file", "", "column schema YAML")
	f.Bool("scoring", false, "consume applications from Kafka while serving")

	root.AddCommand(
		newTrainCmd(a),
		newServeCmd(a),
		newTransformCmd(a),
		newRunsCmd(a),
	)
	return root
}
