package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/drblury/nodeflow"
)

const (
	appName    = "nodeflow"
	appVersion = "0.1.0"
)

// options are the global flags shared by every command.
type options struct {
	configPath  string
	namespace   string
	nodeID      string
	transporter string
	serializer  string
	logLevel    string
	timeout     time.Duration
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "Run and talk to nodes on a Moleculer-compatible bus",
		Long: `nodeflow runs a service node speaking the Moleculer transit protocol
over NATS, RabbitMQ, Kafka, AWS SNS/SQS or an in-memory bus. Configuration is
read from a YAML file and NODEFLOW_* environment variables; flags win.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	flags.StringVar(&opts.namespace, "namespace", "", "Bus namespace")
	flags.StringVar(&opts.nodeID, "node-id", "", "Node identifier")
	flags.StringVar(&opts.transporter, "transporter", "", "Bus backend (nats, channel, rabbitmq, kafka, aws)")
	flags.StringVar(&opts.serializer, "serializer", "", "Packet serializer (json, proto)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "Timeout for call and emit")

	rootCmd.AddCommand(newRunCommand(opts))
	rootCmd.AddCommand(newCallCommand(opts))
	rootCmd.AddCommand(newEmitCommand(opts))
	rootCmd.AddCommand(newConfigCommand(opts))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// loadConfig reads the file when given, otherwise the environment, then
// applies flag overrides and defaults.
func (o *options) loadConfig() (*nodeflow.Config, error) {
	var (
		conf *nodeflow.Config
		err  error
	)
	if o.configPath != "" {
		conf, err = nodeflow.LoadConfig(o.configPath)
	} else {
		conf, err = nodeflow.ConfigFromEnv()
	}
	if err != nil {
		return nil, err
	}

	overrides := []struct {
		value string
		field *string
	}{
		{o.namespace, &conf.Namespace},
		{o.nodeID, &conf.NodeID},
		{o.transporter, &conf.Transporter},
		{o.serializer, &conf.Serializer},
		{o.logLevel, &conf.LogLevel},
	}
	for _, ov := range overrides {
		if ov.value != "" {
			*ov.field = ov.value
		}
	}

	withDefaults := conf.WithDefaults()
	if err := nodeflow.ValidateConfig(&withDefaults); err != nil {
		return nil, err
	}
	return &withDefaults, nil
}

func newConfigCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := opts.loadConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), conf.String())
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s v%s (protocol %s)\n", appName, appVersion, nodeflow.ProtocolVersion)
		},
	}
}
