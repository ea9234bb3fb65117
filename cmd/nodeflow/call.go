package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/drblury/nodeflow"
)

func newCallCommand(opts *options) *cobra.Command {
	var meta string
	cmd := &cobra.Command{
		Use:   "call <node> <action> [params]",
		Short: "Call an action on a node and print the result",
		Example: `  nodeflow call math-1 math.add '{"a":1,"b":2}'
  nodeflow call math-1 '$node.health'`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := ""
			if len(args) == 3 {
				params = args[2]
			}
			if err := requireJSON("params", params); err != nil {
				return err
			}
			if err := requireJSON("meta", meta); err != nil {
				return err
			}
			return withClient(cmd, opts, func(ctx context.Context, broker *nodeflow.Broker) error {
				out, err := broker.Call(ctx, args[0], args[1], bytesOrNil(params), bytesOrNil(meta))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().StringVar(&meta, "meta", "", "JSON meta sent with the call")
	return cmd
}

func newEmitCommand(opts *options) *cobra.Command {
	var (
		groups    []string
		broadcast bool
	)
	cmd := &cobra.Command{
		Use:   "emit <node> <event> [data]",
		Short: "Send an event to a node",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			data := ""
			if len(args) == 3 {
				data = args[2]
			}
			if err := requireJSON("data", data); err != nil {
				return err
			}
			return withClient(cmd, opts, func(ctx context.Context, broker *nodeflow.Broker) error {
				if broadcast {
					return broker.Broadcast(ctx, args[0], args[1], bytesOrNil(data))
				}
				return broker.Emit(ctx, args[0], args[1], bytesOrNil(data), groups)
			})
		},
	}
	cmd.Flags().StringSliceVar(&groups, "group", nil, "Only run the handlers of these services")
	cmd.Flags().BoolVar(&broadcast, "broadcast", false, "Flag the event as a broadcast")
	return cmd
}

func withClient(cmd *cobra.Command, opts *options, fn func(context.Context, *nodeflow.Broker) error) error {
	conf, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := nodeflow.NewTextServiceLogger(cmd.ErrOrStderr(), conf.LogLevel)

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	broker, stop, err := startClient(ctx, conf, logger)
	if err != nil {
		return err
	}
	defer stop()
	return fn(ctx, broker)
}

func requireJSON(name, value string) error {
	if value != "" && !nodeflow.Valid([]byte(value)) {
		return fmt.Errorf("%s must be valid JSON", name)
	}
	return nil
}

func bytesOrNil(value string) []byte {
	if value == "" {
		return nil
	}
	return []byte(value)
}

func printJSON(w io.Writer, data []byte) error {
	if data == nil {
		_, err := fmt.Fprintln(w, "null")
		return err
	}
	var v any
	if err := nodeflow.Unmarshal(data, &v); err != nil {
		return err
	}
	pretty, err := nodeflow.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(pretty))
	return err
}
