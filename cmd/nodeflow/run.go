package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/drblury/nodeflow"
)

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a node until interrupted",
		Long: `Run joins the bus, answers PING and DISCOVER, hosts the $node service
and logs the other nodes it sees. It stops on SIGINT or SIGTERM after
announcing DISCONNECT.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger := nodeflow.NewTextServiceLogger(cmd.ErrOrStderr(), conf.LogLevel)

			broker, err := nodeflow.NewBroker(conf, logger, nodeflow.BrokerDependencies{
				Observer: nodeflow.LoggingHooks(logger),
			})
			if err != nil {
				return err
			}
			if err := broker.AddService(nodeService(broker, time.Now())); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return broker.Start(ctx)
		},
	}
}

// nodeService answers introspection calls about the running node.
func nodeService(broker *nodeflow.Broker, startedAt time.Time) *nodeflow.Service {
	health := func(nodeflow.Context) ([]byte, error) {
		return nodeflow.Marshal(map[string]any{
			"nodeID":     broker.NodeID(),
			"instanceID": broker.InstanceID(),
			"uptime":     time.Since(startedAt).Round(time.Second).String(),
			"workers":    len(broker.Workers()),
		})
	}
	services := func(nodeflow.Context) ([]byte, error) {
		return nodeflow.Marshal(broker.Services())
	}
	workers := func(nodeflow.Context) ([]byte, error) {
		return nodeflow.Marshal(broker.Workers())
	}
	return nodeflow.NewService("$node").
		Action(nodeflow.NewAction("health", health)).
		Action(nodeflow.NewAction("services", services)).
		Action(nodeflow.NewAction("workers", workers))
}

// startClient runs a short-lived node for one call or emit. The returned
// function stops it and waits for the DISCONNECT.
func startClient(ctx context.Context, conf *nodeflow.Config, logger nodeflow.ServiceLogger) (*nodeflow.Broker, func(), error) {
	client := *conf
	client.NodeID = clientNodeID(conf.NodeID)

	broker, err := nodeflow.NewBroker(&client, logger, nodeflow.BrokerDependencies{})
	if err != nil {
		return nil, nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- broker.Start(runCtx) }()

	select {
	case <-broker.Ready():
	case err := <-done:
		cancel()
		return nil, nil, err
	case <-ctx.Done():
		cancel()
		<-done
		return nil, nil, ctx.Err()
	}

	stop := func() {
		cancel()
		if err := <-done; err != nil {
			logger.Warn("Client node stopped with error", err, nil)
		}
	}
	return broker, stop, nil
}

func clientNodeID(base string) string {
	return fmt.Sprintf("%s-cli-%s", base, strings.ToLower(nodeflow.CreateULID()[20:]))
}
