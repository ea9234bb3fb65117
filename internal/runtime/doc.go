/*
Package runtime hosts the node broker of nodeflow.

# Architecture Overview

A Broker owns one bus connection and the services it hosts. Start binds one
channel worker per protocol subject, announces the node with DISCOVER and
INFO, broadcasts HEARTBEAT packets and, once its context ends, says goodbye
with DISCONNECT before closing the connection.

# Package Structure

## Broker (broker.go, calls.go)

NewBroker validates the configuration and AddService registers services
before Start. Call sends a REQ packet to one node and waits for the matching
RES; Emit and Broadcast send EVENT packets.

## Hooks (hooks.go)

NodeHooks turns plain functions into a channel.Observer so callers can track
other nodes. LoggingHooks logs every node announcement.

## Status (http.go, resources.go)

With metrics enabled, the broker serves /metrics and a small JSON status API
(/api/workers, /api/services, /api/subjects) on MetricsPort. Heartbeats carry
the process CPU usage sampled by resources.go.

# Sub-packages

  - channel/: per-subject workers, their supervisor and status registry
  - config/: node configuration, YAML and environment loading
  - errors/: sentinel errors and typed failures
  - ids/: ULID generation for context ids
  - jsoncodec/: JSON marshaling utilities
  - logging/: logger interface and adapters
  - metrics/: Prometheus collectors per subject
  - protocol/: packet types and subject naming
  - serializer/: JSON and Proto packet codecs
  - service/: services, actions, events and the call Context
  - transport/: the bus connection with publish retry

# Usage Example

	conf := &config.Config{
		Namespace:      "staging",
		NodeID:         "math-1",
		Transporter:    "nats",
		MetricsEnabled: true,
		MetricsPort:    9090,
	}

	broker, err := runtime.NewBroker(conf, logger, runtime.BrokerDependencies{
		Observer: runtime.LoggingHooks(logger),
	})
	if err != nil {
		return err
	}
	_ = broker.AddService(service.New("math").Action(service.NewAction("add", add)))
	return broker.Start(ctx)
*/
package runtime
