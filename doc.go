// Package nodeflow runs a service node on a shared message bus using the
// Moleculer transit protocol (version 4). A node hosts services made of
// actions and event handlers, announces itself to the other nodes and answers
// their requests, pings and discovery messages.
//
// Every protocol subject ("MOL.REQ.<node>", "MOL.HEARTBEAT", ...) is served
// by its own channel worker. Workers decode packets with the configured
// serializer (JSON or Proto), hand them to a protocol handler and report
// handler failures to a supervisor instead of exiting. Publishing retries
// until the bus accepts the message, escalating its log level after the
// fourth failure.
//
// # Transports
//
// The bus is reached through Watermill publishers and subscribers:
//   - nats: core NATS, the default
//   - channel: a process-wide in-memory bus for tests and local runs
//   - rabbitmq: an AMQP fan-out exchange per subject
//   - kafka: one consumer group per node
//   - aws: SNS topics with an SQS queue per node
//
// A minimal node fills Config, creates a Broker, adds services and calls
// Start:
//
//	broker, err := nodeflow.NewBroker(&nodeflow.Config{NodeID: "math-1"}, logger, nodeflow.BrokerDependencies{})
//	if err != nil {
//		return err
//	}
//	_ = broker.AddService(nodeflow.NewService("math").Action(nodeflow.NewAction("add", add)))
//	return broker.Start(ctx)
//
// BrokerDependencies exposes the seams: a custom TransportFactory, an
// Observer for INFO, HEARTBEAT and DISCONNECT packets of other nodes, a
// Prometheus registerer and an OpenTelemetry tracer.
package nodeflow
