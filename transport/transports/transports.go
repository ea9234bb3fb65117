// Package transports imports every built-in backend so that they register
// with the default registry.
package transports

import (
	_ "github.com/drblury/nodeflow/transport/aws"
	_ "github.com/drblury/nodeflow/transport/channel"
	_ "github.com/drblury/nodeflow/transport/kafka"
	_ "github.com/drblury/nodeflow/transport/nats"
	_ "github.com/drblury/nodeflow/transport/rabbitmq"
)
