package config

import (
	"github.com/kilianp07/homefix/infra/amqp"
	"github.com/kilianp07/homefix/infra/mqtt"
)

// MessagingConfig selects the outbound transports. Technician alerts go to
// MQTT, admin email and SMS to RabbitMQ. Disabled transports fall back to
// the log messenger.
type MessagingConfig struct {
	MQTTEnabled bool        `json:"mqtt_enabled"`
	MQTT        mqtt.Config `json:"mqtt"`
	AMQPEnabled bool        `json:"amqp_enabled"`
	AMQP        amqp.Config `json:"amqp"`
}

// SetDefaults applies transport defaults for enabled transports.
func (c *MessagingConfig) SetDefaults() {
	if c.MQTTEnabled {
		c.MQTT.SetDefaults()
	}
	if c.AMQPEnabled {
		c.AMQP.SetDefaults()
	}
}

// Validate checks enabled transports only.
func (c MessagingConfig) Validate() error {
	if c.MQTTEnabled {
		if err := c.MQTT.Validate(); err != nil {
			return err
		}
	}
	if c.AMQPEnabled {
		return c.AMQP.Validate()
	}
	return nil
}
