// internal/device/controller.go
package device

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"smart-home-gateway/internal/data"
	"smart-home-gateway/internal/metrics"
)

// Publisher sends a command payload to an actuator feed. Implemented by the
// MQTT bridge; nil means no broker is configured.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload string) error
}

// Topic keys in the actuator config.
const (
	TopicFan    = "fan"
	TopicSwitch = "switch"
	TopicColor  = "color"
)

// Controller issues actuator commands and tracks the last commanded state.
// State updates are optimistic: they record what was commanded, and the MQTT
// feedback feed corrects them when the device echoes something else.
type Controller struct {
	pub    Publisher
	topics map[string]string

	mu    sync.Mutex
	state data.DeviceState
	log   *ActivityLog
}

func NewController(pub Publisher, topics map[string]string, logCapacity int) *Controller {
	return &Controller{
		pub:    pub,
		topics: topics,
		log:    NewActivityLog(logCapacity),
	}
}

// SetPublisher attaches the broker connection once it is up. The controller
// and its activity log survive the swap.
func (c *Controller) SetPublisher(pub Publisher) {
	c.mu.Lock()
	c.pub = pub
	c.mu.Unlock()
}

func (c *Controller) publish(ctx context.Context, key, payload string) error {
	c.mu.Lock()
	pub := c.pub
	c.mu.Unlock()
	if pub == nil {
		return fmt.Errorf("%w: no device broker configured", data.ErrUpstreamUnavailable)
	}
	topic, ok := c.topics[key]
	if !ok {
		return fmt.Errorf("%w: no topic configured for %s", data.ErrUpstreamUnavailable, key)
	}
	if err := pub.Publish(ctx, topic, payload); err != nil {
		return fmt.Errorf("%w: publish to %s: %v", data.ErrUpstreamUnavailable, topic, err)
	}
	metrics.DeviceCommands.WithLabelValues(key).Inc()
	return nil
}

// FanOn commands the fan to the given speed, 0 (off) through 100 (max).
func (c *Controller) FanOn(ctx context.Context, speed int) error {
	if speed < 0 || speed > 100 {
		return fmt.Errorf("%w: fan speed %d out of range [0,100]", data.ErrInvalidSample, speed)
	}
	if err := c.publish(ctx, TopicFan, fmt.Sprintf("%d", speed)); err != nil {
		return err
	}
	c.mu.Lock()
	c.state.FanOn = speed > 0
	c.state.FanSpeed = speed
	c.state.UpdatedAt = time.Now()
	c.mu.Unlock()
	c.log.Record("fan", "on", fmt.Sprintf("%d", speed))
	return nil
}

func (c *Controller) FanOff(ctx context.Context) error {
	if err := c.publish(ctx, TopicFan, "0"); err != nil {
		return err
	}
	c.mu.Lock()
	c.state.FanOn = false
	c.state.FanSpeed = 0
	c.state.UpdatedAt = time.Now()
	c.mu.Unlock()
	c.log.Record("fan", "off", "0")
	return nil
}

func (c *Controller) LightOn(ctx context.Context) error {
	if err := c.publish(ctx, TopicSwitch, "1"); err != nil {
		return err
	}
	c.mu.Lock()
	c.state.LightOn = true
	c.state.UpdatedAt = time.Now()
	c.mu.Unlock()
	c.log.Record("light", "on", "1")
	return nil
}

func (c *Controller) LightOff(ctx context.Context) error {
	if err := c.publish(ctx, TopicSwitch, "0"); err != nil {
		return err
	}
	c.mu.Lock()
	c.state.LightOn = false
	c.state.UpdatedAt = time.Now()
	c.mu.Unlock()
	c.log.Record("light", "off", "0")
	return nil
}

// ChangeColor commands the LED color. Codes are passed through as the
// device expects them (the dashboard sends small integers).
func (c *Controller) ChangeColor(ctx context.Context, code string) error {
	if code == "" {
		return fmt.Errorf("%w: empty color code", data.ErrInvalidSample)
	}
	if err := c.publish(ctx, TopicColor, code); err != nil {
		return err
	}
	c.mu.Lock()
	c.state.LEDColor = code
	c.state.UpdatedAt = time.Now()
	c.mu.Unlock()
	c.log.Record("led", "colorchange", code)
	return nil
}

// State returns the last commanded device state.
func (c *Controller) State() data.DeviceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Activity returns the newest device state changes, up to limit.
func (c *Controller) Activity(limit int) []ActivityEntry {
	return c.log.Recent(limit)
}

// ApplyAck folds a feedback message from an actuator feed back into the
// tracked state. The broker echoes commands, so most acks are no-ops.
func (c *Controller) ApplyAck(key, payload string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch key {
	case TopicFan:
		var speed int
		if _, err := fmt.Sscanf(payload, "%d", &speed); err != nil || speed < 0 || speed > 100 {
			log.Printf("Ignoring fan ack with bad payload %q", payload)
			return
		}
		c.state.FanOn = speed > 0
		c.state.FanSpeed = speed
	case TopicSwitch:
		c.state.LightOn = payload == "1"
	case TopicColor:
		c.state.LEDColor = payload
	default:
		return
	}
	c.state.UpdatedAt = time.Now()
}
