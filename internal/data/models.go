// internal/data/models.go
package data

import (
	"fmt"
	"time"
)

// Channel identifies one sensor time series.
type Channel string

const (
	ChannelTemperature Channel = "temperature"
	ChannelHumidity    Channel = "humidity"
	ChannelLight       Channel = "light"
	ChannelAirQuality  Channel = "air_quality"
)

// Channels lists every channel the gateway tracks, in a stable order.
var Channels = []Channel{ChannelTemperature, ChannelHumidity, ChannelLight, ChannelAirQuality}

// channelAliases maps the short route/feed names used by devices and the
// dashboard (e.g. /sensor/temp/latest) onto canonical channel names.
var channelAliases = map[string]Channel{
	"temp":        ChannelTemperature,
	"temperature": ChannelTemperature,
	"humid":       ChannelHumidity,
	"humidity":    ChannelHumidity,
	"light":       ChannelLight,
	"air":         ChannelAirQuality,
	"air_quality": ChannelAirQuality,
	"airquality":  ChannelAirQuality,
}

// ParseChannel resolves a route segment or feed name to a channel.
func ParseChannel(name string) (Channel, error) {
	if ch, ok := channelAliases[name]; ok {
		return ch, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChannel, name)
}

// Sample is one sensor reading. Immutable once stored.
type Sample struct {
	Channel   Channel   `json:"channel"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// StatSnapshot holds rolling statistics over a sample window. Derived on
// demand, never persisted. For an empty window Current/Min/Max/Median are 0
// and Avg/StdDev are NaN so callers can render "N/A" instead of a
// misleading zero.
type StatSnapshot struct {
	Current float64
	Min     float64
	Max     float64
	Avg     float64
	Median  float64
	StdDev  float64
	Count   int
}

// AlertKind distinguishes notification types on the wire.
type AlertKind string

const (
	KindFireAlert     AlertKind = "fire_alert"
	KindDataThreshold AlertKind = "data_threshold"
)

// AlertEvent is a single notification. Owned by the alerting hub once
// published; the hub mutates Read and evicts the oldest events beyond its
// capacity.
type AlertEvent struct {
	ID         string    `json:"id"`
	Kind       AlertKind `json:"type"`
	Message    string    `json:"message"`
	SensorType string    `json:"sensor_type,omitempty"`
	Value      float64   `json:"value"`
	Threshold  float64   `json:"threshold"`
	Location   string    `json:"location,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Read       bool      `json:"read"`
}

// Data returns the kind-specific payload the notification WebSocket sends.
func (e AlertEvent) Data() map[string]any {
	switch e.Kind {
	case KindFireAlert:
		return map[string]any{"location": e.Location}
	default:
		return map[string]any{
			"sensor_type": e.SensorType,
			"value":       e.Value,
			"threshold":   e.Threshold,
		}
	}
}

// Detection is one bounding box returned by the external fire-detection
// service.
type Detection struct {
	BBox       [4]float64 `json:"bbox"`
	Class      string     `json:"class"`
	Confidence float64    `json:"confidence"`
}

// DeviceState is the last-known commanded state of the actuators. It is
// optimistic: it reflects acknowledged commands, not physical truth.
type DeviceState struct {
	FanOn     bool      `json:"fan_on"`
	FanSpeed  int       `json:"fan_speed"`
	LightOn   bool      `json:"light_on"`
	LEDColor  string    `json:"led_color"`
	UpdatedAt time.Time `json:"updated_at"`
}
