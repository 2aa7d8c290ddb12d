package device

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-home-gateway/internal/data"
)

type fakePublisher struct {
	published []string // "topic=payload"
	fail      bool
}

func (f *fakePublisher) Publish(_ context.Context, topic, payload string) error {
	if f.fail {
		return errors.New("broker down")
	}
	f.published = append(f.published, fmt.Sprintf("%s=%s", topic, payload))
	return nil
}

var testTopics = map[string]string{
	TopicFan:    "fan",
	TopicSwitch: "switch",
	TopicColor:  "color change",
}

func TestFanOn(t *testing.T) {
	pub := &fakePublisher{}
	c := NewController(pub, testTopics, 10)

	require.NoError(t, c.FanOn(context.Background(), 75))
	assert.Equal(t, []string{"fan=75"}, pub.published)

	st := c.State()
	assert.True(t, st.FanOn)
	assert.Equal(t, 75, st.FanSpeed)
}

func TestFanSpeedValidation(t *testing.T) {
	c := NewController(&fakePublisher{}, testTopics, 10)
	assert.ErrorIs(t, c.FanOn(context.Background(), -1), data.ErrInvalidSample)
	assert.ErrorIs(t, c.FanOn(context.Background(), 101), data.ErrInvalidSample)
	// Speed 0 is a valid command meaning "off".
	require.NoError(t, c.FanOn(context.Background(), 0))
	assert.False(t, c.State().FanOn)
}

func TestFanOff(t *testing.T) {
	pub := &fakePublisher{}
	c := NewController(pub, testTopics, 10)
	require.NoError(t, c.FanOn(context.Background(), 50))
	require.NoError(t, c.FanOff(context.Background()))

	assert.Equal(t, []string{"fan=50", "fan=0"}, pub.published)
	assert.False(t, c.State().FanOn)
	assert.Equal(t, 0, c.State().FanSpeed)
}

func TestLightAndColor(t *testing.T) {
	pub := &fakePublisher{}
	c := NewController(pub, testTopics, 10)

	require.NoError(t, c.LightOn(context.Background()))
	assert.True(t, c.State().LightOn)

	require.NoError(t, c.ChangeColor(context.Background(), "3"))
	assert.Equal(t, "3", c.State().LEDColor)

	require.NoError(t, c.LightOff(context.Background()))
	assert.False(t, c.State().LightOn)

	assert.Equal(t, []string{"switch=1", "color change=3", "switch=0"}, pub.published)
}

func TestPublishFailureLeavesStateUntouched(t *testing.T) {
	c := NewController(&fakePublisher{fail: true}, testTopics, 10)
	err := c.FanOn(context.Background(), 80)
	assert.ErrorIs(t, err, data.ErrUpstreamUnavailable)
	assert.False(t, c.State().FanOn)
	assert.Empty(t, c.Activity(0))
}

func TestNoPublisherConfigured(t *testing.T) {
	c := NewController(nil, testTopics, 10)
	assert.ErrorIs(t, c.LightOn(context.Background()), data.ErrUpstreamUnavailable)
}

func TestSetPublisherKeepsControllerState(t *testing.T) {
	c := NewController(nil, testTopics, 10)
	assert.ErrorIs(t, c.FanOn(context.Background(), 50), data.ErrUpstreamUnavailable)

	// Acks received before the broker came up are retained.
	c.ApplyAck(TopicSwitch, "1")

	pub := &fakePublisher{}
	c.SetPublisher(pub)

	require.NoError(t, c.FanOn(context.Background(), 50))
	assert.Equal(t, []string{"fan=50"}, pub.published)
	assert.True(t, c.State().LightOn)

	entries := c.Activity(0)
	require.Len(t, entries, 1)
	assert.Equal(t, "fan", entries[0].Device)
}

func TestApplyAck(t *testing.T) {
	c := NewController(&fakePublisher{}, testTopics, 10)

	c.ApplyAck(TopicFan, "60")
	assert.True(t, c.State().FanOn)
	assert.Equal(t, 60, c.State().FanSpeed)

	c.ApplyAck(TopicFan, "garbage")
	assert.Equal(t, 60, c.State().FanSpeed, "bad acks are ignored")

	c.ApplyAck(TopicSwitch, "1")
	assert.True(t, c.State().LightOn)
	c.ApplyAck(TopicSwitch, "0")
	assert.False(t, c.State().LightOn)

	c.ApplyAck(TopicColor, "5")
	assert.Equal(t, "5", c.State().LEDColor)
}

func TestActivityLogNewestFirstAndBounded(t *testing.T) {
	pub := &fakePublisher{}
	c := NewController(pub, testTopics, 3)

	require.NoError(t, c.FanOn(context.Background(), 10))
	require.NoError(t, c.FanOn(context.Background(), 20))
	require.NoError(t, c.FanOn(context.Background(), 30))
	require.NoError(t, c.FanOn(context.Background(), 40)) // evicts the first

	entries := c.Activity(0)
	require.Len(t, entries, 3)
	assert.Equal(t, "40", entries[0].Value)
	assert.Equal(t, "20", entries[2].Value)

	limited := c.Activity(2)
	require.Len(t, limited, 2)
	assert.Equal(t, "40", limited[0].Value)
}
