// internal/ingest/gateway.go
package ingest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"smart-home-gateway/internal/alerting"
	"smart-home-gateway/internal/data"
	"smart-home-gateway/internal/metrics"
	"smart-home-gateway/internal/storage"
	"smart-home-gateway/internal/threshold"
)

const rateWindow = time.Minute

// Gateway is the single write path into the store. Every reading goes
// through parse/validate, append, threshold check, alert publish — in that
// order, serialized per channel, so a sample is never visible to stats
// before its alert check has run.
type Gateway struct {
	store        *storage.MemoryStore
	eval         *threshold.Evaluator
	hub          *alerting.Hub
	maxPerMinute int

	mu    sync.Mutex
	rates map[data.Channel]*rateState
}

type rateState struct {
	times     []time.Time // ingest attempts within the rolling window
	alertedAt time.Time
}

func NewGateway(store *storage.MemoryStore, eval *threshold.Evaluator, hub *alerting.Hub, maxPerMinute int) *Gateway {
	return &Gateway{
		store:        store,
		eval:         eval,
		hub:          hub,
		maxPerMinute: maxPerMinute,
		rates:        make(map[data.Channel]*rateState),
	}
}

// Ingest accepts a raw reading as it arrives from a device or translator:
// channel by route/feed name, value possibly string-typed, timestamp
// optional ISO8601.
func (g *Gateway) Ingest(channelName string, rawValue, rawTimestamp any) error {
	ch, err := data.ParseChannel(channelName)
	if err != nil {
		metrics.SamplesRejected.WithLabelValues("unknown_channel").Inc()
		return err
	}
	now := time.Now()
	value, err := data.ParseValue(rawValue)
	if err != nil {
		metrics.SamplesRejected.WithLabelValues("invalid_value").Inc()
		return err
	}
	ts, err := data.ParseTimestamp(rawTimestamp, now)
	if err != nil {
		metrics.SamplesRejected.WithLabelValues("invalid_timestamp").Inc()
		return err
	}
	return g.IngestSample(ch, value, ts)
}

// IngestSample runs the validated write path for one typed sample.
func (g *Gateway) IngestSample(ch data.Channel, value float64, ts time.Time) error {
	if err := g.checkRate(ch); err != nil {
		metrics.SamplesRejected.WithLabelValues("rate_limited").Inc()
		return err
	}

	if err := g.store.Append(ch, value, ts); err != nil {
		metrics.SamplesRejected.WithLabelValues("invalid_sample").Inc()
		return err
	}
	metrics.SamplesIngested.WithLabelValues(string(ch)).Inc()

	if alert := g.eval.Evaluate(data.Sample{Channel: ch, Value: value, Timestamp: ts}); alert != nil {
		g.hub.Publish(*alert)
		metrics.AlertsPublished.WithLabelValues(string(alert.Kind)).Inc()
	}
	return nil
}

// PublishDetections feeds external fire-detection results through the
// evaluator and hub.
func (g *Gateway) PublishDetections(dets []data.Detection) *data.AlertEvent {
	alert := g.eval.EvaluateDetections(dets)
	if alert == nil {
		return nil
	}
	published := g.hub.Publish(*alert)
	metrics.AlertsPublished.WithLabelValues(string(published.Kind)).Inc()
	return &published
}

// checkRate enforces the per-channel rolling window. All ingest attempts
// count toward the window, so a flooding device stays limited instead of
// oscillating. Crossing the limit raises its own data_threshold alert, at
// most once per window.
func (g *Gateway) checkRate(ch data.Channel) error {
	if g.maxPerMinute <= 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.rates[ch]
	if !ok {
		st = &rateState{}
		g.rates[ch] = st
	}

	now := time.Now()
	cutoff := now.Add(-rateWindow)
	kept := st.times[:0]
	for _, t := range st.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	st.times = append(kept, now)

	if len(st.times) <= g.maxPerMinute {
		return nil
	}

	if now.Sub(st.alertedAt) >= rateWindow {
		st.alertedAt = now
		alert := g.eval.RateAlert(ch, len(st.times), g.maxPerMinute)
		g.hub.Publish(*alert)
		metrics.AlertsPublished.WithLabelValues(string(alert.Kind)).Inc()
	}
	return fmt.Errorf("%w: %s exceeded %d samples per minute", data.ErrRateLimited, ch, g.maxPerMinute)
}

// IsRejection reports whether an ingest error is a per-sample rejection (as
// opposed to an internal failure), so callers can keep going on bulk input.
func IsRejection(err error) bool {
	return errors.Is(err, data.ErrInvalidSample) ||
		errors.Is(err, data.ErrUnknownChannel) ||
		errors.Is(err, data.ErrRateLimited)
}
