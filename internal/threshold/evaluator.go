// internal/threshold/evaluator.go
package threshold

import (
	"fmt"
	"log"
	"sync"
	"time"

	"smart-home-gateway/internal/config"
	"smart-home-gateway/internal/data"
)

// Rule is a compiled per-channel threshold.
type Rule struct {
	Channel    data.Channel
	Limit      float64
	Comparator string // ">" or "<"
	Cooldown   time.Duration
}

// Evaluator compares samples against configured thresholds and synthesizes
// fire alerts from external detection results. Rules are immutable after
// construction; the only mutable state is the per-key cooldown clock, which
// keeps a sustained breach from producing an alert storm.
type Evaluator struct {
	rules           map[data.Channel]Rule
	confidenceFloor float64
	fireLocation    string
	fireCooldown    time.Duration

	mu        sync.Mutex
	lastFired map[string]time.Time

	now func() time.Time
}

func NewEvaluator(cfg *config.Config) *Evaluator {
	e := &Evaluator{
		rules:           make(map[data.Channel]Rule),
		confidenceFloor: cfg.Fire.ConfidenceFloor,
		fireLocation:    cfg.Fire.Location,
		fireCooldown:    cfg.Fire.Cooldown,
		lastFired:       make(map[string]time.Time),
		now:             time.Now,
	}
	for name, r := range cfg.Thresholds.Rules {
		ch, err := data.ParseChannel(name)
		if err != nil {
			log.Printf("Skipping threshold rule for unknown channel %q", name)
			continue
		}
		if r.Comparator != ">" && r.Comparator != "<" {
			log.Printf("Skipping threshold rule for %s: bad comparator %q", ch, r.Comparator)
			continue
		}
		e.rules[ch] = Rule{Channel: ch, Limit: r.Limit, Comparator: r.Comparator, Cooldown: r.Cooldown}
	}
	return e
}

// Evaluate checks one sample against its channel's rule. It returns the
// alert to publish, or nil when there is no rule, no breach, or the channel
// is still cooling down from a previous alert.
func (e *Evaluator) Evaluate(s data.Sample) *data.AlertEvent {
	rule, ok := e.rules[s.Channel]
	if !ok {
		return nil
	}

	breached := false
	switch rule.Comparator {
	case ">":
		breached = s.Value > rule.Limit
	case "<":
		breached = s.Value < rule.Limit
	}
	if !breached {
		return nil
	}
	if !e.tryFire(string(s.Channel), rule.Cooldown) {
		return nil
	}

	log.Printf("ALERT: %s value %.2f breached threshold %.2f (%s)", s.Channel, s.Value, rule.Limit, rule.Comparator)
	return &data.AlertEvent{
		Kind:       data.KindDataThreshold,
		Message:    fmt.Sprintf("%s value %.2f breached threshold %.2f", s.Channel, s.Value, rule.Limit),
		SensorType: string(s.Channel),
		Value:      s.Value,
		Threshold:  rule.Limit,
		CreatedAt:  s.Timestamp,
	}
}

// RateAlert builds the data_threshold alert raised when a channel exceeds
// its ingest rate limit.
func (e *Evaluator) RateAlert(ch data.Channel, observed, limit int) *data.AlertEvent {
	return &data.AlertEvent{
		Kind:       data.KindDataThreshold,
		Message:    fmt.Sprintf("%s data rate %d/min exceeded limit %d/min", ch, observed, limit),
		SensorType: fmt.Sprintf("%s_data_rate", ch),
		Value:      float64(observed),
		Threshold:  float64(limit),
	}
}

// EvaluateDetections turns external fire-detection output into at most one
// fire_alert. Detections below the confidence floor are discarded, not
// alerted on.
func (e *Evaluator) EvaluateDetections(dets []data.Detection) *data.AlertEvent {
	best := -1.0
	for _, d := range dets {
		if d.Confidence >= e.confidenceFloor && d.Confidence > best {
			best = d.Confidence
		}
	}
	if best < 0 {
		return nil
	}
	if !e.tryFire("fire", e.fireCooldown) {
		return nil
	}

	log.Printf("ALERT: fire detected at %s (confidence %.2f)", e.fireLocation, best)
	return &data.AlertEvent{
		Kind:     data.KindFireAlert,
		Message:  fmt.Sprintf("Fire detected at %s", e.fireLocation),
		Location: e.fireLocation,
		Value:    best,
	}
}

// tryFire reports whether an alert for key may fire now, and if so records
// the firing time.
func (e *Evaluator) tryFire(key string, cooldown time.Duration) bool {
	if cooldown <= 0 {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	if last, ok := e.lastFired[key]; ok && now.Sub(last) < cooldown {
		return false
	}
	e.lastFired[key] = now
	return true
}
