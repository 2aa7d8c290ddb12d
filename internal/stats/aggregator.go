// internal/stats/aggregator.go
package stats

import (
	"math"
	"sort"
	"time"

	"smart-home-gateway/internal/data"
	"smart-home-gateway/internal/storage"
)

// Aggregator computes rolling statistics over sample windows.
//
// Two conventions here match the dashboard's statistics panels and must not
// be "fixed" independently of them: the median is the element at index
// floor(k/2) of the ascending sort (upper median for even k, not the mean
// of the two middles), and the standard deviation is the population form
// (divide by k, not k-1).
type Aggregator struct {
	store *storage.MemoryStore
}

func NewAggregator(store *storage.MemoryStore) *Aggregator {
	return &Aggregator{store: store}
}

// Stats computes statistics over the samples of the trailing window. A
// window <= 0 means the whole retained buffer, which takes the incremental
// path: avg and stddev come from the store's running sums instead of a
// rescan.
func (a *Aggregator) Stats(ch data.Channel, window time.Duration) (data.StatSnapshot, error) {
	if window <= 0 {
		samples, sum, sumSq, err := a.store.SnapshotWithSums(ch)
		if err != nil {
			return data.StatSnapshot{}, err
		}
		return computeWithSums(samples, sum, sumSq), nil
	}
	cutoff := time.Now().Add(-window)
	samples, err := a.store.Range(ch, cutoff, time.Time{})
	if err != nil {
		return data.StatSnapshot{}, err
	}
	return Compute(samples), nil
}

// StatsN computes statistics over the most recent n samples.
func (a *Aggregator) StatsN(ch data.Channel, n int) (data.StatSnapshot, error) {
	samples, err := a.store.Recent(ch, n)
	if err != nil {
		return data.StatSnapshot{}, err
	}
	return Compute(samples), nil
}

// Compute derives a snapshot from an oldest-first sample window.
func Compute(samples []data.Sample) data.StatSnapshot {
	var sum, sumSq float64
	for _, s := range samples {
		sum += s.Value
		sumSq += s.Value * s.Value
	}
	return computeWithSums(samples, sum, sumSq)
}

func computeWithSums(samples []data.Sample, sum, sumSq float64) data.StatSnapshot {
	k := len(samples)
	if k == 0 {
		// Current/min/max/median stay 0 but avg and stddev must be
		// distinguishable from a real zero so the UI can show "N/A".
		return data.StatSnapshot{Avg: math.NaN(), StdDev: math.NaN()}
	}

	values := make([]float64, k)
	for i, s := range samples {
		values[i] = s.Value
	}
	sort.Float64s(values)

	avg := sum / float64(k)
	variance := sumSq/float64(k) - avg*avg
	if variance < 0 {
		variance = 0 // guard against float cancellation
	}

	return data.StatSnapshot{
		Current: samples[k-1].Value,
		Min:     values[0],
		Max:     values[k-1],
		Avg:     avg,
		Median:  values[k/2],
		StdDev:  math.Sqrt(variance),
		Count:   k,
	}
}
