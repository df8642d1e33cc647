package location

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// metersPerDegree is the length of one degree of latitude.
const metersPerDegree = 111320.0

// Simulator produces a random walk around an origin on a fixed interval. It
// stands in for a device provider on machines without one.
type Simulator struct {
	Lat      float64
	Lon      float64
	Interval time.Duration
	// Speed is the walking speed in meters per second.
	Speed float64
	Seed  int64
}

// NewSimulator returns a simulator walking at 1.4 m/s around (lat, lon).
func NewSimulator(lat, lon float64, interval time.Duration) *Simulator {
	if interval <= 0 {
		interval = time.Second
	}
	return &Simulator{Lat: lat, Lon: lon, Interval: interval, Speed: 1.4, Seed: time.Now().UnixNano()}
}

// Watch starts the walk. The first fix is delivered after one interval.
func (s *Simulator) Watch(ctx context.Context, opts Options) (*Watch, error) {
	w, p := NewWatch(ctx, opts)
	go s.run(p)
	return w, nil
}

func (s *Simulator) run(p *Producer) {
	defer p.Close()

	rng := rand.New(rand.NewSource(s.Seed))
	lat, lon := s.Lat, s.Lon
	heading := rng.Float64() * 2 * math.Pi

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.Context().Done():
			return
		case now := <-ticker.C:
			heading += (rng.Float64() - 0.5) * math.Pi / 4
			step := s.Speed * s.Interval.Seconds()
			lat += step * math.Cos(heading) / metersPerDegree
			lon += step * math.Sin(heading) / (metersPerDegree * math.Cos(lat*math.Pi/180))

			if !p.Emit(Fix{
				Latitude:  lat,
				Longitude: lon,
				Accuracy:  simulatedAccuracy(rng, p.Options().HighAccuracy),
				Timestamp: now,
			}) {
				return
			}
		}
	}
}

func simulatedAccuracy(rng *rand.Rand, high bool) float64 {
	if high {
		return math.Round(3 + rng.Float64()*7)
	}
	return math.Round(20 + rng.Float64()*80)
}
