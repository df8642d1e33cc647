package location

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	gpsd "github.com/stratoberry/go-gpsd"
)

// DefaultGPSDAddr is gpsd's standard listen address.
const DefaultGPSDAddr = "127.0.0.1:2947"

// GPSD reads TPV reports from a gpsd daemon.
type GPSD struct {
	Addr string
}

// NewGPSD returns a source reading from addr (DefaultGPSDAddr when empty).
func NewGPSD(addr string) *GPSD {
	if addr == "" {
		addr = DefaultGPSDAddr
	}
	return &GPSD{Addr: addr}
}

// Watch connects to gpsd and enables JSON streaming. A refused connection is
// reported as ErrUnsupported.
func (g *GPSD) Watch(ctx context.Context, opts Options) (*Watch, error) {
	session, err := gpsd.Dial(g.Addr)
	if err != nil {
		return nil, fmt.Errorf("%w: gpsd %s: %v", ErrUnsupported, g.Addr, err)
	}

	w, p := NewWatch(ctx, opts)
	reports := make(chan *gpsd.TPVReport, 16)
	session.AddFilter("TPV", func(r interface{}) {
		tpv, ok := r.(*gpsd.TPVReport)
		if !ok {
			return
		}
		select {
		case reports <- tpv:
		case <-p.Context().Done():
		}
	})
	done := session.Watch()
	go g.run(p, session, reports, done)
	return w, nil
}

// run delivers reports until the watch stops or gpsd hangs up. Emit is only
// called from here so it never races Close.
func (g *GPSD) run(p *Producer, session *gpsd.Session, reports <-chan *gpsd.TPVReport, done <-chan bool) {
	defer p.Close()
	for {
		select {
		case <-p.Context().Done():
			session.Close()
			go func() { <-done }()
			return
		case tpv := <-reports:
			fix, err := tpvFix(tpv, time.Now())
			if err != nil {
				p.Fail(err)
				continue
			}
			if !p.Emit(fix) {
				session.Close()
				go func() { <-done }()
				return
			}
		case <-done:
			if p.Context().Err() == nil {
				log.Printf("gpsd %s: stream ended", g.Addr)
				p.Fail(fmt.Errorf("%w: gpsd stream ended", ErrUnavailable))
			}
			return
		}
	}
}

// tpvFix converts a TPV report. A report without a 2D fix yields
// ErrUnavailable. Accuracy is the larger of the longitude and latitude
// error estimates.
func tpvFix(tpv *gpsd.TPVReport, now time.Time) (Fix, error) {
	if tpv.Mode < gpsd.Mode2D {
		return Fix{}, ErrUnavailable
	}
	ts := tpv.Time
	if ts.IsZero() {
		ts = now
	}
	return Fix{
		Latitude:  tpv.Lat,
		Longitude: tpv.Lon,
		Accuracy:  math.Max(tpv.Epx, tpv.Epy),
		Timestamp: ts,
	}, nil
}
