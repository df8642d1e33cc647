package location

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Replay plays back a JSON-lines file of fixes ({"lat":..,"lon":..,"accuracy":..}),
// one per interval. Recorded timestamps are replaced with the playback time.
type Replay struct {
	Path     string
	Interval time.Duration
	// Loop restarts from the first fix after the last one.
	Loop bool
}

// NewReplay returns a replay source for path.
func NewReplay(path string, interval time.Duration) *Replay {
	if interval <= 0 {
		interval = time.Second
	}
	return &Replay{Path: path, Interval: interval}
}

// Watch loads the file and starts playback.
func (r *Replay) Watch(ctx context.Context, opts Options) (*Watch, error) {
	fixes, err := loadFixes(r.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if len(fixes) == 0 {
		return nil, fmt.Errorf("%w: %s contains no fixes", ErrUnsupported, r.Path)
	}

	w, p := NewWatch(ctx, opts)
	go r.run(p, fixes)
	return w, nil
}

func (r *Replay) run(p *Producer, fixes []Fix) {
	defer p.Close()

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	i := 0
	for {
		select {
		case <-p.Context().Done():
			return
		case now := <-ticker.C:
			if i >= len(fixes) {
				if !r.Loop {
					continue
				}
				i = 0
			}
			f := fixes[i]
			f.Timestamp = now
			i++
			if !p.Emit(f) {
				return
			}
		}
	}
}

func loadFixes(path string) ([]Fix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Fix
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var fix Fix
		if err := json.Unmarshal(line, &fix); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		out = append(out, fix)
	}
	return out, scanner.Err()
}
