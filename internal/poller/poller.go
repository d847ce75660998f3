package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alexcyl0107/clinique/internal/alert"
)

// FetchFunc loads one stats snapshot from the server.
type FetchFunc func(ctx context.Context) (alert.Stats, error)

// Poller keeps a staff client in step with the server by re-reading the stats
// snapshot on a fixed interval. There is no push channel; a new emergency is
// seen at most one interval after it is stored.
type Poller struct {
	Interval time.Duration
	Fetch    FetchFunc
	OnUpdate func(alert.Stats)
	OnError  func(error)
	Logger   zerolog.Logger

	mu      sync.Mutex
	seq     uint64
	applyMu sync.Mutex
	applied uint64
}

// Run polls once right away and then on every tick until ctx is done. Each
// poll runs in its own goroutine with a timeout of one interval, so a slow
// response never holds back the next tick.
func (p *Poller) Run(ctx context.Context) error {
	if p.Interval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if p.Fetch == nil {
		return errors.New("poller has no fetch function")
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	poll := func() {
		seq := p.next()
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.pollOnce(ctx, seq)
		}()
	}

	poll()

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.Logger.Debug().Msg("poller stopping")
			return ctx.Err()
		case <-ticker.C:
			poll()
		}
	}
}

func (p *Poller) next() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	return p.seq
}

func (p *Poller) pollOnce(ctx context.Context, seq uint64) {
	pollCtx, cancel := context.WithTimeout(ctx, p.Interval)
	defer cancel()

	start := time.Now()
	st, err := p.Fetch(pollCtx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.Logger.Warn().Err(err).Uint64("seq", seq).Msg("poll failed")
		if p.OnError != nil {
			p.OnError(err)
		}
		return
	}

	if !p.apply(seq, st) {
		p.Logger.Debug().Uint64("seq", seq).Msg("dropping stale poll response")
		return
	}

	p.Logger.Debug().
		Uint64("seq", seq).
		Bool("ringing", st.Ringing).
		Int("unacknowledged", st.UnacknowledgedEmergencies).
		Dur("latency", time.Since(start)).
		Msg("poll applied")
}

// apply hands st to OnUpdate when seq is newer than every response applied
// so far. Updates are delivered one at a time, in sequence order.
func (p *Poller) apply(seq uint64, st alert.Stats) bool {
	p.applyMu.Lock()
	defer p.applyMu.Unlock()

	if seq <= p.applied {
		return false
	}
	p.applied = seq
	if p.OnUpdate != nil {
		p.OnUpdate(st)
	}
	return true
}
