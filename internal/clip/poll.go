package clip

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"time"

	"go.klb.dev/clipferry/internal/clock"
)

type fingerprint [sha256.Size]byte

func fingerprintOf(parts ...[]byte) fingerprint {
	h := sha256.New()
	var n [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write(p)
	}
	var fp fingerprint
	copy(fp[:], h.Sum(nil))
	return fp
}

// poller turns a sampled clipboard state into change notifications for
// platforms without a native change event.
type poller struct {
	clock    clock.Clock
	interval time.Duration
	sample   func() fingerprint

	watchCh  chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu   sync.Mutex
	last fingerprint
}

func newPoller(clk clock.Clock, interval time.Duration, sample func() fingerprint) *poller {
	p := &poller{
		clock:    clk,
		interval: interval,
		sample:   sample,
		watchCh:  make(chan struct{}, 1),
		done:     make(chan struct{}),
		last:     sample(),
	}
	// The ticker exists before newPoller returns so no tick is lost to
	// goroutine start-up.
	go p.run(p.clock.NewTicker(p.interval))
	return p
}

func (p *poller) run(t *clock.Ticker) {
	defer t.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-t.C:
			p.check()
		}
	}
}

func (p *poller) check() {
	fp := p.sample()
	p.mu.Lock()
	changed := fp != p.last
	p.last = fp
	p.mu.Unlock()
	if changed {
		select {
		case p.watchCh <- struct{}{}:
		default:
		}
	}
}

// rebase adopts the current state without signalling, so our own writes do
// not come back as changes.
func (p *poller) rebase() {
	fp := p.sample()
	p.mu.Lock()
	p.last = fp
	p.mu.Unlock()
}

func (p *poller) stop() { p.stopOnce.Do(func() { close(p.done) }) }
