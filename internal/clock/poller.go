package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

// Poller paces a status loop. At most one poll is pending at a time; a
// poll that comes due while one is still unread is counted but not queued.
type Poller struct {
	c     chan struct{}
	polls atomic.Int64
	done  chan struct{}
	once  sync.Once
}

// NewPoller starts polling every interval until Stop.
func NewPoller(interval time.Duration) *Poller {
	p := &Poller{
		c:    make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go p.loop(time.NewTicker(interval))
	return p
}

func (p *Poller) loop(t *time.Ticker) {
	defer t.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-t.C:
		}
		p.polls.Add(1)
		select {
		case p.c <- struct{}{}:
		default:
		}
	}
}

// C fires when the next poll is due.
func (p *Poller) C() <-chan struct{} { return p.c }

// Polls is how many intervals have elapsed, including skipped ones.
func (p *Poller) Polls() int64 { return p.polls.Load() }

// Stop ends polling. It may be called more than once.
func (p *Poller) Stop() { p.once.Do(func() { close(p.done) }) }
