// Package poller drives the request cycle: it walks the selected PID
// list, queries the adapter session one parameter at a time, decodes
// what comes back, and hands every outcome to the notification sink.
package poller

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/VancePeterson/obd2-reader/internal/obd"
)

// Querier is the adapter session primitive the loop needs. The error
// return means the channel has failed and polling must stop; per-query
// problems arrive inside the Outcome.
type Querier interface {
	Query(obd.PID) (obd.Outcome, error)
}

// Sink receives one Reading per completed query, in request order.
// Publish must not block: a slow consumer must not stall the polling
// cadence, so implementations queue internally or drop.
type Sink interface {
	Publish(Reading)
}

// Status classifies a reading for the consumer.
type Status string

const (
	StatusOK        Status = "ok"
	StatusNoData    Status = "no-data"
	StatusError     Status = "error"
	StatusMalformed Status = "malformed"
)

// Reading is what the sink receives for one query: the parameter it
// answers, its status, and — for successful decodes — the value.
type Reading struct {
	PID    obd.PID    `json:"pid"`
	Status Status     `json:"status"`
	Value  *obd.Value `json:"value,omitempty"`
	Detail string     `json:"detail,omitempty"` // fault token, decode problem, or undecoded frame hex
	Stamp  time.Time  `json:"stamp"`
}

const defaultDelay = 50 * time.Millisecond

// Poller cycles through a replaceable ordered PID set. It owns the
// session exclusively while running; nothing else may call Query
// concurrently.
type Poller struct {
	session Querier
	sink    Sink
	delay   time.Duration

	mu   sync.Mutex
	pids []obd.PID
}

// New creates a poller. delay is the inter-request pause the adapter
// needs between commands; zero selects the 50ms default.
func New(session Querier, sink Sink, delay time.Duration) *Poller {
	if delay <= 0 {
		delay = defaultDelay
	}
	return &Poller{session: session, sink: sink, delay: delay}
}

// SetPIDs replaces the polled set. The change takes effect at the next
// cycle boundary; the cycle in flight finishes with the set it started
// with. An empty set makes the loop idle.
func (p *Poller) SetPIDs(pids []obd.PID) {
	cp := make([]obd.PID, len(pids))
	copy(cp, pids)
	p.mu.Lock()
	p.pids = cp
	p.mu.Unlock()
}

// PIDs returns the currently selected set.
func (p *Poller) PIDs() []obd.PID {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]obd.PID, len(p.pids))
	copy(cp, p.pids)
	return cp
}

// Run polls until ctx is cancelled or the session reports the channel
// has failed. Cancellation is cooperative: it is observed at the top
// of each cycle and between queries, never mid-read — an in-flight
// query completes or times out on its own bound first.
func (p *Poller) Run(ctx context.Context) error {
	log.Printf("[poller] started (delay %v)", p.delay)
	for {
		if err := ctx.Err(); err != nil {
			log.Printf("[poller] stopped")
			return nil
		}

		cycle := p.PIDs()
		if len(cycle) == 0 {
			if !p.pause(ctx) {
				log.Printf("[poller] stopped")
				return nil
			}
			continue
		}

		for _, pid := range cycle {
			if ctx.Err() != nil {
				log.Printf("[poller] stopped")
				return nil
			}

			out, err := p.session.Query(pid)
			if err != nil {
				log.Printf("[poller] session failed on %s: %v", pid, err)
				return err
			}
			p.sink.Publish(p.reading(pid, out))

			if !p.pause(ctx) {
				log.Printf("[poller] stopped")
				return nil
			}
		}
	}
}

// pause waits the inter-request delay, returning false if the context
// was cancelled first.
func (p *Poller) pause(ctx context.Context) bool {
	t := time.NewTimer(p.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// reading converts one parse outcome into the sink's Reading. Each
// failure stays isolated to its parameter: no outcome aborts the loop.
func (p *Poller) reading(pid obd.PID, out obd.Outcome) Reading {
	r := Reading{PID: pid, Stamp: time.Now()}

	switch out.Kind {
	case obd.OutcomeNoData:
		r.Status = StatusNoData
	case obd.OutcomeAdapterError:
		r.Status = StatusError
		r.Detail = out.Token
	case obd.OutcomeMalformed:
		r.Status = StatusMalformed
		r.Detail = out.Raw
	case obd.OutcomeData:
		def, ok := obd.LookupPID(pid)
		if !ok {
			// Selected but uncataloged: report the frame arrived,
			// there is just no rule to decode it with. The hex bytes
			// go in Detail so the consumer still sees what came back.
			r.Status = StatusOK
			r.Detail = fmt.Sprintf("% X", out.Frame)
			return r
		}
		v, err := def.Decode(out.Frame)
		if err != nil {
			r.Status = StatusMalformed
			r.Detail = err.Error()
			return r
		}
		r.Status = StatusOK
		r.Value = &v
	}
	return r
}
