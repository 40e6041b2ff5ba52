package feed

import (
	"context"
	"time"

	"github.com/lumenquant/coreengine/contracts"
	"github.com/lumenquant/coreengine/exchange"
	"github.com/lumenquant/coreengine/model"
)

// defaultHeartbeat is the rounded-to-second cadence the live driver emits a
// slice on even when no subscription produced data (spec §4.5's heartbeat
// requirement).
const defaultHeartbeat = time.Second

// subscriptionEnumerator adapts a model.Subscription to the fan-out
// exchange's pull contract.
type subscriptionEnumerator struct {
	sub *model.Subscription
	err error
}

func (e *subscriptionEnumerator) Next() (model.DataPoint, bool) {
	if !e.sub.Advance() {
		return model.DataPoint{}, false
	}
	return e.sub.Current()
}

func (e *subscriptionEnumerator) Err() error   { return e.err }
func (e *subscriptionEnumerator) Close() error { return e.sub.Dispose() }

// LiveDriver feeds subscriptions through the fan-out exchange into a bounded
// hand-off queue, then batches what arrives between heartbeat ticks into one
// SubscriptionPacket set per pass (spec §4.5's live feed driver): frontier
// batching, a heartbeat so the algorithm manager keeps ticking even when
// quiet, and a WaitIdle rendezvous before a universe recompute is applied.
type LiveDriver struct {
	ex        *exchange.Exchange
	queue     *contracts.Queue[model.DataPoint]
	heartbeat time.Duration
}

// NewLiveDriver wires ex to push every produced datum onto an internal
// bounded hand-off queue of capacity queueCapacity.
func NewLiveDriver(ex *exchange.Exchange, queueCapacity int) *LiveDriver {
	return &LiveDriver{ex: ex, queue: contracts.NewQueue[model.DataPoint](queueCapacity), heartbeat: defaultHeartbeat}
}

// SetHeartbeat overrides the default one-second heartbeat cadence.
func (d *LiveDriver) SetHeartbeat(interval time.Duration) {
	if interval > 0 {
		d.heartbeat = interval
	}
}

// Subscribe registers sub with the underlying exchange, routing its items
// into the hand-off queue.
func (d *LiveDriver) Subscribe(sub *model.Subscription) {
	symbol := sub.Config.Symbol
	d.ex.AddEnumerator(symbol, &subscriptionEnumerator{sub: sub}, nil, nil)
	d.ex.SetDataHandler(symbol, func(dp model.DataPoint) {
		// The Add error is discarded: once Stop has called CompleteAdding the
		// item is dropped. The context is never cancelled, so while the queue
		// is full this waits for the consumer to free a slot.
		_ = d.queue.Add(context.Background(), dp)
	})
}

// Start begins the exchange worker goroutine.
func (d *LiveDriver) Start(ctx context.Context) {
	d.ex.Start(ctx)
}

// Stop halts the exchange worker and closes the hand-off queue for draining.
func (d *LiveDriver) Stop() {
	d.ex.Stop()
	d.queue.CompleteAdding()
}

// Consume returns the channel the real-time scheduler / assembler reads
// incoming data points from. Run supersedes this for normal operation; it
// remains for callers that want the raw per-datum stream.
func (d *LiveDriver) Consume(ctx context.Context) <-chan model.DataPoint {
	return d.queue.Consume(ctx)
}

// WaitIdle blocks until the hand-off queue has drained, used by the
// real-time scheduler to confirm no datum is in flight before it advances
// the per-second clock (spec §4.1 linearization invariant: a heartbeat tick
// never preempts a pending WaitIdle rendezvous).
func (d *LiveDriver) WaitIdle(ctx context.Context) error {
	return d.queue.WaitIdle(ctx)
}

// Run batches every datum received between heartbeat ticks into one packet
// set keyed by subscription, publishing a pass once per tick even if nothing
// arrived (the heartbeat). isUniverseSubscription reports whether a config
// belongs to a universe-selection subscription; when one of those produced
// data during the pass, Run blocks on the hand-off queue's WaitIdle before it
// calls publish, and passes universeChanged=true (spec §4.5). WaitIdle covers
// only this driver's own datum queue, not slices the caller has published.
func (d *LiveDriver) Run(ctx context.Context, isUniverseSubscription func(model.SubscriptionConfig) bool, publish func(packets []model.SubscriptionPacket, universeChanged bool)) error {
	ch := d.queue.Consume(ctx)
	ticker := time.NewTicker(d.heartbeat)
	defer ticker.Stop()

	pending := make(map[string]*model.SubscriptionPacket)
	universeChanged := false

	flush := func() {
		packets := make([]model.SubscriptionPacket, 0, len(pending))
		for _, p := range pending {
			packets = append(packets, *p)
		}
		if universeChanged {
			_ = d.WaitIdle(ctx)
		}
		publish(packets, universeChanged)
		pending = make(map[string]*model.SubscriptionPacket)
		universeChanged = false
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			flush()
		case dp, ok := <-ch:
			if !ok {
				flush()
				return nil
			}
			key := dp.Config.Key()
			pkt, exists := pending[key]
			if !exists {
				pkt = &model.SubscriptionPacket{Config: dp.Config}
				pending[key] = pkt
			}
			pkt.Data = append(pkt.Data, dp)
			if isUniverseSubscription != nil && isUniverseSubscription(dp.Config) {
				universeChanged = true
			}
		}
	}
}
