package feed

import (
	"context"

	"github.com/schollz/progressbar/v3"

	"github.com/lumenquant/coreengine/model"
	"github.com/lumenquant/coreengine/tools/log"
)

// subscriptionTick is the priority-queue element merging a subscription's
// current datum by end-time, grounded on the teacher's priority-queued
// candle merge across pairs.
type subscriptionTick struct {
	sub *model.Subscription
}

func (s subscriptionTick) Less(other subscriptionTick) bool {
	a, _ := s.sub.Current()
	b, _ := other.sub.Current()
	return a.EndTime.Before(b.EndTime)
}

// BacktestDriver replays a fixed set of subscriptions in end-time order,
// packaging every datum sharing the current minimum end-time into one
// SubscriptionPacket set per push (spec §4.5's deterministic backtest feed
// driver).
type BacktestDriver struct {
	subs  []*model.Subscription
	queue *model.PriorityQueue[subscriptionTick]
	total int
}

// NewBacktestDriver primes subs by advancing each once and seeding the
// merge heap with those that produced data.
func NewBacktestDriver(subs []*model.Subscription) *BacktestDriver {
	items := make([]subscriptionTick, 0, len(subs))
	for _, s := range subs {
		if s.Advance() {
			items = append(items, subscriptionTick{sub: s})
		}
	}
	return &BacktestDriver{subs: subs, queue: model.NewPriorityQueue(items), total: len(items)}
}

// Run drains every subscription in end-time order, calling publish with one
// packet set per distinct end-time, until all subscriptions are exhausted or
// ctx is cancelled. A progress bar mirrors the teacher's backtestCandles
// loop.
func (d *BacktestDriver) Run(ctx context.Context, publish func(packets []model.SubscriptionPacket)) error {
	bar := progressbar.Default(int64(d.queue.Len()))
	defer bar.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		head, ok := d.queue.Peek()
		if !ok {
			return nil
		}
		cur, _ := head.sub.Current()
		frontier := cur.EndTime

		var packets []model.SubscriptionPacket
		for {
			next, ok := d.queue.Peek()
			if !ok {
				break
			}
			nc, _ := next.sub.Current()
			if !nc.EndTime.Equal(frontier) {
				break
			}
			item, _ := d.queue.Pop()
			datum, _ := item.sub.Current()
			packets = append(packets, model.SubscriptionPacket{Config: item.sub.Config, Data: []model.DataPoint{datum}})

			if item.sub.Advance() {
				d.queue.Push(item)
			}
			if err := bar.Add(1); err != nil {
				log.WithError(err).Warn("backtest: progress bar update failed")
			}
		}

		publish(packets)
	}
}
