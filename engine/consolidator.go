package engine

import (
	"sync"

	"github.com/lumenquant/coreengine/model"
)

// Consolidator receives every datum routed to one subscription, the way the
// teacher's per-pair strategy controller folds each incoming candle into its
// running dataframe (strategy/controller.go's updateDataFrame) before handing
// it to indicator/strategy code. The manager loop is opaque to what a
// consolidator does with the datum — resample to a coarser bar, maintain a
// rolling window, feed an indicator — it only guarantees delivery in slice
// order.
type Consolidator func(model.DataPoint)

// ConsolidatorRegistry maps a subscription's key (model.SubscriptionConfig.Key)
// to the consolidators registered against it.
type ConsolidatorRegistry struct {
	mu   sync.RWMutex
	subs map[string][]Consolidator
}

// NewConsolidatorRegistry builds an empty registry.
func NewConsolidatorRegistry() *ConsolidatorRegistry {
	return &ConsolidatorRegistry{subs: make(map[string][]Consolidator)}
}

// Register attaches consolidator to every future update for the subscription
// identified by key.
func (r *ConsolidatorRegistry) Register(key string, consolidator Consolidator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[key] = append(r.subs[key], consolidator)
}

// Dispatch feeds update's datum to every consolidator registered for its
// subscription.
func (r *ConsolidatorRegistry) Dispatch(update model.ConsolidatorUpdate) {
	r.mu.RLock()
	consolidators := r.subs[update.Config.Key()]
	r.mu.RUnlock()
	for _, c := range consolidators {
		c(update.Data)
	}
}
