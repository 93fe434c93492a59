package replication

import (
    "sync"

    . "atomickv/data"
)

// FutureRegistry is the process-wide set of outstanding update futures. A
// future is registered when the write path creates it and deregisters itself
// exactly once when it completes.
type FutureRegistry struct {
    lock sync.Mutex
    futures map[Version]*UpdateFuture
}

func NewFutureRegistry() *FutureRegistry {
    return &FutureRegistry{
        futures: make(map[Version]*UpdateFuture),
    }
}

func (registry *FutureRegistry) Register(future *UpdateFuture) {
    registry.lock.Lock()
    defer registry.lock.Unlock()

    registry.futures[future.Version()] = future
    prometheusOutstandingFutures.Set(float64(len(registry.futures)))
}

func (registry *FutureRegistry) Deregister(futureVersion Version) {
    registry.lock.Lock()
    defer registry.lock.Unlock()

    delete(registry.futures, futureVersion)
    prometheusOutstandingFutures.Set(float64(len(registry.futures)))
}

func (registry *FutureRegistry) Future(futureVersion Version) *UpdateFuture {
    registry.lock.Lock()
    defer registry.lock.Unlock()

    return registry.futures[futureVersion]
}

func (registry *FutureRegistry) Futures() []*UpdateFuture {
    registry.lock.Lock()
    defer registry.lock.Unlock()

    futures := make([]*UpdateFuture, 0, len(registry.futures))

    for _, future := range registry.futures {
        futures = append(futures, future)
    }

    return futures
}

// NotifyNodeLeft propagates a node departure to every outstanding future and
// returns how many futures had mappings purged because of it.
func (registry *FutureRegistry) NotifyNodeLeft(nodeID uint64) int {
    affected := 0

    for _, future := range registry.Futures() {
        if future.OnNodeLeft(nodeID) {
            affected++
        }
    }

    return affected
}

// WaitFutures returns every outstanding future that must finish before a
// topology exchange to the target version may proceed. The exchange protocol
// waits on each returned future's Done channel.
func (registry *FutureRegistry) WaitFutures(targetTopologyVersion uint64) []*UpdateFuture {
    var waitFutures []*UpdateFuture

    for _, future := range registry.Futures() {
        if waitFuture := future.CompleteFuture(targetTopologyVersion); waitFuture != nil {
            waitFutures = append(waitFutures, waitFuture)
        }
    }

    return waitFutures
}
