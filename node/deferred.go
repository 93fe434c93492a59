package node

import (
    "sync"
    "time"

    . "atomickv/data"
    . "atomickv/replication"
)

const DefaultDeferredFlushInterval = time.Millisecond * 500
const DefaultDeferredBatchSize = 256

type deferredKey struct {
    nodeID uint64
    futureVersion Version
}

// DeferredResponseBatcher coalesces per-partition acknowledgments owed to a
// primary node into batched deferred responses, so a backup applying many
// ordered updates does not answer with one response per partition.
type DeferredResponseBatcher struct {
    flushInterval time.Duration
    maxBatchSize int
    sendCB func(nodeID uint64, deferredRes *DeferredUpdateResponse)
    lock sync.Mutex
    pending map[deferredKey][]int64
    stop chan int
}

func NewDeferredResponseBatcher(flushInterval time.Duration, maxBatchSize int, sendCB func(nodeID uint64, deferredRes *DeferredUpdateResponse)) *DeferredResponseBatcher {
    if flushInterval == 0 {
        flushInterval = DefaultDeferredFlushInterval
    }

    if maxBatchSize == 0 {
        maxBatchSize = DefaultDeferredBatchSize
    }

    return &DeferredResponseBatcher{
        flushInterval: flushInterval,
        maxBatchSize: maxBatchSize,
        sendCB: sendCB,
        pending: make(map[deferredKey][]int64),
    }
}

func (batcher *DeferredResponseBatcher) Start() {
    batcher.lock.Lock()

    if batcher.stop != nil {
        batcher.lock.Unlock()

        return
    }

    stop := make(chan int)
    batcher.stop = stop
    batcher.lock.Unlock()

    go func() {
        ticker := time.NewTicker(batcher.flushInterval)
        defer ticker.Stop()

        for {
            select {
            case <-ticker.C:
                batcher.FlushAll()
            case <-stop:
                batcher.FlushAll()

                return
            }
        }
    }()
}

func (batcher *DeferredResponseBatcher) Stop() {
    batcher.lock.Lock()

    if batcher.stop == nil {
        batcher.lock.Unlock()

        return
    }

    stop := batcher.stop
    batcher.stop = nil
    batcher.lock.Unlock()

    close(stop)
}

// Enqueue records one partition acknowledgment owed to the given node for the
// given future. The batch flushes early once it grows past the size limit.
func (batcher *DeferredResponseBatcher) Enqueue(nodeID uint64, futureVersion Version, partition int64) {
    key := deferredKey{ nodeID: nodeID, futureVersion: futureVersion }

    batcher.lock.Lock()
    batcher.pending[key] = append(batcher.pending[key], partition)
    flushNow := len(batcher.pending[key]) >= batcher.maxBatchSize
    batcher.lock.Unlock()

    if flushNow {
        batcher.flushKey(key)
    }
}

func (batcher *DeferredResponseBatcher) flushKey(key deferredKey) {
    batcher.lock.Lock()
    partitions, ok := batcher.pending[key]
    delete(batcher.pending, key)
    batcher.lock.Unlock()

    if !ok || len(partitions) == 0 {
        return
    }

    batcher.sendCB(key.nodeID, &DeferredUpdateResponse{
        FutureVersion: key.futureVersion,
        Partitions: partitions,
    })
}

func (batcher *DeferredResponseBatcher) FlushAll() {
    batcher.lock.Lock()
    keys := make([]deferredKey, 0, len(batcher.pending))

    for key, _ := range batcher.pending {
        keys = append(keys, key)
    }

    batcher.lock.Unlock()

    for _, key := range keys {
        batcher.flushKey(key)
    }
}
