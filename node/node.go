package node

import (
    "context"
    "errors"
    "strings"
    "sync"
    "sync/atomic"
    "time"

    . "atomickv/cluster"
    . "atomickv/data"
    . "atomickv/logging"
    . "atomickv/replication"
    "atomickv/storage"
    "atomickv/transport"
)

var EUnknownProcessor = errors.New("The entry processor is not supported by this node")

// WriteOp is one key write submitted by a client. Either Value is stored
// directly or Processor is applied to the key's current value at each owner.
type WriteOp struct {
    Key string `json:"key"`
    Value []byte `json:"value,omitempty"`
    Processor *EntryProcessor `json:"processor,omitempty"`
    TTL int64 `json:"ttl"`
}

type ClusterNodeConfig struct {
    ClusterController *ClusterController
    TransportHub *transport.TransportHub
    StorageDriver storage.StorageDriver
    SyncMode WriteSyncMode
    OrderedUpdates bool
    ForwardProcessors bool
    NetworkTimeout time.Duration
}

// ClusterNode ties the replication protocol together on one cluster member: it
// runs the primary write path that creates update futures, applies update
// requests arriving from other primaries, and feeds backup acknowledgments,
// deferred acknowledgments and membership changes back into the
// outstanding-futures registry.
type ClusterNode struct {
    clusterController *ClusterController
    transportHub *transport.TransportHub
    storageDriver storage.StorageDriver
    replicator *Replicator
    deferredAcks *DeferredResponseBatcher
    syncMode WriteSyncMode
    forwardProcessors bool
    lock sync.Mutex
    entries map[string]*Entry
    nearLock sync.Mutex
    nearCache map[string][]byte
    seq uint64
}

func NewClusterNode(config ClusterNodeConfig) *ClusterNode {
    node := &ClusterNode{
        clusterController: config.ClusterController,
        transportHub: config.TransportHub,
        storageDriver: config.StorageDriver,
        syncMode: config.SyncMode,
        forwardProcessors: config.ForwardProcessors,
        entries: make(map[string]*Entry),
        nearCache: make(map[string][]byte),
    }

    replicator := NewReplicator()
    replicator.Affinity = config.ClusterController
    replicator.Membership = config.ClusterController
    replicator.Messenger = config.TransportHub
    replicator.Versions = NewVersionService(config.ClusterController.LocalNodeID())
    replicator.NetworkTimeout = config.NetworkTimeout
    replicator.OrderedUpdates = config.OrderedUpdates
    node.replicator = replicator

    node.deferredAcks = NewDeferredResponseBatcher(0, 0, func(nodeID uint64, deferredRes *DeferredUpdateResponse) {
        if err := node.transportHub.SendDeferredResponse(nodeID, deferredRes); err != nil {
            Log.Warningf("Unable to send deferred update response to node %d: %v", nodeID, err.Error())
        }
    })

    config.TransportHub.OnUpdate(node.handleUpdate)

    config.TransportHub.OnResponse(func(nodeID uint64, updateRes *UpdateResponse) {
        future := replicator.Registry.Future(updateRes.FutureVersion)

        if future == nil {
            Log.Debugf("Received update response from node %d for unknown future %s", nodeID, updateRes.FutureVersion.String())

            return
        }

        future.OnResult(nodeID, updateRes)
    })

    config.TransportHub.OnDeferredResponse(func(nodeID uint64, deferredRes *DeferredUpdateResponse) {
        future := replicator.Registry.Future(deferredRes.FutureVersion)

        if future == nil {
            Log.Debugf("Received deferred update response from node %d for unknown future %s", nodeID, deferredRes.FutureVersion.String())

            return
        }

        future.OnDeferredResult(nodeID, deferredRes)
    })

    config.ClusterController.OnNodeLeft(func(nodeID uint64) {
        node.transportHub.RemovePeer(nodeID)
        affected := replicator.Registry.NotifyNodeLeft(nodeID)

        if affected > 0 {
            Log.Infof("Node %d departure purged mappings from %d outstanding futures", nodeID, affected)
        }
    })

    return node
}

func (node *ClusterNode) Start() error {
    if err := node.storageDriver.Open(); err != nil {
        return err
    }

    node.deferredAcks.Start()

    return nil
}

func (node *ClusterNode) Stop() {
    node.deferredAcks.Stop()
    node.storageDriver.Close()
}

func (node *ClusterNode) Registry() *FutureRegistry {
    return node.replicator.Registry
}

func (node *ClusterNode) ClusterController() *ClusterController {
    return node.clusterController
}

func (node *ClusterNode) nextSeq() uint64 {
    return atomic.AddUint64(&node.seq, 1)
}

func (node *ClusterNode) entry(key string) *Entry {
    node.lock.Lock()
    defer node.lock.Unlock()

    entry, ok := node.entries[key]

    if !ok {
        entry = NewEntry(key, node.clusterController.Partition(key))
        node.entries[key] = entry
    }

    return entry
}

// Batch runs the primary write path for a batch of writes: apply the batch to
// local storage, build an update future mapping every key to its backup owners
// and near-cache readers, fan the batched requests out once and wait for the
// completion callback dictated by the synchronization mode.
func (node *ClusterNode) Batch(writeOps []WriteOp) (*WriteResponse, error) {
    topologyVersion := node.clusterController.TopologyVersion()
    values := make([][]byte, len(writeOps))
    keys := make([]string, 0, len(writeOps))
    storageBatch := storage.NewBatch()

    for i, writeOp := range writeOps {
        value := writeOp.Value

        if writeOp.Processor != nil {
            currentValues, err := node.storageDriver.Get([][]byte{ []byte(writeOp.Key) })

            if err != nil {
                return nil, err
            }

            value, err = applyProcessor(writeOp.Processor, currentValues[0])

            if err != nil {
                return nil, err
            }
        }

        values[i] = value
        keys = append(keys, writeOp.Key)
        storageBatch.Put([]byte(writeOp.Key), value)
    }

    if err := node.storageDriver.Batch(storageBatch); err != nil {
        return nil, err
    }

    writeReq := &WriteRequest{
        Keys: keys,
        TopologyVersion: topologyVersion,
        SyncMode: node.syncMode,
        ForwardProcessors: node.forwardProcessors,
    }

    writeRes := NewWriteResponse()
    notified := make(chan int, 1)
    writeVersion := node.replicator.Versions.Next(topologyVersion)

    future := node.replicator.NewUpdateFuture(writeVersion, writeReq, writeRes, func(writeReq *WriteRequest, writeRes *WriteResponse) {
        notified <- 1
    })

    for i, writeOp := range writeOps {
        entry := node.entry(writeOp.Key)
        future.AddWriteEntry(entry, values[i], writeOp.Processor, writeOp.TTL, 0, nil)

        if readers := entry.Readers(); len(readers) > 0 {
            future.AddNearWriteEntries(readers, entry, values[i], writeOp.Processor, writeOp.TTL, 0)
        }
    }

    future.Map()

    <-notified

    return writeRes, nil
}

// Get reads keys from local storage. When readerNodeID is non-zero the read
// came from a node that will cache the results, so it is registered as a
// near-cache reader of each key.
func (node *ClusterNode) Get(keys []string, readerNodeID uint64) ([][]byte, error) {
    encodedKeys := make([][]byte, len(keys))

    for i, key := range keys {
        encodedKeys[i] = []byte(key)
    }

    values, err := node.storageDriver.Get(encodedKeys)

    if err != nil {
        return nil, err
    }

    if readerNodeID != 0 && readerNodeID != node.clusterController.LocalNodeID() {
        seq := node.nextSeq()

        for _, key := range keys {
            if err := node.entry(key).AddReader(readerNodeID, seq); err == EEntryRemoved {
                Log.Debugf("Unable to register node %d as a reader of removed entry %s", readerNodeID, key)
            }
        }
    }

    return values, nil
}

// CacheNear stores a remotely read value in this node's near cache.
func (node *ClusterNode) CacheNear(key string, value []byte) {
    node.nearLock.Lock()
    defer node.nearLock.Unlock()

    node.nearCache[key] = value
}

func (node *ClusterNode) NearCached(key string) ([]byte, bool) {
    node.nearLock.Lock()
    defer node.nearLock.Unlock()

    value, ok := node.nearCache[key]

    return value, ok
}

// updateNearCache applies one near-cache write. It reports false when this
// node no longer caches the key, in which case the key is evicted and the
// primary is told to unregister this node as a reader.
func (node *ClusterNode) updateNearCache(nearEntry NearWriteEntry) bool {
    node.nearLock.Lock()
    defer node.nearLock.Unlock()

    if _, ok := node.nearCache[nearEntry.Key]; !ok {
        return false
    }

    if nearEntry.Processor != nil {
        value, err := applyProcessor(nearEntry.Processor, node.nearCache[nearEntry.Key])

        if err != nil {
            delete(node.nearCache, nearEntry.Key)

            return false
        }

        node.nearCache[nearEntry.Key] = value

        return true
    }

    node.nearCache[nearEntry.Key] = nearEntry.Value

    return true
}

// handleUpdate applies a batched update request from another primary to this
// node's backup copy of the data, then acknowledges it either directly or
// through the deferred batcher. Direct responses are reserved for requests
// whose sender is waiting on them or that carry information a deferred
// acknowledgment cannot: per-key failures and near-cache evictions.
func (node *ClusterNode) handleUpdate(from uint64, updateReq *UpdateRequest) error {
    Log.Debugf("Received update request from node %d for future %s partition %d", from, updateReq.FutureVersion.String(), updateReq.Partition)

    storageBatch := storage.NewBatch()
    var failedKeys []string
    var applyErr error

    for _, writeEntry := range updateReq.Entries {
        value := writeEntry.Value

        if writeEntry.Processor != nil {
            currentValues, err := node.storageDriver.Get([][]byte{ []byte(writeEntry.Key) })

            if err == nil {
                value, err = applyProcessor(writeEntry.Processor, currentValues[0])
            }

            if err != nil {
                failedKeys = append(failedKeys, writeEntry.Key)
                applyErr = err

                continue
            }
        }

        storageBatch.Put([]byte(writeEntry.Key), value)
    }

    if storageBatch.Size() > 0 {
        if err := node.storageDriver.Batch(storageBatch); err != nil {
            applyErr = err
            failedKeys = failedKeys[:0]

            for _, writeEntry := range updateReq.Entries {
                failedKeys = append(failedKeys, writeEntry.Key)
            }
        }
    }

    var nearEvicted []string

    for _, nearEntry := range updateReq.NearEntries {
        if !node.updateNearCache(nearEntry) {
            nearEvicted = append(nearEvicted, nearEntry.Key)
        }
    }

    if updateReq.SyncMode.RequiresBackupAck() || len(failedKeys) > 0 || len(nearEvicted) > 0 {
        updateRes := &UpdateResponse{
            FutureVersion: updateReq.FutureVersion,
            Partition: updateReq.Partition,
            FailedKeys: failedKeys,
            NearEvicted: nearEvicted,
            Seq: node.nextSeq(),
        }

        if applyErr != nil {
            updateRes.Error = applyErr.Error()
        }

        go func() {
            if err := node.transportHub.SendResponse(from, updateRes); err != nil {
                Log.Warningf("Unable to send update response to node %d: %v", from, err.Error())
            }
        }()

        return nil
    }

    node.deferredAcks.Enqueue(from, updateReq.FutureVersion, updateReq.Partition)

    return nil
}

// AwaitExchange blocks until every outstanding update future that predates the
// target topology version has completed, guaranteeing backups received all
// writes issued under the old partition assignment before the exchange
// proceeds.
func (node *ClusterNode) AwaitExchange(ctx context.Context, targetTopologyVersion uint64) error {
    for _, future := range node.replicator.Registry.WaitFutures(targetTopologyVersion) {
        select {
        case <-future.Done():
        case <-ctx.Done():
            return ctx.Err()
        }
    }

    return nil
}

func applyProcessor(processor *EntryProcessor, currentValue []byte) ([]byte, error) {
    switch processor.Name {
    case "append":
        return append(currentValue, []byte(strings.Join(processor.Args, ""))...), nil
    case "putIfAbsent":
        if currentValue != nil {
            return currentValue, nil
        }

        return []byte(strings.Join(processor.Args, "")), nil
    default:
        return nil, EUnknownProcessor
    }
}
