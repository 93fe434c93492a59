package replication

import (
    "errors"
    "sort"
    "sync/atomic"
    "time"

    . "atomickv/cluster"
    . "atomickv/data"
    . "atomickv/logging"
)

// Replicator creates update futures for the local write path. It carries the
// collaborators every future needs: partition affinity, cluster membership,
// the node messenger and the outstanding-futures registry.
type Replicator struct {
    Affinity Affinity
    Membership Membership
    Messenger NodeMessenger
    Registry *FutureRegistry
    Versions *VersionService
    NetworkTimeout time.Duration
    OrderedUpdates bool
}

func NewReplicator() *Replicator {
    return &Replicator{
        Registry: NewFutureRegistry(),
    }
}

func (replicator *Replicator) NewUpdateFuture(writeVersion Version, writeReq *WriteRequest, writeRes *WriteResponse, completionCb CompletionCallback) *UpdateFuture {
    future := &UpdateFuture{
        affinity: replicator.Affinity,
        membership: replicator.Membership,
        messenger: replicator.Messenger,
        registry: replicator.Registry,
        networkTimeout: replicator.NetworkTimeout,
        orderedUpdates: replicator.OrderedUpdates,
        futureVersion: replicator.Versions.Next(writeReq.TopologyVersion),
        writeVersion: writeVersion,
        writeReq: writeReq,
        writeRes: writeRes,
        completionCb: completionCb,
        waitForExchange: !writeReq.TopologyLocked && !writeReq.FastMap,
        mappings: newMappingTable(),
        completeCh: make(chan struct{}),
    }

    replicator.Registry.Register(future)

    return future
}

// UpdateFuture tracks the replication of one logical write from the partition
// primary to all backup owners. It is populated by the write path, sent once
// via Map, then driven to completion by whichever goroutines deliver backup
// responses, deferred acknowledgments or node departure events. The future
// completes exactly once, when its mapping table becomes empty.
type UpdateFuture struct {
    affinity Affinity
    membership Membership
    messenger NodeMessenger
    registry *FutureRegistry
    networkTimeout time.Duration
    orderedUpdates bool

    futureVersion Version
    writeVersion Version
    writeReq *WriteRequest
    writeRes *WriteResponse
    completionCb CompletionCallback
    waitForExchange bool

    keys []string
    nearReaderEntries map[string]*Entry
    mappings *mappingTable
    done uint32
    completeCh chan struct{}
}

func (future *UpdateFuture) Version() Version {
    return future.futureVersion
}

func (future *UpdateFuture) WriteVersion() Version {
    return future.writeVersion
}

func (future *UpdateFuture) TopologyVersion() uint64 {
    return future.writeReq.TopologyVersion
}

func (future *UpdateFuture) Keys() []string {
    return future.keys
}

// Done is closed once the future has completed. Exchange waiters and tests
// block on it.
func (future *UpdateFuture) Done() <-chan struct{} {
    return future.completeCh
}

func (future *UpdateFuture) OutstandingMappings() int {
    return future.mappings.size()
}

// Nodes resolves the current destination nodes of all outstanding mappings,
// filtering out any node that has since left the cluster. The result is a
// fresh snapshot ordered by node ID, not a live view.
func (future *UpdateFuture) Nodes() []PeerAddress {
    seen := make(map[uint64]bool)
    nodes := make([]PeerAddress, 0)

    for mappingKey, _ := range future.mappings.snapshot() {
        if seen[mappingKey.NodeID] {
            continue
        }

        seen[mappingKey.NodeID] = true
        peerAddress := future.membership.MemberAddress(mappingKey.NodeID)

        if peerAddress.IsEmpty() {
            continue
        }

        nodes = append(nodes, peerAddress)
    }

    sort.Slice(nodes, func(i, j int) bool { return nodes[i].NodeID < nodes[j].NodeID })

    return nodes
}

// AddWriteEntry maps one primary-copy write to the backup owners of the
// entry's partition, appending it to the batched request for each one. It must
// only be called before Map, by the single goroutine populating the future.
func (future *UpdateFuture) AddWriteEntry(entry *Entry, value []byte, processor *EntryProcessor, ttl int64, conflictExpireTime int64, conflictVersion *Version) {
    topologyVersion := future.writeReq.TopologyVersion
    owners := future.affinity.OwnersOf(entry.Partition(), topologyVersion)
    routingPartition := future.routingPartition(entry.Partition())

    Log.Debugf("Future %s: mapping entry %s to backup nodes %v", future.futureVersion.String(), entry.Key(), owners)

    future.keys = append(future.keys, entry.Key())

    for _, nodeID := range owners {
        if nodeID == future.affinity.LocalNodeID() {
            continue
        }

        updateReq := future.getOrCreateRequest(MappingKey{ NodeID: nodeID, Partition: routingPartition })
        updateReq.AddWriteValue(entry.Key(), value, processor, ttl, conflictExpireTime, conflictVersion)
    }
}

// AddNearWriteEntries maps one write to the nodes holding a near-cache copy of
// the entry. A reader node that has left the cluster since it registered is
// silently skipped. The entry is indexed so eviction feedback in backup
// responses can unregister readers later.
func (future *UpdateFuture) AddNearWriteEntries(readerNodeIDs []uint64, entry *Entry, value []byte, processor *EntryProcessor, ttl int64, expireTime int64) {
    routingPartition := future.routingPartition(entry.Partition())

    future.keys = append(future.keys, entry.Key())

    for _, nodeID := range readerNodeIDs {
        if !future.membership.IsMember(nodeID) {
            // Reader node left between the read that registered it and this write
            continue
        }

        updateReq := future.getOrCreateRequest(MappingKey{ NodeID: nodeID, Partition: routingPartition })

        if future.nearReaderEntries == nil {
            future.nearReaderEntries = make(map[string]*Entry)
        }

        future.nearReaderEntries[entry.Key()] = entry
        updateReq.AddNearWriteValue(entry.Key(), value, processor, ttl, expireTime)
    }
}

func (future *UpdateFuture) routingPartition(partition uint64) int64 {
    if future.orderedUpdates {
        return int64(partition)
    }

    return UnorderedPartition
}

func (future *UpdateFuture) getOrCreateRequest(mappingKey MappingKey) *UpdateRequest {
    return future.mappings.getOrCreate(mappingKey, func() *UpdateRequest {
        return NewUpdateRequest(
            mappingKey.NodeID,
            mappingKey.Partition,
            future.futureVersion,
            future.writeVersion,
            future.writeReq.SyncMode,
            future.writeReq.TopologyVersion,
            future.writeReq.ForwardProcessors,
            future.writeReq.ProcessorArgs,
        )
    })
}

// Map performs the single fan-out send of every batched request. A send
// failure never fails the future: a destination that cannot be reached cannot
// acknowledge either, so its mapping is dropped and repair is left to the
// rebalancing path. When the synchronization mode does not require backup
// acknowledgment the completion callback fires here, while the future itself
// still completes asynchronously as acknowledgments trickle in.
func (future *UpdateFuture) Map() {
    for mappingKey, updateReq := range future.mappings.snapshot() {
        var err error

        if mappingKey.Partition >= 0 {
            prometheusSends.WithLabelValues("ordered").Inc()
            err = future.messenger.SendOrdered(mappingKey.NodeID, uint64(mappingKey.Partition), updateReq, 2 * future.networkTimeout)
        } else {
            prometheusSends.WithLabelValues("direct").Inc()
            err = future.messenger.Send(mappingKey.NodeID, updateReq)
        }

        if err == nil {
            continue
        }

        if err == ENoSuchNode {
            Log.Warningf("Future %s: unable to send update request to backup node %d because it left the cluster", future.futureVersion.String(), mappingKey.NodeID)
            prometheusSendFailures.WithLabelValues("node_left").Inc()
        } else {
            Log.Errorf("Future %s: unable to send update request to backup node %d (did the node leave the cluster?): %v", future.futureVersion.String(), mappingKey.NodeID, err.Error())
            prometheusSendFailures.WithLabelValues("transport").Inc()
        }

        future.mappings.remove(mappingKey)
    }

    future.checkComplete()

    // Answer the caller right away if no acknowledgment from backups is required.
    // Backups still acknowledge eventually and complete the future without
    // involving the caller again.
    if !future.writeReq.SyncMode.RequiresBackupAck() {
        future.completionCb(future.writeReq, future.writeRes)
    }
}

// OnResult consumes a backup node's direct response: failed keys are merged
// into the response accumulator, near-cache evictions unregister readers on the
// affected entries, and the mapping the response acknowledges is removed.
func (future *UpdateFuture) OnResult(nodeID uint64, updateRes *UpdateResponse) {
    Log.Debugf("Future %s: received update response from node %d for partition %d", future.futureVersion.String(), nodeID, updateRes.Partition)

    if updateRes.Error != "" {
        future.writeRes.AddFailedKeys(updateRes.FailedKeys, errors.New(updateRes.Error))
    }

    for _, key := range updateRes.NearEvicted {
        entry, ok := future.nearReaderEntries[key]

        if !ok {
            continue
        }

        if err := entry.RemoveReader(nodeID, updateRes.Seq); err == EEntryRemoved {
            Log.Debugf("Future %s: entry %s with evicted reader was already removed", future.futureVersion.String(), key)
        }

        future.writeRes.AddEvictedKey(key)
    }

    future.mappings.remove(MappingKey{ NodeID: nodeID, Partition: updateRes.Partition })
    future.checkComplete()
}

// OnDeferredResult consumes a batched payload-less acknowledgment covering
// several partitions from one backup node. Deferred responses carry no failed
// keys or evictions, only acknowledgment.
func (future *UpdateFuture) OnDeferredResult(nodeID uint64, deferredRes *DeferredUpdateResponse) {
    Log.Debugf("Future %s: received deferred update response from node %d for partitions %v", future.futureVersion.String(), nodeID, deferredRes.Partitions)

    for _, partition := range deferredRes.Partitions {
        future.mappings.remove(MappingKey{ NodeID: nodeID, Partition: partition })
    }

    future.checkComplete()
}

// OnNodeLeft purges all mappings destined to a departed node, covering the
// window where a send succeeded but the acknowledgment will never arrive. It
// reports whether this future was affected at all.
func (future *UpdateFuture) OnNodeLeft(nodeID uint64) bool {
    if !future.mappings.removeNode(nodeID) {
        return false
    }

    Log.Debugf("Future %s: purged mappings for departed node %d", future.futureVersion.String(), nodeID)

    future.checkComplete()

    return true
}

// CompleteFuture returns the future itself when it must finish before a
// topology exchange to the target version may proceed, or nil when the
// exchange is free to go ahead. A write issued with its topology pinned or
// fast-mapped never blocks an exchange.
func (future *UpdateFuture) CompleteFuture(targetTopologyVersion uint64) *UpdateFuture {
    if future.waitForExchange && future.writeReq.TopologyVersion < targetTopologyVersion {
        return future
    }

    return nil
}

func (future *UpdateFuture) checkComplete() {
    // Always wait for replies from all backups
    if !future.mappings.isEmpty() {
        return
    }

    future.onDone()
}

// onDone performs the completion side effects exactly once no matter how many
// goroutines observe the empty mapping table concurrently.
func (future *UpdateFuture) onDone() bool {
    if !atomic.CompareAndSwapUint32(&future.done, 0, 1) {
        return false
    }

    Log.Debugf("Future %s: complete", future.futureVersion.String())

    future.registry.Deregister(future.futureVersion)
    close(future.completeCh)

    if future.writeReq.SyncMode.RequiresBackupAck() {
        future.completionCb(future.writeReq, future.writeRes)
    }

    return true
}
