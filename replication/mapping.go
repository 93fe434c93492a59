package replication

import (
    "sync"
)

// UnorderedPartition is the routing partition used when ordered delivery is
// disabled. All updates destined to one node then share a single batched
// request regardless of which partition each key belongs to.
const UnorderedPartition int64 = -1

// MappingKey identifies one outgoing batched request: the backup node it is
// addressed to and the routing partition used to pick the delivery channel.
type MappingKey struct {
    NodeID uint64
    Partition int64
}

// mappingTable is the set of outstanding batched requests for one update
// future. Population, dispatch, response handling and membership purges all
// touch it from different goroutines so every operation takes the table lock.
// Removing an absent mapping is a no-op, which lets every removal path race
// safely with every other one.
type mappingTable struct {
    lock sync.Mutex
    mappings map[MappingKey]*UpdateRequest
}

func newMappingTable() *mappingTable {
    return &mappingTable{
        mappings: make(map[MappingKey]*UpdateRequest),
    }
}

func (table *mappingTable) getOrCreate(mappingKey MappingKey, create func() *UpdateRequest) *UpdateRequest {
    table.lock.Lock()
    defer table.lock.Unlock()

    if updateReq, ok := table.mappings[mappingKey]; ok {
        return updateReq
    }

    updateReq := create()
    table.mappings[mappingKey] = updateReq

    return updateReq
}

func (table *mappingTable) remove(mappingKey MappingKey) {
    table.lock.Lock()
    defer table.lock.Unlock()

    delete(table.mappings, mappingKey)
}

// removeNode purges every mapping destined to the given node and reports
// whether any mapping was actually removed.
func (table *mappingTable) removeNode(nodeID uint64) bool {
    table.lock.Lock()
    defer table.lock.Unlock()

    removedAny := false

    for mappingKey, _ := range table.mappings {
        if mappingKey.NodeID == nodeID {
            delete(table.mappings, mappingKey)
            removedAny = true
        }
    }

    return removedAny
}

func (table *mappingTable) isEmpty() bool {
    table.lock.Lock()
    defer table.lock.Unlock()

    return len(table.mappings) == 0
}

func (table *mappingTable) size() int {
    table.lock.Lock()
    defer table.lock.Unlock()

    return len(table.mappings)
}

// snapshot returns a copy of the table safe to iterate while other goroutines
// concurrently remove mappings.
func (table *mappingTable) snapshot() map[MappingKey]*UpdateRequest {
    table.lock.Lock()
    defer table.lock.Unlock()

    snapshot := make(map[MappingKey]*UpdateRequest, len(table.mappings))

    for mappingKey, updateReq := range table.mappings {
        snapshot[mappingKey] = updateReq
    }

    return snapshot
}
