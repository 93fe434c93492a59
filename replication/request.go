package replication

import (
    . "atomickv/data"
)

// WriteEntry is one primary-copy write carried by a batched update request.
type WriteEntry struct {
    Key string `json:"key"`
    Value []byte `json:"value,omitempty"`
    Processor *EntryProcessor `json:"processor,omitempty"`
    TTL int64 `json:"ttl"`
    ConflictExpireTime int64 `json:"conflictExpireTime"`
    ConflictVersion *Version `json:"conflictVersion,omitempty"`
}

// NearWriteEntry is one near-cache write carried by a batched update request,
// destined to a node that only holds a cached reader copy of the key.
type NearWriteEntry struct {
    Key string `json:"key"`
    Value []byte `json:"value,omitempty"`
    Processor *EntryProcessor `json:"processor,omitempty"`
    TTL int64 `json:"ttl"`
    ExpireTime int64 `json:"expireTime"`
}

// UpdateRequest is the batched replication request for one
// (destination node, routing partition) pair. It is populated by a single
// goroutine before the fan-out send and never mutated afterwards.
type UpdateRequest struct {
    NodeID uint64 `json:"nodeID"`
    Partition int64 `json:"partition"`
    FutureVersion Version `json:"futureVersion"`
    WriteVersion Version `json:"writeVersion"`
    SyncMode WriteSyncMode `json:"syncMode"`
    TopologyVersion uint64 `json:"topologyVersion"`
    ForwardProcessors bool `json:"forwardProcessors"`
    ProcessorArgs []string `json:"processorArgs,omitempty"`
    Entries []WriteEntry `json:"entries,omitempty"`
    NearEntries []NearWriteEntry `json:"nearEntries,omitempty"`
}

func NewUpdateRequest(nodeID uint64, partition int64, futureVersion Version, writeVersion Version, syncMode WriteSyncMode, topologyVersion uint64, forwardProcessors bool, processorArgs []string) *UpdateRequest {
    return &UpdateRequest{
        NodeID: nodeID,
        Partition: partition,
        FutureVersion: futureVersion,
        WriteVersion: writeVersion,
        SyncMode: syncMode,
        TopologyVersion: topologyVersion,
        ForwardProcessors: forwardProcessors,
        ProcessorArgs: processorArgs,
    }
}

func (updateReq *UpdateRequest) AddWriteValue(key string, value []byte, processor *EntryProcessor, ttl int64, conflictExpireTime int64, conflictVersion *Version) {
    if !updateReq.ForwardProcessors {
        processor = nil
    }

    updateReq.Entries = append(updateReq.Entries, WriteEntry{
        Key: key,
        Value: value,
        Processor: processor,
        TTL: ttl,
        ConflictExpireTime: conflictExpireTime,
        ConflictVersion: conflictVersion,
    })
}

func (updateReq *UpdateRequest) AddNearWriteValue(key string, value []byte, processor *EntryProcessor, ttl int64, expireTime int64) {
    if !updateReq.ForwardProcessors {
        processor = nil
    }

    updateReq.NearEntries = append(updateReq.NearEntries, NearWriteEntry{
        Key: key,
        Value: value,
        Processor: processor,
        TTL: ttl,
        ExpireTime: expireTime,
    })
}
