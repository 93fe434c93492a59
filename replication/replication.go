package replication

import (
    "sync"
    "time"

    . "atomickv/cluster"
)

// WriteSyncMode controls when the completion callback for a replicated write is
// allowed to fire relative to backup acknowledgment.
type WriteSyncMode int

const (
    // WriteSyncFull waits for every backup to acknowledge before notifying the caller
    WriteSyncFull WriteSyncMode = iota
    // WriteSyncPrimary notifies the caller as soon as the primary write is applied
    WriteSyncPrimary
    // WriteSyncNone notifies the caller immediately without waiting for any replication
    WriteSyncNone
)

func (syncMode WriteSyncMode) RequiresBackupAck() bool {
    return syncMode == WriteSyncFull
}

func (syncMode WriteSyncMode) String() string {
    switch syncMode {
    case WriteSyncFull:
        return "full"
    case WriteSyncPrimary:
        return "primary"
    default:
        return "none"
    }
}

type Affinity interface {
    OwnersOf(partition uint64, topologyVersion uint64) []uint64
    LocalNodeID() uint64
}

type Membership interface {
    IsMember(nodeID uint64) bool
    MemberAddress(nodeID uint64) PeerAddress
}

// NodeMessenger delivers batched update requests to backup nodes. SendOrdered
// delivers on a channel that preserves ordering among all requests sent to the
// same (node, partition) pair. Both return ENoSuchNode when the destination is
// no longer a cluster member.
type NodeMessenger interface {
    SendOrdered(nodeID uint64, partition uint64, updateReq *UpdateRequest, timeout time.Duration) error
    Send(nodeID uint64, updateReq *UpdateRequest) error
}

// CompletionCallback is supplied by the write path and receives the original
// write request along with the response accumulator once the synchronization
// policy allows the client to be answered.
type CompletionCallback func(writeReq *WriteRequest, writeRes *WriteResponse)

// WriteRequest describes the logical write being replicated as the originating
// write path submitted it.
type WriteRequest struct {
    Keys []string `json:"keys"`
    TopologyVersion uint64 `json:"topologyVersion"`
    SyncMode WriteSyncMode `json:"syncMode"`
    TopologyLocked bool `json:"topologyLocked"`
    FastMap bool `json:"fastMap"`
    ForwardProcessors bool `json:"forwardProcessors"`
    ProcessorArgs []string `json:"processorArgs,omitempty"`
}

// WriteResponse accumulates the failure and eviction information that is
// reported back to the client. Backups deliver their results concurrently so
// all mutations are serialized internally.
type WriteResponse struct {
    lock sync.Mutex
    failedKeys []string
    evictedKeys []string
    err error
}

func NewWriteResponse() *WriteResponse {
    return &WriteResponse{ }
}

func (writeRes *WriteResponse) AddFailedKeys(keys []string, err error) {
    writeRes.lock.Lock()
    defer writeRes.lock.Unlock()

    writeRes.failedKeys = append(writeRes.failedKeys, keys...)

    if writeRes.err == nil {
        writeRes.err = err
    }
}

func (writeRes *WriteResponse) AddEvictedKey(key string) {
    writeRes.lock.Lock()
    defer writeRes.lock.Unlock()

    writeRes.evictedKeys = append(writeRes.evictedKeys, key)
}

func (writeRes *WriteResponse) FailedKeys() []string {
    writeRes.lock.Lock()
    defer writeRes.lock.Unlock()

    failedKeys := make([]string, len(writeRes.failedKeys))
    copy(failedKeys, writeRes.failedKeys)

    return failedKeys
}

func (writeRes *WriteResponse) EvictedKeys() []string {
    writeRes.lock.Lock()
    defer writeRes.lock.Unlock()

    evictedKeys := make([]string, len(writeRes.evictedKeys))
    copy(evictedKeys, writeRes.evictedKeys)

    return evictedKeys
}

func (writeRes *WriteResponse) Error() error {
    writeRes.lock.Lock()
    defer writeRes.lock.Unlock()

    return writeRes.err
}
