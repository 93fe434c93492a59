package replication

import (
    . "atomickv/data"
)

// UpdateResponse is a backup node's direct acknowledgment of one batched update
// request. Seq is the message sequence number the backup generated the response
// under; it guards reader removals against re-registrations that happened after
// the response was produced.
type UpdateResponse struct {
    FutureVersion Version `json:"futureVersion"`
    Partition int64 `json:"partition"`
    Error string `json:"error,omitempty"`
    FailedKeys []string `json:"failedKeys,omitempty"`
    NearEvicted []string `json:"nearEvicted,omitempty"`
    Seq uint64 `json:"seq"`
}

// DeferredUpdateResponse is a batched, payload-less acknowledgment covering
// several partitions at once. Backups emit these instead of one direct response
// per partition to cut response traffic under load.
type DeferredUpdateResponse struct {
    FutureVersion Version `json:"futureVersion"`
    Partitions []int64 `json:"partitions"`
}
