package cluster

import (
    "errors"
    "sync"

    "github.com/cespare/xxhash/v2"
)

const MaxPartitionCount uint64 = 65536
const DefaultPartitionCount uint64 = 1024
const MinPartitionCount uint64 = 64

var EPreconditionFailed = errors.New("Unable to validate precondition")
var ENoNodesAvailable = errors.New("Unable to assign partitions because there are no available nodes in the cluster")

type PartitioningStrategy interface {
    AssignPartitions(nodes []uint64, partitions uint64) []uint64
    Owners(assignment []uint64, partition uint64, replicationFactor uint64) []uint64
    Partition(key string, partitionCount uint64) uint64
}

// Simple partitioning strategy that stripes partitions across nodes so each node
// owns as close to an even share of partitions as possible. Replicas are chosen
// by walking the assignment ring forward from the partition's primary.
type SimplePartitioningStrategy struct {
    // cached shift amount so it doesnt have to be recalculated every time
    shiftAmount int
    lock sync.Mutex
}

func (ps *SimplePartitioningStrategy) AssignPartitions(nodes []uint64, partitions uint64) []uint64 {
    assignments := make([]uint64, partitions)

    if len(nodes) == 0 {
        return assignments
    }

    for partition, _ := range assignments {
        assignments[partition] = nodes[partition % len(nodes)]
    }

    return assignments
}

func (ps *SimplePartitioningStrategy) Owners(assignment []uint64, partition uint64, replicationFactor uint64) []uint64 {
    if assignment == nil {
        return []uint64{}
    }

    if partition >= uint64(len(assignment)) {
        return []uint64{}
    }

    ownersSet := make(map[uint64]bool, int(replicationFactor))
    owners := make([]uint64, 0, int(replicationFactor))

    for i := 0; i < len(assignment) && len(ownersSet) < int(replicationFactor); i++ {
        realIndex := (i + int(partition)) % len(assignment)

        // 0 is not a valid node ID. These indicate partitions that have not been assigned yet
        if assignment[realIndex] == 0 {
            continue
        }

        if _, ok := ownersSet[assignment[realIndex]]; !ok {
            ownersSet[assignment[realIndex]] = true
            owners = append(owners, assignment[realIndex])
        }
    }

    return owners
}

func (ps *SimplePartitioningStrategy) Partition(key string, partitionCount uint64) uint64 {
    hash := xxhash.Sum64String(key)

    if ps.shiftAmount == 0 {
        ps.CalculateShiftAmount(partitionCount)
    }

    return hash >> uint(ps.shiftAmount)
}

func (ps *SimplePartitioningStrategy) CalculateShiftAmount(partitionCount uint64) int {
    ps.lock.Lock()
    defer ps.lock.Unlock()

    if ps.shiftAmount != 0 {
        return ps.shiftAmount
    }

    ps.shiftAmount = 65

    for partitionCount > 0 {
        ps.shiftAmount--
        partitionCount = partitionCount >> 1
    }

    return ps.shiftAmount
}
