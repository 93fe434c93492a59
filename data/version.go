package data

import (
    "fmt"
    "sync"
)

// Version is a cluster-wide stamp used to order updates. Versions assigned by one
// node are ordered by their order counter. Versions assigned by different nodes
// under the same topology are disambiguated by node ID.
type Version struct {
    TopologyVersion uint64 `json:"topologyVersion"`
    Order uint64 `json:"order"`
    NodeID uint64 `json:"nodeID"`
}

func (version Version) IsZero() bool {
    return version.TopologyVersion == 0 && version.Order == 0 && version.NodeID == 0
}

func (version Version) Compare(otherVersion Version) int {
    if version.TopologyVersion != otherVersion.TopologyVersion {
        if version.TopologyVersion < otherVersion.TopologyVersion {
            return -1
        }

        return 1
    }

    if version.Order != otherVersion.Order {
        if version.Order < otherVersion.Order {
            return -1
        }

        return 1
    }

    if version.NodeID != otherVersion.NodeID {
        if version.NodeID < otherVersion.NodeID {
            return -1
        }

        return 1
    }

    return 0
}

func (version Version) String() string {
    return fmt.Sprintf("%d.%d.%d", version.TopologyVersion, version.Order, version.NodeID)
}

// VersionService hands out monotonically increasing version stamps for updates
// originating at the local node.
type VersionService struct {
    nodeID uint64
    lock sync.Mutex
    order uint64
}

func NewVersionService(nodeID uint64) *VersionService {
    return &VersionService{
        nodeID: nodeID,
    }
}

func (versionService *VersionService) Next(topologyVersion uint64) Version {
    versionService.lock.Lock()
    defer versionService.lock.Unlock()

    versionService.order++

    return Version{
        TopologyVersion: topologyVersion,
        Order: versionService.order,
        NodeID: versionService.nodeID,
    }
}
