package cluster

import (
    "errors"
    "fmt"
    "sort"
    "sync"

    . "atomickv/logging"
)

var ENoSuchNode = errors.New("The node specified in the update does not exist")

type PeerAddress struct {
    NodeID uint64 `yaml:"id" json:"id"`
    Host string `yaml:"host" json:"host"`
    Port int `yaml:"port" json:"port"`
}

func (peerAddress PeerAddress) IsEmpty() bool {
    return peerAddress.NodeID == 0
}

func (peerAddress PeerAddress) ToHTTPURL(endpoint string) string {
    return fmt.Sprintf("http://%s:%d%s", peerAddress.Host, peerAddress.Port, endpoint)
}

func (peerAddress PeerAddress) ToWebsocketURL(endpoint string) string {
    return fmt.Sprintf("ws://%s:%d%s", peerAddress.Host, peerAddress.Port, endpoint)
}

// ClusterController tracks the current cluster membership and the
// partition-to-node assignment at every topology version it has seen.
// Each membership change produces a new topology version so in-flight
// updates issued under an older assignment can still resolve the owners
// they were mapped against.
type ClusterController struct {
    PartitioningStrategy PartitioningStrategy
    localNodeID uint64
    partitionCount uint64
    replicationFactor uint64
    lock sync.Mutex
    members map[uint64]PeerAddress
    assignments map[uint64][]uint64
    topologyVersion uint64
    nodeLeftWatchers []func(nodeID uint64)
}

func NewClusterController(localNodeID uint64, partitionCount uint64, replicationFactor uint64) *ClusterController {
    if partitionCount == 0 {
        partitionCount = DefaultPartitionCount
    }

    return &ClusterController{
        PartitioningStrategy: &SimplePartitioningStrategy{ },
        localNodeID: localNodeID,
        partitionCount: partitionCount,
        replicationFactor: replicationFactor,
        members: make(map[uint64]PeerAddress),
        assignments: make(map[uint64][]uint64),
    }
}

func (clusterController *ClusterController) LocalNodeID() uint64 {
    return clusterController.localNodeID
}

func (clusterController *ClusterController) PartitionCount() uint64 {
    return clusterController.partitionCount
}

func (clusterController *ClusterController) AddNode(peerAddress PeerAddress) {
    clusterController.lock.Lock()
    defer clusterController.lock.Unlock()

    clusterController.members[peerAddress.NodeID] = peerAddress
    clusterController.advanceTopology()

    Log.Infof("Node %d joined the cluster. Topology version is now %d", peerAddress.NodeID, clusterController.topologyVersion)
}

func (clusterController *ClusterController) RemoveNode(nodeID uint64) {
    clusterController.lock.Lock()

    if _, ok := clusterController.members[nodeID]; !ok {
        clusterController.lock.Unlock()

        return
    }

    delete(clusterController.members, nodeID)
    clusterController.advanceTopology()
    watchers := make([]func(nodeID uint64), len(clusterController.nodeLeftWatchers))
    copy(watchers, clusterController.nodeLeftWatchers)

    Log.Infof("Node %d left the cluster. Topology version is now %d", nodeID, clusterController.topologyVersion)

    clusterController.lock.Unlock()

    // Watchers are notified outside the lock since they may call back into the controller
    for _, watcher := range watchers {
        watcher(nodeID)
    }
}

func (clusterController *ClusterController) advanceTopology() {
    nodes := make([]uint64, 0, len(clusterController.members))

    for nodeID, _ := range clusterController.members {
        nodes = append(nodes, nodeID)
    }

    sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

    clusterController.topologyVersion++
    clusterController.assignments[clusterController.topologyVersion] = clusterController.PartitioningStrategy.AssignPartitions(nodes, clusterController.partitionCount)
}

func (clusterController *ClusterController) IsMember(nodeID uint64) bool {
    clusterController.lock.Lock()
    defer clusterController.lock.Unlock()

    _, ok := clusterController.members[nodeID]

    return ok
}

func (clusterController *ClusterController) MemberAddress(nodeID uint64) PeerAddress {
    clusterController.lock.Lock()
    defer clusterController.lock.Unlock()

    return clusterController.members[nodeID]
}

func (clusterController *ClusterController) Members() []uint64 {
    clusterController.lock.Lock()
    defer clusterController.lock.Unlock()

    members := make([]uint64, 0, len(clusterController.members))

    for nodeID, _ := range clusterController.members {
        members = append(members, nodeID)
    }

    sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })

    return members
}

func (clusterController *ClusterController) TopologyVersion() uint64 {
    clusterController.lock.Lock()
    defer clusterController.lock.Unlock()

    return clusterController.topologyVersion
}

// OwnersOf resolves the replica set of a partition under a specific topology
// version. The first owner is the partition's primary.
func (clusterController *ClusterController) OwnersOf(partition uint64, topologyVersion uint64) []uint64 {
    clusterController.lock.Lock()
    defer clusterController.lock.Unlock()

    assignment, ok := clusterController.assignments[topologyVersion]

    if !ok {
        return []uint64{}
    }

    return clusterController.PartitioningStrategy.Owners(assignment, partition, clusterController.replicationFactor)
}

func (clusterController *ClusterController) Partition(key string) uint64 {
    return clusterController.PartitioningStrategy.Partition(key, clusterController.partitionCount)
}

func (clusterController *ClusterController) OnNodeLeft(watcher func(nodeID uint64)) {
    clusterController.lock.Lock()
    defer clusterController.lock.Unlock()

    clusterController.nodeLeftWatchers = append(clusterController.nodeLeftWatchers, watcher)
}
