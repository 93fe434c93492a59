package cluster_test

import (
    . "atomickv/cluster"

    . "github.com/onsi/ginkgo"
    . "github.com/onsi/gomega"
)

var _ = Describe("ClusterController", func() {
    var clusterController *ClusterController

    BeforeEach(func() {
        clusterController = NewClusterController(1, 64, 2)
    })

    Describe("#AddNode", func() {
        It("Should advance the topology version on every membership change", func() {
            Expect(clusterController.TopologyVersion()).Should(Equal(uint64(0)))

            clusterController.AddNode(PeerAddress{ NodeID: 1, Host: "localhost", Port: 9090 })
            Expect(clusterController.TopologyVersion()).Should(Equal(uint64(1)))

            clusterController.AddNode(PeerAddress{ NodeID: 2, Host: "localhost", Port: 9091 })
            Expect(clusterController.TopologyVersion()).Should(Equal(uint64(2)))

            Expect(clusterController.Members()).Should(Equal([]uint64{ 1, 2 }))
        })
    })

    Describe("#RemoveNode", func() {
        It("Should notify node left watchers outside the membership lock", func() {
            clusterController.AddNode(PeerAddress{ NodeID: 1, Host: "localhost", Port: 9090 })
            clusterController.AddNode(PeerAddress{ NodeID: 2, Host: "localhost", Port: 9091 })

            departed := make(chan uint64, 1)

            clusterController.OnNodeLeft(func(nodeID uint64) {
                // Calling back into the controller must not deadlock
                Expect(clusterController.IsMember(nodeID)).Should(BeFalse())
                departed <- nodeID
            })

            clusterController.RemoveNode(2)

            select {
            case nodeID := <-departed:
                Expect(nodeID).Should(Equal(uint64(2)))
            default:
                Fail("Should have notified the node left watcher")
            }
        })

        It("Should not advance the topology version or notify watchers for an unknown node", func() {
            clusterController.AddNode(PeerAddress{ NodeID: 1, Host: "localhost", Port: 9090 })

            notified := make(chan uint64, 1)
            clusterController.OnNodeLeft(func(nodeID uint64) {
                notified <- nodeID
            })

            clusterController.RemoveNode(99)

            Expect(clusterController.TopologyVersion()).Should(Equal(uint64(1)))
            Expect(len(notified)).Should(Equal(0))
        })
    })

    Describe("#OwnersOf", func() {
        It("Should resolve owners under the assignment that was current at the given topology version", func() {
            clusterController.AddNode(PeerAddress{ NodeID: 1, Host: "localhost", Port: 9090 })
            clusterController.AddNode(PeerAddress{ NodeID: 2, Host: "localhost", Port: 9091 })

            ownersBefore := clusterController.OwnersOf(0, 2)
            Expect(ownersBefore).Should(Equal([]uint64{ 1, 2 }))

            clusterController.RemoveNode(2)

            // The historical assignment still resolves for in-flight updates
            Expect(clusterController.OwnersOf(0, 2)).Should(Equal(ownersBefore))
            Expect(clusterController.OwnersOf(0, 3)).Should(Equal([]uint64{ 1 }))
        })

        It("Should resolve no owners for a topology version it has never seen", func() {
            Expect(clusterController.OwnersOf(0, 42)).Should(Equal([]uint64{ }))
        })
    })

    Describe("#MemberAddress", func() {
        It("Should return an empty address for a node that is not a member", func() {
            Expect(clusterController.MemberAddress(7).IsEmpty()).Should(BeTrue())
        })
    })
})
