package transport_test

import (
    "net"
    "net/http/httptest"
    "net/url"
    "strconv"
    "time"

    "github.com/gorilla/mux"

    . "atomickv/cluster"
    . "atomickv/data"
    . "atomickv/replication"
    . "atomickv/transport"

    . "github.com/onsi/ginkgo"
    . "github.com/onsi/gomega"
)

// startHub attaches a hub to a test server and returns the address peers
// should use to reach it.
func startHub(nodeID uint64) (*TransportHub, PeerAddress, *httptest.Server) {
    hub := NewTransportHub(nodeID)
    router := mux.NewRouter()
    hub.Attach(router)

    testServer := httptest.NewServer(router)
    serverURL, err := url.Parse(testServer.URL)
    Expect(err).Should(BeNil())

    host, portString, err := net.SplitHostPort(serverURL.Host)
    Expect(err).Should(BeNil())

    port, err := strconv.Atoi(portString)
    Expect(err).Should(BeNil())

    return hub, PeerAddress{ NodeID: nodeID, Host: host, Port: port }, testServer
}

var _ = Describe("TransportHub", func() {
    var senderHub *TransportHub
    var receiverHub *TransportHub
    var senderAddress PeerAddress
    var receiverAddress PeerAddress
    var senderServer *httptest.Server
    var receiverServer *httptest.Server

    BeforeEach(func() {
        senderHub, senderAddress, senderServer = startHub(1)
        receiverHub, receiverAddress, receiverServer = startHub(2)

        senderHub.AddPeer(receiverAddress)
        receiverHub.AddPeer(senderAddress)
    })

    AfterEach(func() {
        senderServer.Close()
        receiverServer.Close()
    })

    Describe("#Send", func() {
        It("Should deliver an update request to the receiver's update callback along with the sender's node ID", func() {
            received := make(chan *UpdateRequest, 1)

            receiverHub.OnUpdate(func(nodeID uint64, updateReq *UpdateRequest) error {
                Expect(nodeID).Should(Equal(uint64(1)))
                received <- updateReq

                return nil
            })

            updateReq := NewUpdateRequest(2, UnorderedPartition, Version{ TopologyVersion: 1, Order: 1, NodeID: 1 }, Version{ TopologyVersion: 1, Order: 2, NodeID: 1 }, WriteSyncFull, 1, false, nil)
            updateReq.AddWriteValue("k1", []byte("v1"), nil, 0, 0, nil)

            Expect(senderHub.Send(2, updateReq)).Should(BeNil())

            select {
            case receivedReq := <-received:
                Expect(receivedReq.FutureVersion).Should(Equal(updateReq.FutureVersion))
                Expect(len(receivedReq.Entries)).Should(Equal(1))
                Expect(receivedReq.Entries[0].Key).Should(Equal("k1"))
            case <-time.After(time.Second):
                Fail("Should have received the update request")
            }
        })

        It("Should fail with ENoSuchNode when the destination is not a known peer", func() {
            updateReq := NewUpdateRequest(99, UnorderedPartition, Version{ }, Version{ }, WriteSyncFull, 1, false, nil)

            Expect(senderHub.Send(99, updateReq)).Should(Equal(ENoSuchNode))
        })

        It("Should fail with ESenderUnknown when the receiver does not know the sender", func() {
            receiverHub.RemovePeer(1)

            updateReq := NewUpdateRequest(2, UnorderedPartition, Version{ }, Version{ }, WriteSyncFull, 1, false, nil)

            Expect(senderHub.Send(2, updateReq)).Should(Equal(ESenderUnknown))
        })
    })

    Describe("#SendOrdered", func() {
        It("Should deliver update requests for one partition in the order they were sent", func() {
            received := make(chan *UpdateRequest, 16)

            receiverHub.OnUpdate(func(nodeID uint64, updateReq *UpdateRequest) error {
                received <- updateReq

                return nil
            })

            for order := uint64(1); order <= 8; order++ {
                updateReq := NewUpdateRequest(2, 5, Version{ TopologyVersion: 1, Order: order, NodeID: 1 }, Version{ TopologyVersion: 1, Order: order, NodeID: 1 }, WriteSyncFull, 1, false, nil)

                Expect(senderHub.SendOrdered(2, 5, updateReq, time.Second)).Should(BeNil())
            }

            for order := uint64(1); order <= 8; order++ {
                select {
                case receivedReq := <-received:
                    Expect(receivedReq.FutureVersion.Order).Should(Equal(order))
                case <-time.After(time.Second):
                    Fail("Should have received all update requests")
                }
            }
        })

        It("Should fail with ENoSuchNode when the destination is not a known peer", func() {
            updateReq := NewUpdateRequest(99, 5, Version{ }, Version{ }, WriteSyncFull, 1, false, nil)

            Expect(senderHub.SendOrdered(99, 5, updateReq, time.Second)).Should(Equal(ENoSuchNode))
        })
    })

    Describe("#SendResponse", func() {
        It("Should deliver an update response to the receiver's response callback", func() {
            received := make(chan *UpdateResponse, 1)

            receiverHub.OnResponse(func(nodeID uint64, updateRes *UpdateResponse) {
                Expect(nodeID).Should(Equal(uint64(1)))
                received <- updateRes
            })

            updateRes := &UpdateResponse{
                FutureVersion: Version{ TopologyVersion: 1, Order: 1, NodeID: 2 },
                Partition: UnorderedPartition,
                FailedKeys: []string{ "k1" },
                Error: "The write could not be applied",
            }

            Expect(senderHub.SendResponse(2, updateRes)).Should(BeNil())

            select {
            case receivedRes := <-received:
                Expect(receivedRes.FutureVersion).Should(Equal(updateRes.FutureVersion))
                Expect(receivedRes.FailedKeys).Should(Equal([]string{ "k1" }))
            case <-time.After(time.Second):
                Fail("Should have received the update response")
            }
        })
    })

    Describe("#SendDeferredResponse", func() {
        It("Should deliver a deferred update response to the receiver's deferred response callback", func() {
            received := make(chan *DeferredUpdateResponse, 1)

            receiverHub.OnDeferredResponse(func(nodeID uint64, deferredRes *DeferredUpdateResponse) {
                received <- deferredRes
            })

            deferredRes := &DeferredUpdateResponse{
                FutureVersion: Version{ TopologyVersion: 1, Order: 1, NodeID: 2 },
                Partitions: []int64{ 3, 7 },
            }

            Expect(senderHub.SendDeferredResponse(2, deferredRes)).Should(BeNil())

            select {
            case receivedRes := <-received:
                Expect(receivedRes.Partitions).Should(Equal([]int64{ 3, 7 }))
            case <-time.After(time.Second):
                Fail("Should have received the deferred update response")
            }
        })
    })
})
