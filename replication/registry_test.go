package replication_test

import (
    . "atomickv/data"
    . "atomickv/replication"

    . "github.com/onsi/ginkgo"
    . "github.com/onsi/gomega"
)

var _ = Describe("FutureRegistry", func() {
    var affinity *MockAffinity
    var membership *MockMembership
    var messenger *MockMessenger
    var replicator *Replicator

    BeforeEach(func() {
        affinity = NewMockAffinity()
        membership = NewMockMembership()
        messenger = NewMockMessenger()
        replicator = newTestReplicator(1, affinity, membership, messenger)
    })

    Describe("#Register", func() {
        It("Should make a future retrievable by its version", func() {
            future, _ := buildFuture(replicator, WriteSyncFull, 1, func(writeReq *WriteRequest, writeRes *WriteResponse) { })

            Expect(replicator.Registry.Future(future.Version())).Should(Equal(future))
            Expect(len(replicator.Registry.Futures())).Should(Equal(1))
        })
    })

    Describe("#Future", func() {
        It("Should return nothing for an unknown version", func() {
            Expect(replicator.Registry.Future(Version{ TopologyVersion: 1, Order: 99, NodeID: 1 })).Should(BeNil())
        })
    })

    Describe("#NotifyNodeLeft", func() {
        It("Should propagate the departure to every outstanding future and count the affected ones", func() {
            affinity.defaultOwnersResponse = []uint64{ 2, 3 }

            futureA, _ := buildFuture(replicator, WriteSyncFull, 1, func(writeReq *WriteRequest, writeRes *WriteResponse) { })
            futureA.AddWriteEntry(NewEntry("k1", 5), []byte("v1"), nil, 0, 0, nil)
            futureA.Map()

            affinity.defaultOwnersResponse = []uint64{ 3 }

            futureB, _ := buildFuture(replicator, WriteSyncFull, 1, func(writeReq *WriteRequest, writeRes *WriteResponse) { })
            futureB.AddWriteEntry(NewEntry("k2", 9), []byte("v2"), nil, 0, 0, nil)
            futureB.Map()

            Expect(replicator.Registry.NotifyNodeLeft(2)).Should(Equal(1))
            Expect(futureA.OutstandingMappings()).Should(Equal(1))
            Expect(futureB.OutstandingMappings()).Should(Equal(1))
        })

        It("Should complete a future whose last mapping belonged to the departed node", func() {
            affinity.defaultOwnersResponse = []uint64{ 2 }

            future, _ := buildFuture(replicator, WriteSyncFull, 1, func(writeReq *WriteRequest, writeRes *WriteResponse) { })
            future.AddWriteEntry(NewEntry("k1", 5), []byte("v1"), nil, 0, 0, nil)
            future.Map()

            Expect(replicator.Registry.NotifyNodeLeft(2)).Should(Equal(1))

            select {
            case <-future.Done():
            default:
                Fail("Future should have completed")
            }

            Expect(len(replicator.Registry.Futures())).Should(Equal(0))
        })
    })

    Describe("#WaitFutures", func() {
        It("Should return only futures that block an exchange to the target topology version", func() {
            affinity.defaultOwnersResponse = []uint64{ 2 }

            blocking, _ := buildFuture(replicator, WriteSyncFull, 1, func(writeReq *WriteRequest, writeRes *WriteResponse) { })
            blocking.AddWriteEntry(NewEntry("k1", 5), []byte("v1"), nil, 0, 0, nil)

            current, _ := buildFuture(replicator, WriteSyncFull, 2, func(writeReq *WriteRequest, writeRes *WriteResponse) { })
            current.AddWriteEntry(NewEntry("k2", 9), []byte("v2"), nil, 0, 0, nil)

            lockedReq := &WriteRequest{ TopologyVersion: 1, SyncMode: WriteSyncFull, TopologyLocked: true }
            locked := replicator.NewUpdateFuture(replicator.Versions.Next(1), lockedReq, NewWriteResponse(), func(writeReq *WriteRequest, writeRes *WriteResponse) { })

            waitFutures := replicator.Registry.WaitFutures(2)

            Expect(len(waitFutures)).Should(Equal(1))
            Expect(waitFutures[0]).Should(Equal(blocking))
            Expect(locked.CompleteFuture(2)).Should(BeNil())
        })
    })
})
