package cluster_test

import (
    . "atomickv/cluster"

    . "github.com/onsi/ginkgo"
    . "github.com/onsi/gomega"
)

var _ = Describe("SimplePartitioningStrategy", func() {
    var ps *SimplePartitioningStrategy

    BeforeEach(func() {
        ps = &SimplePartitioningStrategy{ }
    })

    Describe("#AssignPartitions", func() {
        It("Should stripe partitions evenly across the given nodes", func() {
            assignment := ps.AssignPartitions([]uint64{ 1, 2, 3 }, 6)

            Expect(assignment).Should(Equal([]uint64{ 1, 2, 3, 1, 2, 3 }))
        })

        It("Should leave all partitions unassigned when there are no nodes", func() {
            assignment := ps.AssignPartitions([]uint64{ }, 4)

            Expect(assignment).Should(Equal([]uint64{ 0, 0, 0, 0 }))
        })
    })

    Describe("#Owners", func() {
        It("Should walk the ring forward from the primary collecting distinct owners", func() {
            assignment := []uint64{ 1, 2, 3, 1, 2, 3 }

            Expect(ps.Owners(assignment, 0, 2)).Should(Equal([]uint64{ 1, 2 }))
            Expect(ps.Owners(assignment, 4, 3)).Should(Equal([]uint64{ 2, 3, 1 }))
        })

        It("Should skip unassigned slots", func() {
            assignment := []uint64{ 1, 0, 0, 2 }

            Expect(ps.Owners(assignment, 1, 2)).Should(Equal([]uint64{ 2, 1 }))
        })

        It("Should return fewer owners than the replication factor when the cluster is too small", func() {
            assignment := []uint64{ 1, 1, 1, 1 }

            Expect(ps.Owners(assignment, 0, 3)).Should(Equal([]uint64{ 1 }))
        })

        It("Should return no owners for an out of range partition", func() {
            Expect(ps.Owners([]uint64{ 1, 2 }, 5, 2)).Should(Equal([]uint64{ }))
            Expect(ps.Owners(nil, 0, 2)).Should(Equal([]uint64{ }))
        })
    })

    Describe("#Partition", func() {
        It("Should map every key to a partition inside the partition range", func() {
            keys := []string{ "a", "b", "some longer key", "another key", "" }

            for _, key := range keys {
                Expect(ps.Partition(key, 64)).Should(BeNumerically("<", 64))
            }
        })

        It("Should map the same key to the same partition every time", func() {
            Expect(ps.Partition("k1", 64)).Should(Equal(ps.Partition("k1", 64)))
        })
    })
})
