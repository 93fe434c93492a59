package data_test

import (
    . "atomickv/data"

    . "github.com/onsi/ginkgo"
    . "github.com/onsi/gomega"
)

var _ = Describe("Version", func() {
    Describe("#Compare", func() {
        It("Should order by topology version first", func() {
            a := Version{ TopologyVersion: 1, Order: 9, NodeID: 9 }
            b := Version{ TopologyVersion: 2, Order: 1, NodeID: 1 }

            Expect(a.Compare(b)).Should(Equal(-1))
            Expect(b.Compare(a)).Should(Equal(1))
        })

        It("Should order by order counter under the same topology version", func() {
            a := Version{ TopologyVersion: 1, Order: 1, NodeID: 9 }
            b := Version{ TopologyVersion: 1, Order: 2, NodeID: 1 }

            Expect(a.Compare(b)).Should(Equal(-1))
            Expect(b.Compare(a)).Should(Equal(1))
        })

        It("Should break ties between nodes by node ID", func() {
            a := Version{ TopologyVersion: 1, Order: 1, NodeID: 1 }
            b := Version{ TopologyVersion: 1, Order: 1, NodeID: 2 }

            Expect(a.Compare(b)).Should(Equal(-1))
            Expect(b.Compare(a)).Should(Equal(1))
            Expect(a.Compare(a)).Should(Equal(0))
        })
    })

    Describe("#IsZero", func() {
        It("Should report true only for the zero version", func() {
            Expect(Version{ }.IsZero()).Should(BeTrue())
            Expect(Version{ Order: 1 }.IsZero()).Should(BeFalse())
        })
    })
})

var _ = Describe("VersionService", func() {
    It("Should hand out strictly increasing versions", func() {
        versionService := NewVersionService(4)

        a := versionService.Next(1)
        b := versionService.Next(1)
        c := versionService.Next(2)

        Expect(a.Compare(b)).Should(Equal(-1))
        Expect(b.Compare(c)).Should(Equal(-1))
        Expect(a.NodeID).Should(Equal(uint64(4)))
    })
})
