package shared_test

import (
    . "atomickv/replication"
    . "atomickv/shared"

    . "github.com/onsi/ginkgo"
    . "github.com/onsi/gomega"
)

func validConfig() YAMLServerConfig {
    return YAMLServerConfig{
        DBFile: "/tmp/testdb",
        Port: 8080,
        NodeID: 1,
    }
}

var _ = Describe("YAMLServerConfig", func() {
    Describe("#Validate", func() {
        It("Should accept a minimal config and fill in defaults", func() {
            config := validConfig()

            Expect(config.Validate()).Should(BeNil())
            Expect(config.Partitions).Should(Equal(uint64(1024)))
            Expect(config.ReplicationFactor).Should(Equal(uint64(3)))
            Expect(config.NetworkTimeoutSeconds).Should(Equal(10))
        })

        It("Should require a database file", func() {
            config := validConfig()
            config.DBFile = ""

            Expect(config.Validate()).Should(HaveOccurred())
        })

        It("Should require a valid server port", func() {
            config := validConfig()
            config.Port = 0

            Expect(config.Validate()).Should(HaveOccurred())

            config.Port = 70000

            Expect(config.Validate()).Should(HaveOccurred())
        })

        It("Should require a non-zero node ID", func() {
            config := validConfig()
            config.NodeID = 0

            Expect(config.Validate()).Should(HaveOccurred())
        })

        It("Should require a power of two partition count within range", func() {
            config := validConfig()
            config.Partitions = 1000

            Expect(config.Validate()).Should(HaveOccurred())

            config.Partitions = 32

            Expect(config.Validate()).Should(HaveOccurred())

            config.Partitions = 131072

            Expect(config.Validate()).Should(HaveOccurred())

            config.Partitions = 4096

            Expect(config.Validate()).Should(BeNil())
        })

        It("Should validate each peer entry", func() {
            config := validConfig()
            config.Peers = []YAMLPeer{ YAMLPeer{ ID: 0, Host: "localhost", Port: 8080 } }

            Expect(config.Validate()).Should(HaveOccurred())

            config.Peers = []YAMLPeer{ YAMLPeer{ ID: 2, Host: "", Port: 8080 } }

            Expect(config.Validate()).Should(HaveOccurred())

            config.Peers = []YAMLPeer{ YAMLPeer{ ID: 2, Host: "localhost", Port: 0 } }

            Expect(config.Validate()).Should(HaveOccurred())

            config.Peers = []YAMLPeer{ YAMLPeer{ ID: 2, Host: "localhost", Port: 8080 } }

            Expect(config.Validate()).Should(BeNil())
        })

        It("Should reject an invalid log level", func() {
            config := validConfig()
            config.LogLevel = "noisy"

            Expect(config.Validate()).Should(HaveOccurred())
        })
    })

    Describe("#ParseSyncMode", func() {
        It("Should default to full synchronization", func() {
            config := validConfig()

            syncMode, err := config.ParseSyncMode()

            Expect(err).Should(BeNil())
            Expect(syncMode).Should(Equal(WriteSyncFull))
        })

        It("Should parse each synchronization mode by name", func() {
            config := validConfig()

            config.SyncMode = "primary"
            syncMode, err := config.ParseSyncMode()
            Expect(err).Should(BeNil())
            Expect(syncMode).Should(Equal(WriteSyncPrimary))

            config.SyncMode = "none"
            syncMode, err = config.ParseSyncMode()
            Expect(err).Should(BeNil())
            Expect(syncMode).Should(Equal(WriteSyncNone))

            config.SyncMode = "sometimes"
            _, err = config.ParseSyncMode()
            Expect(err).Should(HaveOccurred())
        })
    })
})
