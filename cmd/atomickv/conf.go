package main

import (
    "fmt"
)

func init() {
    registerCommand("conf", generateConfig, confUsage)
}

var confUsage string =
`Usage: atomickv conf > atomickv.yaml
`

var templateConfig string =
`# The db field specifies the directory where the database files reside on
# disk. If it doesn't exist it will be created.
# **REQUIRED**
db: /tmp/atomickv

# The port field specifies the port number on which to run the database server
port: 9090

# The unique id of this node within the cluster. Must be non-zero.
# **REQUIRED**
nodeID: 1

# The number of partitions the keyspace is divided into. Must be a power of 2.
partitions: 1024

# The number of nodes, including the primary, that hold a copy of each
# partition.
replicationFactor: 3

# When a write is acknowledged to the client:
#   full:    after every backup has acknowledged the write
#   primary: after the primary has applied the write
#   none:    immediately
syncMode: full

# When true, updates to one partition are delivered to each backup in the
# order they were sent. When false, all updates to one node share a single
# unordered channel.
orderedUpdates: false

# When true, entry processors are forwarded to backups and applied there
# instead of shipping precomputed values.
forwardProcessors: false

# The network timeout in seconds for replication sends.
networkTimeout: 10

# All members of the cluster, including this node.
peers:
- id: 1
  host: localhost
  port: 9090
`

func generateConfig() {
    fmt.Printf("%s", templateConfig)
}
