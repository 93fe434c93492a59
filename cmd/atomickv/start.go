package main

import (
    "fmt"
    "time"

    "atomickv/cluster"
    "atomickv/node"
    "atomickv/server"
    "atomickv/shared"
    "atomickv/storage"
    "atomickv/transport"
)

func init() {
    registerCommand("start", startServer, startUsage)
}

var startUsage string =
`Usage: atomickv start -conf=[config file]
`

func startServer() {
    var sc shared.YAMLServerConfig

    err := sc.LoadFromFile(*optConfigFile)

    if err != nil {
        fmt.Printf("Unable to load config file: %s\n", err.Error())

        return
    }

    syncMode, err := sc.ParseSyncMode()

    if err != nil {
        fmt.Printf("Unable to parse sync mode: %s\n", err.Error())

        return
    }

    clusterController := cluster.NewClusterController(sc.NodeID, sc.Partitions, sc.ReplicationFactor)
    transportHub := transport.NewTransportHub(sc.NodeID)

    for _, peer := range sc.Peers {
        peerAddress := cluster.PeerAddress{ NodeID: peer.ID, Host: peer.Host, Port: peer.Port }
        clusterController.AddNode(peerAddress)

        if peer.ID != sc.NodeID {
            transportHub.AddPeer(peerAddress)
        }
    }

    clusterNode := node.NewClusterNode(node.ClusterNodeConfig{
        ClusterController: clusterController,
        TransportHub: transportHub,
        StorageDriver: storage.NewLevelDBStorageDriver(sc.DBFile, nil),
        SyncMode: syncMode,
        OrderedUpdates: sc.OrderedUpdates,
        ForwardProcessors: sc.ForwardProcessors,
        NetworkTimeout: time.Duration(sc.NetworkTimeoutSeconds) * time.Second,
    })

    srv := server.NewServer(sc.Port, clusterNode, transportHub)

    if err := srv.Start(); err != nil {
        fmt.Printf("Unable to start server: %s\n", err.Error())
    }
}
