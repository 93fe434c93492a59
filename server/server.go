package server

import (
    "encoding/json"
    "io"
    "net"
    "net/http"
    "strconv"

    "github.com/gorilla/mux"
    "github.com/prometheus/client_golang/prometheus/promhttp"

    . "atomickv/logging"
    . "atomickv/node"
    "atomickv/transport"
)

// FutureStatus is the externally visible state of one outstanding update
// future, served by the /futures endpoint.
type FutureStatus struct {
    Version string `json:"version"`
    TopologyVersion uint64 `json:"topologyVersion"`
    Keys []string `json:"keys"`
    Nodes []uint64 `json:"nodes"`
    OutstandingMappings int `json:"outstandingMappings"`
}

type BatchResult struct {
    FailedKeys []string `json:"failedKeys"`
    EvictedKeys []string `json:"evictedKeys"`
    Error string `json:"error,omitempty"`
}

type Server struct {
    port int
    clusterNode *ClusterNode
    transportHub *transport.TransportHub
    httpServer *http.Server
    listener net.Listener
}

func NewServer(port int, clusterNode *ClusterNode, transportHub *transport.TransportHub) *Server {
    return &Server{
        port: port,
        clusterNode: clusterNode,
        transportHub: transportHub,
    }
}

func (server *Server) Port() int {
    return server.port
}

func (server *Server) Start() error {
    r := mux.NewRouter()

    server.transportHub.Attach(r)

    r.Handle("/metrics", promhttp.Handler()).Methods("GET")

    r.HandleFunc("/batch", func(w http.ResponseWriter, r *http.Request) {
        var writeOps []WriteOp
        decoder := json.NewDecoder(r.Body)

        if err := decoder.Decode(&writeOps); err != nil {
            Log.Warningf("POST /batch: Unable to parse body: %v", err.Error())

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusBadRequest)
            io.WriteString(w, "\n")

            return
        }

        writeRes, err := server.clusterNode.Batch(writeOps)

        if err != nil {
            Log.Errorf("POST /batch: Unable to apply batch: %v", err.Error())

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusInternalServerError)
            io.WriteString(w, "\n")

            return
        }

        batchResult := BatchResult{
            FailedKeys: writeRes.FailedKeys(),
            EvictedKeys: writeRes.EvictedKeys(),
        }

        if writeRes.Error() != nil {
            batchResult.Error = writeRes.Error().Error()
        }

        encodedResult, _ := json.Marshal(batchResult)

        w.Header().Set("Content-Type", "application/json; charset=utf8")
        w.WriteHeader(http.StatusOK)
        io.WriteString(w, string(encodedResult) + "\n")
    }).Methods("POST")

    r.HandleFunc("/values", func(w http.ResponseWriter, r *http.Request) {
        var keys []string
        decoder := json.NewDecoder(r.Body)

        if err := decoder.Decode(&keys); err != nil {
            Log.Warningf("POST /values: Unable to parse body: %v", err.Error())

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusBadRequest)
            io.WriteString(w, "\n")

            return
        }

        var readerNodeID uint64

        if reader := r.URL.Query().Get("reader"); reader != "" {
            readerNodeID, _ = strconv.ParseUint(reader, 10, 64)
        }

        values, err := server.clusterNode.Get(keys, readerNodeID)

        if err != nil {
            Log.Errorf("POST /values: Unable to read keys: %v", err.Error())

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusInternalServerError)
            io.WriteString(w, "\n")

            return
        }

        encodedValues, _ := json.Marshal(values)

        w.Header().Set("Content-Type", "application/json; charset=utf8")
        w.WriteHeader(http.StatusOK)
        io.WriteString(w, string(encodedValues) + "\n")
    }).Methods("POST")

    r.HandleFunc("/futures", func(w http.ResponseWriter, r *http.Request) {
        futures := server.clusterNode.Registry().Futures()
        statuses := make([]FutureStatus, 0, len(futures))

        for _, future := range futures {
            nodes := future.Nodes()
            nodeIDs := make([]uint64, 0, len(nodes))

            for _, peerAddress := range nodes {
                nodeIDs = append(nodeIDs, peerAddress.NodeID)
            }

            statuses = append(statuses, FutureStatus{
                Version: future.Version().String(),
                TopologyVersion: future.TopologyVersion(),
                Keys: future.Keys(),
                Nodes: nodeIDs,
                OutstandingMappings: future.OutstandingMappings(),
            })
        }

        encodedStatuses, _ := json.Marshal(statuses)

        w.Header().Set("Content-Type", "application/json; charset=utf8")
        w.WriteHeader(http.StatusOK)
        io.WriteString(w, string(encodedStatuses) + "\n")
    }).Methods("GET")

    server.httpServer = &http.Server{
        Handler: r,
    }

    listener, err := net.Listen("tcp", "0.0.0.0:" + strconv.Itoa(server.port))

    if err != nil {
        Log.Errorf("Error listening on port: %d", server.port)

        server.Stop()

        return err
    }

    server.listener = listener

    if err := server.clusterNode.Start(); err != nil {
        Log.Errorf("Error starting node: %v", err.Error())

        server.Stop()

        return err
    }

    Log.Infof("Node %d listening on port %d", server.clusterNode.ClusterController().LocalNodeID(), server.port)

    return server.httpServer.Serve(listener)
}

func (server *Server) Stop() {
    if server.listener != nil {
        server.listener.Close()
    }

    server.clusterNode.Stop()
}
