package transport

import (
    "bytes"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "io/ioutil"
    "net/http"
    "strings"
    "sync"
    "time"

    "github.com/google/uuid"
    "github.com/gorilla/mux"
    "github.com/gorilla/websocket"

    . "atomickv/cluster"
    . "atomickv/logging"
    . "atomickv/replication"
)

var ESenderUnknown = errors.New("The receiver does not know who we are")
var ETimeout = errors.New("The sender timed out while trying to send the message to the receiver")

const (
    RequestTimeoutSeconds = 10

    MessageTypeUpdate = "update"
    MessageTypeResponse = "response"
    MessageTypeDeferredResponse = "deferredResponse"

    UpdatesEndpoint = "/updates"
    OrderedUpdatesEndpoint = "/updates/ordered"
)

// Message is the envelope every replication payload travels in.
type Message struct {
    ID string `json:"id"`
    Type string `json:"type"`
    From uint64 `json:"from"`
    Payload json.RawMessage `json:"payload"`
}

type orderedChannelKey struct {
    nodeID uint64
    partition uint64
}

// orderedChannel is a persistent websocket connection to one peer scoped to a
// single partition. Writes are serialized on the connection so delivery order
// matches send order for that (node, partition) pair.
type orderedChannel struct {
    lock sync.Mutex
    conn *websocket.Conn
}

func (channel *orderedChannel) send(url string, message Message, timeout time.Duration) error {
    channel.lock.Lock()
    defer channel.lock.Unlock()

    if channel.conn == nil {
        dialer := websocket.Dialer{ HandshakeTimeout: timeout }
        conn, _, err := dialer.Dial(url, nil)

        if err != nil {
            return err
        }

        channel.conn = conn
    }

    channel.conn.SetWriteDeadline(time.Now().Add(timeout))

    if err := channel.conn.WriteJSON(message); err != nil {
        channel.conn.Close()
        channel.conn = nil

        return err
    }

    return nil
}

func (channel *orderedChannel) close() {
    channel.lock.Lock()
    defer channel.lock.Unlock()

    if channel.conn != nil {
        channel.conn.Close()
        channel.conn = nil
    }
}

// TransportHub delivers replication messages between cluster nodes. Plain
// sends go over an HTTP POST per message. Ordered sends go over a persistent
// websocket channel per (node, partition) pair.
type TransportHub struct {
    localNodeID uint64
    peers map[uint64]PeerAddress
    orderedChannels map[orderedChannelKey]*orderedChannel
    httpClient *http.Client
    upgrader websocket.Upgrader
    onUpdateCB func(nodeID uint64, updateReq *UpdateRequest) error
    onResponseCB func(nodeID uint64, updateRes *UpdateResponse)
    onDeferredResponseCB func(nodeID uint64, deferredRes *DeferredUpdateResponse)
    lock sync.Mutex
}

func NewTransportHub(localNodeID uint64) *TransportHub {
    hub := &TransportHub{
        localNodeID: localNodeID,
        peers: make(map[uint64]PeerAddress),
        orderedChannels: make(map[orderedChannelKey]*orderedChannel),
        httpClient: &http.Client{
            Timeout: time.Second * RequestTimeoutSeconds,
        },
    }

    return hub
}

func (hub *TransportHub) AddPeer(peerAddress PeerAddress) {
    hub.lock.Lock()
    defer hub.lock.Unlock()
    hub.peers[peerAddress.NodeID] = peerAddress
}

func (hub *TransportHub) RemovePeer(nodeID uint64) {
    hub.lock.Lock()

    delete(hub.peers, nodeID)

    channels := make([]*orderedChannel, 0)

    for channelKey, channel := range hub.orderedChannels {
        if channelKey.nodeID == nodeID {
            channels = append(channels, channel)
            delete(hub.orderedChannels, channelKey)
        }
    }

    hub.lock.Unlock()

    for _, channel := range channels {
        channel.close()
    }
}

func (hub *TransportHub) OnUpdate(cb func(nodeID uint64, updateReq *UpdateRequest) error) {
    hub.onUpdateCB = cb
}

func (hub *TransportHub) OnResponse(cb func(nodeID uint64, updateRes *UpdateResponse)) {
    hub.onResponseCB = cb
}

func (hub *TransportHub) OnDeferredResponse(cb func(nodeID uint64, deferredRes *DeferredUpdateResponse)) {
    hub.onDeferredResponseCB = cb
}

func (hub *TransportHub) peerAddress(nodeID uint64) (PeerAddress, bool) {
    hub.lock.Lock()
    defer hub.lock.Unlock()

    peerAddress, ok := hub.peers[nodeID]

    return peerAddress, ok
}

func (hub *TransportHub) envelope(messageType string, payload interface{}) (Message, error) {
    encodedPayload, err := json.Marshal(payload)

    if err != nil {
        return Message{ }, err
    }

    return Message{
        ID: uuid.New().String(),
        Type: messageType,
        From: hub.localNodeID,
        Payload: encodedPayload,
    }, nil
}

// Send delivers a batched update request over a plain point-to-point channel.
func (hub *TransportHub) Send(nodeID uint64, updateReq *UpdateRequest) error {
    message, err := hub.envelope(MessageTypeUpdate, updateReq)

    if err != nil {
        return err
    }

    return hub.post(nodeID, message)
}

// SendOrdered delivers a batched update request on the ordered channel scoped
// to (nodeID, partition), bounded by the given timeout.
func (hub *TransportHub) SendOrdered(nodeID uint64, partition uint64, updateReq *UpdateRequest, timeout time.Duration) error {
    peerAddress, ok := hub.peerAddress(nodeID)

    if !ok {
        return ENoSuchNode
    }

    message, err := hub.envelope(MessageTypeUpdate, updateReq)

    if err != nil {
        return err
    }

    channelKey := orderedChannelKey{ nodeID: nodeID, partition: partition }

    hub.lock.Lock()
    channel, ok := hub.orderedChannels[channelKey]

    if !ok {
        channel = &orderedChannel{ }
        hub.orderedChannels[channelKey] = channel
    }

    hub.lock.Unlock()

    return channel.send(peerAddress.ToWebsocketURL(OrderedUpdatesEndpoint), message, timeout)
}

func (hub *TransportHub) SendResponse(nodeID uint64, updateRes *UpdateResponse) error {
    message, err := hub.envelope(MessageTypeResponse, updateRes)

    if err != nil {
        return err
    }

    return hub.post(nodeID, message)
}

func (hub *TransportHub) SendDeferredResponse(nodeID uint64, deferredRes *DeferredUpdateResponse) error {
    message, err := hub.envelope(MessageTypeDeferredResponse, deferredRes)

    if err != nil {
        return err
    }

    return hub.post(nodeID, message)
}

func (hub *TransportHub) post(nodeID uint64, message Message) error {
    peerAddress, ok := hub.peerAddress(nodeID)

    if !ok {
        return ENoSuchNode
    }

    encodedMessage, err := json.Marshal(message)

    if err != nil {
        return err
    }

    request, err := http.NewRequest("POST", peerAddress.ToHTTPURL(UpdatesEndpoint), bytes.NewReader(encodedMessage))

    if err != nil {
        return err
    }

    resp, err := hub.httpClient.Do(request)

    if err != nil {
        if strings.Contains(err.Error(), "Timeout") {
            return ETimeout
        }

        return err
    }

    defer resp.Body.Close()

    if resp.StatusCode != http.StatusOK {
        if resp.StatusCode == http.StatusForbidden {
            return ESenderUnknown
        }

        errorMessage, err := ioutil.ReadAll(resp.Body)

        if err != nil {
            return err
        }

        return errors.New(fmt.Sprintf("Received error code from server: (%d) %s", resp.StatusCode, string(errorMessage)))
    }

    return nil
}

func (hub *TransportHub) dispatch(message Message) error {
    switch message.Type {
    case MessageTypeUpdate:
        var updateReq UpdateRequest

        if err := json.Unmarshal(message.Payload, &updateReq); err != nil {
            return err
        }

        if hub.onUpdateCB != nil {
            return hub.onUpdateCB(message.From, &updateReq)
        }
    case MessageTypeResponse:
        var updateRes UpdateResponse

        if err := json.Unmarshal(message.Payload, &updateRes); err != nil {
            return err
        }

        if hub.onResponseCB != nil {
            hub.onResponseCB(message.From, &updateRes)
        }
    case MessageTypeDeferredResponse:
        var deferredRes DeferredUpdateResponse

        if err := json.Unmarshal(message.Payload, &deferredRes); err != nil {
            return err
        }

        if hub.onDeferredResponseCB != nil {
            hub.onDeferredResponseCB(message.From, &deferredRes)
        }
    default:
        return errors.New(fmt.Sprintf("Unknown message type %s", message.Type))
    }

    return nil
}

func (hub *TransportHub) Attach(router *mux.Router) {
    router.HandleFunc(UpdatesEndpoint, func(w http.ResponseWriter, r *http.Request) {
        body, err := ioutil.ReadAll(r.Body)

        if err != nil {
            Log.Warningf("POST %s: Unable to read message body", UpdatesEndpoint)

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusInternalServerError)
            io.WriteString(w, "\n")

            return
        }

        var message Message

        if err := json.Unmarshal(body, &message); err != nil {
            Log.Warningf("POST %s: Unable to parse message body", UpdatesEndpoint)

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusBadRequest)
            io.WriteString(w, "\n")

            return
        }

        if _, ok := hub.peerAddress(message.From); !ok {
            Log.Warningf("POST %s: Sender node (%d) is not known by this node", UpdatesEndpoint, message.From)

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusForbidden)
            io.WriteString(w, "\n")

            return
        }

        if err := hub.dispatch(message); err != nil {
            Log.Warningf("POST %s: Unable to receive message: %v", UpdatesEndpoint, err.Error())

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusInternalServerError)
            io.WriteString(w, "\n")

            return
        }

        w.Header().Set("Content-Type", "application/json; charset=utf8")
        w.WriteHeader(http.StatusOK)
        io.WriteString(w, "\n")
    }).Methods("POST")

    router.HandleFunc(OrderedUpdatesEndpoint, func(w http.ResponseWriter, r *http.Request) {
        conn, err := hub.upgrader.Upgrade(w, r, nil)

        if err != nil {
            Log.Warningf("GET %s: Unable to upgrade connection: %v", OrderedUpdatesEndpoint, err.Error())

            return
        }

        defer conn.Close()

        for {
            var message Message

            if err := conn.ReadJSON(&message); err != nil {
                break
            }

            if _, ok := hub.peerAddress(message.From); !ok {
                Log.Warningf("%s: Sender node (%d) is not known by this node", OrderedUpdatesEndpoint, message.From)

                continue
            }

            if err := hub.dispatch(message); err != nil {
                Log.Warningf("%s: Unable to receive message: %v", OrderedUpdatesEndpoint, err.Error())
            }
        }
    })
}
