package shared

import (
    "errors"
    "fmt"
    "io/ioutil"

    "gopkg.in/yaml.v2"

    . "atomickv/cluster"
    . "atomickv/logging"
    . "atomickv/replication"
)

type YAMLServerConfig struct {
    DBFile string `yaml:"db"`
    Port int `yaml:"port"`
    NodeID uint64 `yaml:"nodeID"`
    Partitions uint64 `yaml:"partitions"`
    ReplicationFactor uint64 `yaml:"replicationFactor"`
    SyncMode string `yaml:"syncMode"`
    OrderedUpdates bool `yaml:"orderedUpdates"`
    ForwardProcessors bool `yaml:"forwardProcessors"`
    NetworkTimeoutSeconds int `yaml:"networkTimeout"`
    Peers []YAMLPeer `yaml:"peers"`
    LogLevel string `yaml:"logLevel"`
}

type YAMLPeer struct {
    ID uint64 `yaml:"id"`
    Host string `yaml:"host"`
    Port int `yaml:"port"`
}

func (ysc *YAMLServerConfig) LoadFromFile(file string) error {
    rawConfig, err := ioutil.ReadFile(file)

    if err != nil {
        return err
    }

    err = yaml.Unmarshal(rawConfig, ysc)

    if err != nil {
        return err
    }

    return ysc.Validate()
}

func (ysc *YAMLServerConfig) Validate() error {
    if len(ysc.DBFile) == 0 {
        return errors.New("No database file specified")
    }

    if !isValidPort(ysc.Port) {
        return errors.New(fmt.Sprintf("%d is an invalid port for the database server", ysc.Port))
    }

    if ysc.NodeID == 0 {
        return errors.New("nodeID must be non-zero")
    }

    if ysc.Partitions == 0 {
        ysc.Partitions = DefaultPartitionCount
    }

    if ysc.Partitions < MinPartitionCount || ysc.Partitions > MaxPartitionCount || (ysc.Partitions & (ysc.Partitions - 1)) != 0 {
        return errors.New(fmt.Sprintf("Invalid partition count specified. It must be a power of 2 between %d and %d inclusive", MinPartitionCount, MaxPartitionCount))
    }

    if ysc.ReplicationFactor == 0 {
        ysc.ReplicationFactor = 3
    }

    if _, err := ysc.ParseSyncMode(); err != nil {
        return err
    }

    if ysc.NetworkTimeoutSeconds <= 0 {
        ysc.NetworkTimeoutSeconds = 10
    }

    if ysc.Peers != nil {
        for _, peer := range ysc.Peers {
            if peer.ID == 0 {
                return errors.New("Peer ID is empty")
            }

            if len(peer.Host) == 0 {
                return errors.New(fmt.Sprintf("The host name is empty for peer %d", peer.ID))
            }

            if !isValidPort(peer.Port) {
                return errors.New(fmt.Sprintf("%d is an invalid port to connect to peer %d at %s", peer.Port, peer.ID, peer.Host))
            }
        }
    }

    if len(ysc.LogLevel) != 0 && !LogLevelIsValid(ysc.LogLevel) {
        return errors.New(fmt.Sprintf("%s is an invalid log level", ysc.LogLevel))
    }

    if len(ysc.LogLevel) != 0 {
        SetLoggingLevel(ysc.LogLevel)
    }

    return nil
}

func (ysc *YAMLServerConfig) ParseSyncMode() (WriteSyncMode, error) {
    switch ysc.SyncMode {
    case "", "full":
        return WriteSyncFull, nil
    case "primary":
        return WriteSyncPrimary, nil
    case "none":
        return WriteSyncNone, nil
    default:
        return WriteSyncFull, errors.New(fmt.Sprintf("%s is an invalid write synchronization mode. It must be full, primary or none", ysc.SyncMode))
    }
}

func isValidPort(port int) bool {
    return port > 0 && port < (1 << 16)
}
