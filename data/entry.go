package data

import (
    "errors"
    "sync"
)

var EEntryRemoved = errors.New("The entry was removed")

// EntryProcessor describes a transformation applied to an entry at each owner
// instead of shipping a precomputed value.
type EntryProcessor struct {
    Name string `json:"name"`
    Args []string `json:"args,omitempty"`
}

// Entry is the local representation of a cached key. It tracks which nodes hold
// a near-cache copy of the key so conflicting writes can invalidate them. Each
// reader registration records the message sequence number it was registered
// under so a removal generated before a re-registration cannot clobber it.
type Entry struct {
    key string
    partition uint64
    lock sync.Mutex
    removed bool
    readers map[uint64]uint64
}

func NewEntry(key string, partition uint64) *Entry {
    return &Entry{
        key: key,
        partition: partition,
        readers: make(map[uint64]uint64),
    }
}

func (entry *Entry) Key() string {
    return entry.key
}

func (entry *Entry) Partition() uint64 {
    return entry.partition
}

func (entry *Entry) AddReader(nodeID uint64, seq uint64) error {
    entry.lock.Lock()
    defer entry.lock.Unlock()

    if entry.removed {
        return EEntryRemoved
    }

    if registeredSeq, ok := entry.readers[nodeID]; !ok || registeredSeq < seq {
        entry.readers[nodeID] = seq
    }

    return nil
}

// RemoveReader unregisters a near-cache reader. The removal only applies if the
// reader was registered at or before the given message sequence number. A reader
// that re-registered after seq stays registered.
func (entry *Entry) RemoveReader(nodeID uint64, seq uint64) error {
    entry.lock.Lock()
    defer entry.lock.Unlock()

    if entry.removed {
        return EEntryRemoved
    }

    if registeredSeq, ok := entry.readers[nodeID]; ok && registeredSeq <= seq {
        delete(entry.readers, nodeID)
    }

    return nil
}

func (entry *Entry) Readers() []uint64 {
    entry.lock.Lock()
    defer entry.lock.Unlock()

    readers := make([]uint64, 0, len(entry.readers))

    for nodeID, _ := range entry.readers {
        readers = append(readers, nodeID)
    }

    return readers
}

func (entry *Entry) MarkRemoved() {
    entry.lock.Lock()
    defer entry.lock.Unlock()

    entry.removed = true
}
