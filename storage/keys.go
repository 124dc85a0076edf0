package storage

import (
	"fmt"
	"strings"
)

// DefaultPrefix is the key namespace used when none is configured.
const DefaultPrefix = "relay:default"

// MaxQueues is the maximum number of priority queues in a namespace.
const MaxQueues = 9

// separator separates the namespace prefix from the resource name.
const separator = ":"

// Keys maps logical resources to storage keys under a namespace prefix.
// The zero value uses DefaultPrefix.
type Keys struct {
	prefix string
}

// NewKeys returns the key namespace for prefix.
func NewKeys(prefix string) Keys {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasSuffix(prefix, separator) {
		prefix += separator
	}
	return Keys{prefix: prefix}
}

// Prefix returns the normalized namespace prefix, always terminated with a
// colon.
func (k Keys) Prefix() string {
	if k.prefix == "" {
		return DefaultPrefix + separator
	}
	return k.prefix
}

// Key returns the storage key of the given resource.
func (k Keys) Key(resource string) string {
	return k.Prefix() + strings.TrimPrefix(resource, separator)
}

// Queue returns the key of the priority queue with the given 0-based index.
// Index 0 is the highest priority queue.
func (k Keys) Queue(index int) string {
	return k.Key(fmt.Sprintf("queue:%d", index+1))
}

// Queues returns the keys of the first n priority queues ordered by index.
func (k Keys) Queues(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = k.Queue(i)
	}
	return keys
}

// ResultQueue returns the key of the list holding completed tasks waiting
// to be relayed by a master.
func (k Keys) ResultQueue() string { return k.Key("queue:result") }

// ExecuteHash returns the key of the hash holding the ledger of each node.
func (k Keys) ExecuteHash() string { return k.Key("hash:execute") }

// HeartHash returns the key of the hash holding node heartbeats.
func (k Keys) HeartHash() string { return k.Key("hash:heart") }

// LeaderLock returns the key of the leadership lock.
func (k Keys) LeaderLock() string { return k.Key("leader:lock") }

// LeaderName returns the key holding the current leader node ID.
func (k Keys) LeaderName() string { return k.Key("leader:name") }

// MasterConsumerLock returns the key of the lock serializing master
// consumers.
func (k Keys) MasterConsumerLock() string { return k.Key("lock:consume:master") }

// SlaveConsumerLock returns the key of the lock guarding consumption of the
// priority queue queueKey.
func (k Keys) SlaveConsumerLock(queueKey string) string {
	return k.Key("lock:consume:slave:" + strings.TrimPrefix(queueKey, k.Prefix()))
}

// RebalanceMap returns the key of the hash mapping nodes to the queue
// indices they own.
func (k Keys) RebalanceMap() string { return k.Key("rebalance:map") }

// All returns every key of the namespace for a deployment using n priority
// queues.
func (k Keys) All(n int) []string {
	keys := k.Queues(n)
	for _, q := range k.Queues(n) {
		keys = append(keys, k.SlaveConsumerLock(q))
	}
	return append(keys,
		k.ResultQueue(),
		k.ExecuteHash(),
		k.HeartHash(),
		k.LeaderLock(),
		k.LeaderName(),
		k.MasterConsumerLock(),
		k.RebalanceMap(),
	)
}
