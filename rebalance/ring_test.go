package rebalance

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	h := Hash("queue0")
	assert.Zero(t, h>>63, "hash must fit in 63 bits")
	assert.Equal(t, h, Hash("queue0"))
	assert.NotEqual(t, h, Hash("queue1"))
}

func TestRingDeterministic(t *testing.T) {
	nodes := []string{"slave:c", "slave:a", "slave:b"}
	a := NewRing(nodes).Assign(64)
	b := NewRing([]string{"slave:b", "slave:c", "slave:a", "slave:a"}).Assign(64)
	assert.Equal(t, a, b)
	assertPartition(t, a, 64)
}

func TestRingIncremental(t *testing.T) {
	nodes := []string{"n1", "n2", "n3", "n4"}
	const queues = 64
	r := NewRing(nodes)
	before := owners(r.Assign(queues))

	r.Remove("n2")
	after := owners(r.Assign(queues))
	require.Len(t, after, queues)
	for q, owner := range before {
		if owner != "n2" {
			assert.Equal(t, owner, after[q], "queue %d moved", q)
		} else {
			assert.NotEqual(t, "n2", after[q])
		}
	}

	// Removing points must match rebuilding without the node.
	assert.Equal(t, NewRing([]string{"n1", "n3", "n4"}).Assign(queues), r.Assign(queues))
}

func TestRingMembers(t *testing.T) {
	r := NewRing([]string{"b", "a"})
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"a", "b"}, r.Members())
	assert.True(t, r.HasMembers([]string{"a", "b"}))
	assert.False(t, r.HasMembers([]string{"a"}))
	assert.False(t, r.HasMembers([]string{"a", "c"}))

	r.Remove("a")
	r.Remove("unknown")
	assert.Equal(t, []string{"b"}, r.Members())
	n, ok := r.Locate("queue0")
	assert.True(t, ok)
	assert.Equal(t, "b", n)
}

func TestRingEmpty(t *testing.T) {
	r := NewRing(nil)
	_, ok := r.Locate("queue0")
	assert.False(t, ok)
	assert.Empty(t, r.Assign(9))
}

func TestRoundRobin(t *testing.T) {
	cases := []struct {
		nodes  int
		queues int
	}{
		{1, 1}, {1, 9}, {2, 9}, {3, 9}, {4, 9}, {9, 9}, {5, 3}, {12, 4},
	}
	for _, c := range cases {
		t.Run(fmt.Sprintf("%d-nodes-%d-queues", c.nodes, c.queues), func(t *testing.T) {
			nodes := make([]string, c.nodes)
			for i := range nodes {
				nodes[i] = fmt.Sprintf("slave:%02d", i)
			}
			got := RoundRobin(nodes, c.queues)
			require.Len(t, got, c.nodes)
			if c.nodes > c.queues {
				for i, n := range nodes {
					assert.Equal(t, []int{i % c.queues}, got[n])
				}
				return
			}
			assertPartition(t, got, c.queues)
			per, extra := c.queues/c.nodes, c.queues%c.nodes
			for i, n := range nodes {
				want := per
				if i < extra {
					want++
				}
				assert.Len(t, got[n], want, "node %s", n)
			}
		})
	}
}

func TestRoundRobinLayout(t *testing.T) {
	got := RoundRobin([]string{"c", "a", "b"}, 8)
	assert.Equal(t, map[string][]int{
		"a": {0, 1, 2},
		"b": {3, 4, 5},
		"c": {6, 7},
	}, got)
	assert.Empty(t, RoundRobin(nil, 8))
}

// assertPartition checks that every queue is owned by exactly one node.
func assertPartition(t *testing.T, assignment map[string][]int, queues int) {
	t.Helper()
	seen := make(map[int]string, queues)
	for n, qs := range assignment {
		for _, q := range qs {
			prev, dup := seen[q]
			assert.False(t, dup, "queue %d owned by %s and %s", q, prev, n)
			seen[q] = n
		}
	}
	assert.Len(t, seen, queues)
}

func owners(assignment map[string][]int) map[int]string {
	res := make(map[int]string)
	for n, qs := range assignment {
		for _, q := range qs {
			res[q] = n
		}
	}
	return res
}
