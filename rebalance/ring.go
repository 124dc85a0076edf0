package rebalance

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"
	"strconv"
)

// VirtualNodes is the number of points each node owns on a hash ring.
const VirtualNodes = 10000

type (
	// Ring is a consistent hash ring. Each node owns VirtualNodes points,
	// point i of node n is located at Hash(n + "#" + i). A key belongs to
	// the node owning the first point at or after Hash(key), wrapping
	// around. Ring is not safe for concurrent use.
	Ring struct {
		points  []point
		members map[string]struct{}
	}

	point struct {
		hash uint64
		node string
	}
)

// Hash returns the 63-bit ring position of s: the first 8 bytes of the
// SHA-256 digest of s read big-endian with the sign bit cleared.
func Hash(s string) uint64 {
	sum := sha256.Sum256([]byte(s))
	return binary.BigEndian.Uint64(sum[:8]) & 0x7fffffffffffffff
}

// NewRing returns a ring containing the given nodes.
func NewRing(nodes []string) *Ring {
	nodes = normalize(nodes)
	r := &Ring{
		points:  make([]point, 0, len(nodes)*VirtualNodes),
		members: make(map[string]struct{}, len(nodes)),
	}
	for _, n := range nodes {
		r.members[n] = struct{}{}
		for i := 0; i < VirtualNodes; i++ {
			r.points = append(r.points, point{Hash(n + "#" + strconv.Itoa(i)), n})
		}
	}
	sort.Slice(r.points, func(i, j int) bool { return r.points[i].less(r.points[j]) })
	return r
}

// Len returns the number of nodes on the ring.
func (r *Ring) Len() int {
	return len(r.members)
}

// Members returns the sorted nodes of the ring.
func (r *Ring) Members() []string {
	res := make([]string, 0, len(r.members))
	for n := range r.members {
		res = append(res, n)
	}
	return normalize(res)
}

// Contains reports whether node is on the ring.
func (r *Ring) Contains(node string) bool {
	_, ok := r.members[node]
	return ok
}

// HasMembers reports whether the ring contains exactly the given nodes.
func (r *Ring) HasMembers(nodes []string) bool {
	nodes = normalize(nodes)
	if len(nodes) != len(r.members) {
		return false
	}
	for _, n := range nodes {
		if _, ok := r.members[n]; !ok {
			return false
		}
	}
	return true
}

// Remove removes the points owned by node.
func (r *Ring) Remove(node string) {
	if _, ok := r.members[node]; !ok {
		return
	}
	delete(r.members, node)
	kept := r.points[:0]
	for _, p := range r.points {
		if p.node != node {
			kept = append(kept, p)
		}
	}
	r.points = kept
}

// Locate returns the node owning key, ok is false if the ring is empty.
func (r *Ring) Locate(key string) (string, bool) {
	if len(r.points) == 0 {
		return "", false
	}
	h := Hash(key)
	i := sort.Search(len(r.points), func(i int) bool { return r.points[i].hash >= h })
	if i == len(r.points) {
		i = 0
	}
	return r.points[i].node, true
}

// Assign returns the owner of each of the queueCount queues. Every ring
// member has an entry, empty when it owns no queue.
func (r *Ring) Assign(queueCount int) map[string][]int {
	res := make(map[string][]int, len(r.members))
	for n := range r.members {
		res[n] = []int{}
	}
	for q := 0; q < queueCount; q++ {
		if n, ok := r.Locate(queueName(q)); ok {
			res[n] = append(res[n], q)
		}
	}
	return res
}

// queueName is the ring key of the queue with index q.
func queueName(q int) string {
	return "queue" + strconv.Itoa(q)
}

// less orders points by position then by node so that colliding points
// resolve the same way in every process.
func (p point) less(o point) bool {
	if p.hash != o.hash {
		return p.hash < o.hash
	}
	return p.node < o.node
}
