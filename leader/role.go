package leader

import "strings"

// Node roles. A node ID is the role followed by a colon and the process
// identity, for example "slave:4242@host-01H...".
const (
	RoleMaster = "master"
	RoleSlave  = "slave"
)

// RoleOf returns the role encoded in nodeID or the empty string if nodeID
// does not start with a known role.
func RoleOf(nodeID string) string {
	role, _, ok := strings.Cut(nodeID, ":")
	if !ok {
		return ""
	}
	switch role {
	case RoleMaster, RoleSlave:
		return role
	}
	return ""
}

// NodeID returns the ID of a node with the given role and process identity.
func NodeID(role, identity string) string {
	return role + ":" + identity
}
