// Package kube implements the gateways the reconciliation core uses to talk to
// the Kubernetes API: CA and identity Secrets, cluster instance Pods, and
// dependent Deployments.
package kube

import (
	"sort"
	"strconv"
	"strings"

	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/dc-tec/stream-operator/internal/constants"
)

// Role is the function an instance performs in the stream cluster.
type Role string

const (
	// RoleCoordinator instances hold cluster metadata.
	RoleCoordinator Role = constants.LabelValueRoleCoordinator
	// RoleData instances hold stream data.
	RoleData Role = constants.LabelValueRoleData
)

// RoleSet is the set of roles of one instance.
type RoleSet uint8

const (
	roleCoordinatorBit RoleSet = 1 << iota
	roleDataBit
)

// ParseRoles reads a comma separated role list. Unknown entries are ignored.
func ParseRoles(value string) RoleSet {
	var rs RoleSet
	for _, part := range strings.Split(value, ",") {
		switch Role(strings.TrimSpace(part)) {
		case RoleCoordinator:
			rs |= roleCoordinatorBit
		case RoleData:
			rs |= roleDataBit
		}
	}
	return rs
}

// NewRoleSet builds a set from roles.
func NewRoleSet(roles ...Role) RoleSet {
	var rs RoleSet
	for _, r := range roles {
		rs |= ParseRoles(string(r))
	}
	return rs
}

// Has reports whether role is in the set. The empty role matches every set.
func (rs RoleSet) Has(role Role) bool {
	switch role {
	case "":
		return true
	case RoleCoordinator:
		return rs&roleCoordinatorBit != 0
	case RoleData:
		return rs&roleDataBit != 0
	default:
		return false
	}
}

// Roles lists the members in a stable order.
func (rs RoleSet) Roles() []string {
	var out []string
	if rs.Has(RoleCoordinator) {
		out = append(out, string(RoleCoordinator))
	}
	if rs.Has(RoleData) {
		out = append(out, string(RoleData))
	}
	return out
}

func (rs RoleSet) String() string {
	return strings.Join(rs.Roles(), ",")
}

// NodeRef identifies one live instance of a cluster.
type NodeRef struct {
	ID    int
	Name  string
	Roles RoleSet
}

// SortNodes orders refs by ID, then by name.
func SortNodes(refs []NodeRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].ID != refs[j].ID {
			return refs[i].ID < refs[j].ID
		}
		return refs[i].Name < refs[j].Name
	})
}

// Names returns the instance names of refs in order.
func Names(refs []NodeRef) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.Name)
	}
	return out
}

// ClusterSelector matches every object the operand builders label for cluster.
func ClusterSelector(cluster string) client.MatchingLabels {
	return client.MatchingLabels{constants.LabelStreamCluster: cluster}
}

// extractOrdinal returns the trailing number of a StatefulSet pod name.
// For example, "demo-broker-2" returns 2. Names without one return -1.
func extractOrdinal(podName string) int {
	idx := strings.LastIndex(podName, "-")
	if idx < 0 || idx == len(podName)-1 {
		return -1
	}
	ordinal, err := strconv.Atoi(podName[idx+1:])
	if err != nil || ordinal < 0 {
		return -1
	}
	return ordinal
}
