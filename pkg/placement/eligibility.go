// Package placement decides whether and where to deploy a new service
// pod. Grounded on spec.md §4.2 and
// original_source/Controller/controller.go's deploy_service/deploy_pod.
package placement

import (
	arhav1alpha1 "arha-controller/api/v1alpha1"
)

// NodeInfo is the placement-relevant facts about one node, supplied by
// the caller (typically read through pkg/cluster).
type NodeInfo struct {
	InternalIP string
	GPUMemory  int64
}

// Selection is the outcome of choosing a node for a new pod.
type Selection struct {
	NodeName       string
	NewTenantCount int
	Share          float64
}

// tenantTypesOnNode returns the distinct service types already running on
// nodeName. A node hosts at most one pod per service type (eligibility
// condition 2), so this doubles as the per-type Service lookup.
func tenantTypesOnNode(services []arhav1alpha1.Service, nodeName string) []string {
	var types []string
	for _, s := range services {
		if s.NodeName == nodeName {
			types = append(types, s.ServiceType)
		}
	}
	return types
}

func hasType(types []string, serviceType string) bool {
	for _, t := range types {
		if t == serviceType {
			return true
		}
	}
	return false
}

// SelectNode implements spec.md §4.2's four eligibility conditions and
// the node choice (maximize post-placement share for the target, first
// in nodeOrder breaks ties). nodeOrder fixes iteration order since Go map
// iteration is randomized and the tie-break must be deterministic.
func SelectNode(
	target arhav1alpha1.ServiceSpec,
	specs map[string]arhav1alpha1.ServiceSpec,
	services []arhav1alpha1.Service,
	nodeStatus arhav1alpha1.NodeStatus,
	nodes map[string]NodeInfo,
	nodeOrder []string,
) (Selection, bool) {
	var best Selection
	found := false

	for _, n := range nodeOrder {
		info, ok := nodes[n]
		if !ok {
			continue
		}
		// Condition 1: healthy.
		if nodeStatus[n] != arhav1alpha1.NodeHealthy {
			continue
		}
		tenants := tenantTypesOnNode(services, n)
		// Condition 2: no existing pod of this service type.
		if hasType(tenants, target.ServiceType) {
			continue
		}
		// Condition 3: GPU memory budget.
		gpuSum := int64(0)
		for _, t := range tenants {
			if s, ok := specs[t]; ok {
				gpuSum += s.GPUMemoryRequest
			}
		}
		if gpuSum+target.GPUMemoryRequest > info.GPUMemory {
			continue
		}
		// Condition 4: post-placement per-tenant share stays >= each
		// tenant's (and the target's) default frequency.
		newTenantCount := len(tenants) + 1
		feasible := true
		for _, t := range tenants {
			s, ok := specs[t]
			if !ok {
				feasible = false
				break
			}
			share := s.WorkAbility[n] / float64(newTenantCount)
			if share < s.FrequencyLimit.Default {
				feasible = false
				break
			}
		}
		if !feasible {
			continue
		}
		targetShare := target.WorkAbility[n] / float64(newTenantCount)
		if targetShare < target.FrequencyLimit.Default {
			continue
		}

		if !found || targetShare > best.Share {
			best = Selection{NodeName: n, NewTenantCount: newTenantCount, Share: targetShare}
			found = true
		}
	}

	return best, found
}
