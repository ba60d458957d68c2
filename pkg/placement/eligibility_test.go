package placement

import (
	"testing"

	arhav1alpha1 "arha-controller/api/v1alpha1"
)

func spec(serviceType string, workAbility map[string]float64, def, min float64, gpu int64) arhav1alpha1.ServiceSpec {
	return arhav1alpha1.ServiceSpec{
		ServiceType:      serviceType,
		WorkAbility:      workAbility,
		FrequencyLimit:   arhav1alpha1.FrequencyLimit{Default: def, Minimum: min},
		GPUMemoryRequest: gpu,
	}
}

func TestSelectNodePicksHighestShare(t *testing.T) {
	target := spec("pose", map[string]float64{"n1": 50, "n2": 100}, 5, 3, 100)
	specs := map[string]arhav1alpha1.ServiceSpec{"pose": target}
	nodes := map[string]NodeInfo{
		"n1": {InternalIP: "10.0.0.1", GPUMemory: 1000},
		"n2": {InternalIP: "10.0.0.2", GPUMemory: 1000},
	}
	status := arhav1alpha1.NodeStatus{"n1": arhav1alpha1.NodeHealthy, "n2": arhav1alpha1.NodeHealthy}

	sel, ok := SelectNode(target, specs, nil, status, nodes, []string{"n1", "n2"})
	if !ok {
		t.Fatal("expected a selection")
	}
	if sel.NodeName != "n2" {
		t.Fatalf("expected n2 (higher share), got %s", sel.NodeName)
	}
}

func TestSelectNodeSkipsUnhealthy(t *testing.T) {
	target := spec("pose", map[string]float64{"n1": 100}, 5, 3, 100)
	specs := map[string]arhav1alpha1.ServiceSpec{"pose": target}
	nodes := map[string]NodeInfo{"n1": {GPUMemory: 1000}}
	status := arhav1alpha1.NodeStatus{"n1": arhav1alpha1.NodeUnhealthy}

	_, ok := SelectNode(target, specs, nil, status, nodes, []string{"n1"})
	if ok {
		t.Fatal("expected no selection on unhealthy node")
	}
}

func TestSelectNodeSkipsIfAlreadyHostingType(t *testing.T) {
	target := spec("pose", map[string]float64{"n1": 100}, 5, 3, 100)
	specs := map[string]arhav1alpha1.ServiceSpec{"pose": target}
	nodes := map[string]NodeInfo{"n1": {GPUMemory: 1000}}
	status := arhav1alpha1.NodeStatus{"n1": arhav1alpha1.NodeHealthy}
	existing := []arhav1alpha1.Service{{NodeName: "n1", ServiceType: "pose"}}

	_, ok := SelectNode(target, specs, existing, status, nodes, []string{"n1"})
	if ok {
		t.Fatal("expected no selection: node already hosts this service type")
	}
}

func TestSelectNodeRejectsOverGPUBudget(t *testing.T) {
	target := spec("pose", map[string]float64{"n1": 100}, 5, 3, 900)
	specs := map[string]arhav1alpha1.ServiceSpec{"pose": target}
	nodes := map[string]NodeInfo{"n1": {GPUMemory: 500}}
	status := arhav1alpha1.NodeStatus{"n1": arhav1alpha1.NodeHealthy}

	_, ok := SelectNode(target, specs, nil, status, nodes, []string{"n1"})
	if ok {
		t.Fatal("expected rejection: GPU budget exceeded")
	}
}

func TestSelectNodeRejectsWhenCoTenantShareDropsBelowDefault(t *testing.T) {
	target := spec("pose", map[string]float64{"n1": 10}, 5, 3, 10)
	gesture := spec("gesture", map[string]float64{"n1": 8}, 5, 3, 10)
	specs := map[string]arhav1alpha1.ServiceSpec{"pose": target, "gesture": gesture}
	nodes := map[string]NodeInfo{"n1": {GPUMemory: 1000}}
	status := arhav1alpha1.NodeStatus{"n1": arhav1alpha1.NodeHealthy}
	existing := []arhav1alpha1.Service{{NodeName: "n1", ServiceType: "gesture"}}

	// gesture's workAbility[n1]=8; with 2 tenants share=4 < default 5 -> reject.
	_, ok := SelectNode(target, specs, existing, status, nodes, []string{"n1"})
	if ok {
		t.Fatal("expected rejection: co-tenant share falls below its default frequency")
	}
}

func TestPodNameRoundTrip(t *testing.T) {
	name := PodName("pose", "node-1", 30500)
	st, nn, port, err := ParsePodName(name)
	if err != nil {
		t.Fatalf("ParsePodName: %v", err)
	}
	if st != "pose" || nn != "node-1" || port != 30500 {
		t.Fatalf("round trip mismatch: %s %s %d", st, nn, port)
	}
}

func TestParsePodNameRejectsMalformed(t *testing.T) {
	for _, bad := range []string{"", "justservice", "pose-node"} {
		if _, _, _, err := ParsePodName(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
