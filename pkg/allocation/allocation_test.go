package allocation

import (
	"testing"

	arhav1alpha1 "arha-controller/api/v1alpha1"
)

func freq(d, m float64) arhav1alpha1.FrequencyLimit {
	return arhav1alpha1.FrequencyLimit{Default: d, Minimum: m}
}

func TestOptimizeFreshSubscribe(t *testing.T) {
	// S1: one pose pod, workloadLimit 10, freq [5,3], target N=1.
	services := []arhav1alpha1.Service{
		{PodIP: "10.0.0.1", HostPort: 30500, ServiceType: "pose", WorkloadLimit: 10, FrequencyLimit: freq(5, 3)},
	}
	status, out := Allocate(StrategyOptimize, "pose", 1, services)
	if status != Success {
		t.Fatalf("expected success, got %s", status)
	}
	if out[0].CurrentConnection != 1 || out[0].CurrentFrequency != 5 {
		t.Fatalf("unexpected result: %+v", out[0])
	}
}

func TestOptimizeCapacitySplit(t *testing.T) {
	// S2: A workloadLimit 10, B workloadLimit 50, freq [5,3], target N=12.
	services := []arhav1alpha1.Service{
		{HostPort: 1, ServiceType: "pose", WorkloadLimit: 10, FrequencyLimit: freq(5, 3)},
		{HostPort: 2, ServiceType: "pose", WorkloadLimit: 50, FrequencyLimit: freq(5, 3)},
	}
	status, out := Allocate(StrategyOptimize, "pose", 12, services)
	if status != Success {
		t.Fatalf("expected success, got %s", status)
	}
	if out[0].CurrentConnection != 2 {
		t.Fatalf("expected A.currentConnection=2, got %d", out[0].CurrentConnection)
	}
	if out[1].CurrentConnection != 10 {
		t.Fatalf("expected B.currentConnection=10, got %d", out[1].CurrentConnection)
	}
	if out[0].CurrentFrequency != 5 || out[1].CurrentFrequency != 5 {
		t.Fatalf("expected both at default frequency, got %+v %+v", out[0], out[1])
	}
	total := out[0].CurrentConnection + out[1].CurrentConnection
	if total != 12 {
		t.Fatalf("conservation violated: total=%d", total)
	}
}

func TestOptimizeDegradedPlacement(t *testing.T) {
	// S4: single service, workloadLimit 9, freq [5,3], currentConnection 1 -> target 2.
	services := []arhav1alpha1.Service{
		{ServiceType: "pose", WorkloadLimit: 9, FrequencyLimit: freq(5, 3), CurrentConnection: 1},
	}
	status, out := Allocate(StrategyOptimize, "pose", 2, services)
	if status != Success {
		t.Fatalf("expected success (4.5 >= minimum 3), got %s", status)
	}
	if out[0].CurrentConnection != 2 {
		t.Fatalf("expected currentConnection=2, got %d", out[0].CurrentConnection)
	}
	if out[0].CurrentFrequency != 4.5 {
		t.Fatalf("expected currentFrequency=4.5, got %v", out[0].CurrentFrequency)
	}
}

func TestOptimizeNoMatchingServiceFails(t *testing.T) {
	services := []arhav1alpha1.Service{
		{ServiceType: "gesture", WorkloadLimit: 10, FrequencyLimit: freq(5, 3)},
	}
	status, out := Allocate(StrategyOptimize, "pose", 1, services)
	if status != Fail {
		t.Fatalf("expected fail, got %s", status)
	}
	if out[0].CurrentConnection != 0 {
		t.Fatalf("expected unchanged state, got %+v", out[0])
	}
}

func TestOptimizeScalingReject(t *testing.T) {
	// S3: workloadLimit 5, freq [5,3], currentConnection 1, target N=2 -
	// no room for a second agent even degraded (5/2=2.5 < minimum 3, but
	// the allocator still places it and reports fail; the coordinator is
	// responsible for turning an allocator "fail" into a subscription
	// reject without persisting).
	services := []arhav1alpha1.Service{
		{ServiceType: "pose", WorkloadLimit: 5, FrequencyLimit: freq(5, 3), CurrentConnection: 1, CurrentFrequency: 5},
	}
	status, out := Allocate(StrategyOptimize, "pose", 2, services)
	if status != Fail {
		t.Fatalf("expected fail, got %s", status)
	}
	if out[0].CurrentConnection != 2 {
		t.Fatalf("allocator should still have attempted placement, got %+v", out[0])
	}
}

func TestOptimizeIdempotentOnSameInput(t *testing.T) {
	services := []arhav1alpha1.Service{
		{HostPort: 1, ServiceType: "pose", WorkloadLimit: 10, FrequencyLimit: freq(5, 3)},
		{HostPort: 2, ServiceType: "pose", WorkloadLimit: 50, FrequencyLimit: freq(5, 3)},
	}
	_, out1 := Allocate(StrategyOptimize, "pose", 12, services)
	_, out2 := Allocate(StrategyOptimize, "pose", 12, services)
	for i := range out1 {
		if out1[i].CurrentConnection != out2[i].CurrentConnection || out1[i].CurrentFrequency != out2[i].CurrentFrequency {
			t.Fatalf("allocator not idempotent at %d: %+v vs %+v", i, out1[i], out2[i])
		}
	}
}

func TestOptimizePreservesOrderAndIdentity(t *testing.T) {
	services := []arhav1alpha1.Service{
		{HostPort: 2, ServiceType: "pose", WorkloadLimit: 50, FrequencyLimit: freq(5, 3)},
		{HostPort: 1, ServiceType: "pose", WorkloadLimit: 10, FrequencyLimit: freq(5, 3)},
		{HostPort: 3, ServiceType: "gesture", WorkloadLimit: 20, FrequencyLimit: freq(5, 3)},
	}
	_, out := Allocate(StrategyOptimize, "pose", 3, services)
	if out[0].HostPort != 2 || out[1].HostPort != 1 || out[2].HostPort != 3 {
		t.Fatalf("order not preserved: %+v", out)
	}
	if out[2].CurrentConnection != 0 {
		t.Fatalf("non-matching entry mutated: %+v", out[2])
	}
}

func TestUniformRoundRobins(t *testing.T) {
	services := []arhav1alpha1.Service{
		{ServiceType: "pose", WorkloadLimit: 100, FrequencyLimit: freq(5, 3)},
		{ServiceType: "pose", WorkloadLimit: 100, FrequencyLimit: freq(5, 3)},
	}
	status, out := Allocate(StrategyUniform, "pose", 5, services)
	if status != Success {
		t.Fatalf("expected success, got %s", status)
	}
	if out[0].CurrentConnection != 3 || out[1].CurrentConnection != 2 {
		t.Fatalf("expected round robin 3/2, got %d/%d", out[0].CurrentConnection, out[1].CurrentConnection)
	}
}

func TestMostRemainingGreedyBySlack(t *testing.T) {
	services := []arhav1alpha1.Service{
		{ServiceType: "pose", WorkloadLimit: 5, FrequencyLimit: freq(5, 3)},
		{ServiceType: "pose", WorkloadLimit: 50, FrequencyLimit: freq(5, 3)},
	}
	status, out := Allocate(StrategyMostRemaining, "pose", 3, services)
	if status != Success {
		t.Fatalf("expected success, got %s", status)
	}
	if out[1].CurrentConnection < out[0].CurrentConnection {
		t.Fatalf("expected larger pod to absorb more: %+v", out)
	}
}
