package coordinator

import (
	"context"
	"testing"
	"time"

	"k8s.io/apimachinery/pkg/runtime"
	k8sfake "k8s.io/client-go/kubernetes/fake"
	fakeclient "sigs.k8s.io/controller-runtime/pkg/client/fake"

	arhav1alpha1 "arha-controller/api/v1alpha1"
	"arha-controller/pkg/agentclient"
	"arha-controller/pkg/allocation"
	"arha-controller/pkg/cluster"
	"arha-controller/pkg/placement"
	"arha-controller/pkg/store"
)

func freq(d, m float64) arhav1alpha1.FrequencyLimit {
	return arhav1alpha1.FrequencyLimit{Default: d, Minimum: m}
}

func newTestCoordinator(t *testing.T) (*Coordinator, *store.Store) {
	t.Helper()
	scheme := runtime.NewScheme()
	if err := arhav1alpha1.AddToScheme(scheme); err != nil {
		t.Fatalf("AddToScheme: %v", err)
	}
	st := store.New(fakeclient.NewClientBuilder().WithScheme(scheme).Build(), "default")
	driver := cluster.New(k8sfake.NewSimpleClientset(), "default")
	engine := placement.NewEngine(driver, nil)
	agents := agentclient.New(50 * time.Millisecond)
	co := New(st, driver, engine, agents, allocation.StrategyOptimize, nil)
	return co, st
}

func seed(t *testing.T, st *store.Store, specs []arhav1alpha1.ServiceSpec, services []arhav1alpha1.Service, subs []arhav1alpha1.Subscription) {
	t.Helper()
	ctx := context.Background()
	if err := st.SaveServiceSpecs(ctx, specs); err != nil {
		t.Fatalf("seed specs: %v", err)
	}
	if err := st.SaveServices(ctx, services); err != nil {
		t.Fatalf("seed services: %v", err)
	}
	if err := st.SaveSubscriptions(ctx, subs); err != nil {
		t.Fatalf("seed subs: %v", err)
	}
}

func TestSubscribeFreshSubscribe(t *testing.T) {
	co, st := newTestCoordinator(t)
	specs := []arhav1alpha1.ServiceSpec{{ServiceType: "pose", FrequencyLimit: freq(5, 3)}}
	services := []arhav1alpha1.Service{{
		PodIP: "10.0.0.1", HostIP: "10.0.0.1", HostPort: 30500, ServiceType: "pose",
		WorkloadLimit: 10, FrequencyLimit: freq(5, 3),
	}}
	seed(t, st, specs, services, nil)

	result, err := co.Subscribe(context.Background(), "1.1.1.1", 9000, "pose")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if result.Rejected {
		t.Fatalf("unexpected rejection: %s", result.Message)
	}
	if result.IP != "10.0.0.1" || result.Port != 30500 || result.Frequency != 5 {
		t.Fatalf("unexpected reply: %+v", result)
	}

	got, err := st.LoadServices(context.Background())
	if err != nil {
		t.Fatalf("LoadServices: %v", err)
	}
	if got[0].CurrentConnection != 1 || got[0].CurrentFrequency != 5 {
		t.Fatalf("unexpected post-state: %+v", got[0])
	}
	subs, err := st.LoadSubscriptions(context.Background())
	if err != nil {
		t.Fatalf("LoadSubscriptions: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected one subscription, got %d", len(subs))
	}
}

func TestSubscribeCapacitySplit(t *testing.T) {
	co, st := newTestCoordinator(t)
	specs := []arhav1alpha1.ServiceSpec{{ServiceType: "pose", FrequencyLimit: freq(5, 3)}}
	services := []arhav1alpha1.Service{
		{PodIP: "A", HostIP: "A", HostPort: 1, ServiceType: "pose", WorkloadLimit: 10, FrequencyLimit: freq(5, 3)},
		{PodIP: "B", HostIP: "B", HostPort: 2, ServiceType: "pose", WorkloadLimit: 50, FrequencyLimit: freq(5, 3)},
	}
	seed(t, st, specs, services, nil)

	ctx := context.Background()
	for i := 0; i < 12; i++ {
		result, err := co.Subscribe(ctx, "agent", 9000+i, "pose")
		if err != nil {
			t.Fatalf("Subscribe #%d: %v", i, err)
		}
		if result.Rejected {
			t.Fatalf("Subscribe #%d unexpectedly rejected: %s", i, result.Message)
		}
	}

	got, err := st.LoadServices(ctx)
	if err != nil {
		t.Fatalf("LoadServices: %v", err)
	}
	var a, b arhav1alpha1.Service
	for _, s := range got {
		if s.PodIP == "A" {
			a = s
		}
		if s.PodIP == "B" {
			b = s
		}
	}
	if a.CurrentConnection != 2 || b.CurrentConnection != 10 {
		t.Fatalf("expected A=2 B=10, got A=%d B=%d", a.CurrentConnection, b.CurrentConnection)
	}
	if a.CurrentFrequency != 5 || b.CurrentFrequency != 5 {
		t.Fatalf("expected both at default frequency, got A=%v B=%v", a.CurrentFrequency, b.CurrentFrequency)
	}

	subs, err := st.LoadSubscriptions(ctx)
	if err != nil {
		t.Fatalf("LoadSubscriptions: %v", err)
	}
	if len(subs) != 12 {
		t.Fatalf("expected 12 subscriptions (conservation), got %d", len(subs))
	}
}

func TestSubscribeScalingRejectWithNoEligibleNode(t *testing.T) {
	co, st := newTestCoordinator(t)
	// workloadLimit=0: the lone pod cannot even host one connection at the
	// minimum frequency, so the initial allocation attempt fails outright;
	// no node exists in the fake cluster to scale out onto, so the
	// subscription must be rejected rather than degraded.
	specs := []arhav1alpha1.ServiceSpec{{ServiceType: "pose", FrequencyLimit: freq(5, 3)}}
	services := []arhav1alpha1.Service{{
		PodIP: "A", HostIP: "A", HostPort: 1, ServiceType: "pose",
		WorkloadLimit: 0, FrequencyLimit: freq(5, 3),
	}}
	seed(t, st, specs, services, nil)

	result, err := co.Subscribe(context.Background(), "agent", 9000, "pose")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if !result.Rejected {
		t.Fatalf("expected rejection, got %+v", result)
	}

	got, err := st.LoadServices(context.Background())
	if err != nil {
		t.Fatalf("LoadServices: %v", err)
	}
	if got[0].CurrentConnection != 0 {
		t.Fatalf("expected unchanged state, got %+v", got[0])
	}
}

func TestSubscribeDegradedPlacement(t *testing.T) {
	co, st := newTestCoordinator(t)
	specs := []arhav1alpha1.ServiceSpec{{ServiceType: "pose", FrequencyLimit: freq(5, 3)}}
	services := []arhav1alpha1.Service{{
		PodIP: "A", HostIP: "A", HostPort: 1, ServiceType: "pose",
		WorkloadLimit: 9, FrequencyLimit: freq(5, 3), CurrentConnection: 1, CurrentFrequency: 5,
	}}
	seed(t, st, specs, services, []arhav1alpha1.Subscription{
		{AgentIP: "agent0", AgentPort: 1, ServiceType: "pose", PodIP: "A"},
	})

	result, err := co.Subscribe(context.Background(), "agent1", 2, "pose")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if result.Rejected {
		t.Fatalf("unexpected rejection: %s", result.Message)
	}
	if result.Frequency != 4.5 {
		t.Fatalf("expected frequency 4.5, got %v", result.Frequency)
	}

	got, err := st.LoadServices(context.Background())
	if err != nil {
		t.Fatalf("LoadServices: %v", err)
	}
	if got[0].CurrentConnection != 2 {
		t.Fatalf("expected currentConnection=2, got %d", got[0].CurrentConnection)
	}
	if got[0].CurrentFrequency < got[0].FrequencyLimit.Minimum {
		t.Fatalf("invariant violated: frequency %v below minimum %v", got[0].CurrentFrequency, got[0].FrequencyLimit.Minimum)
	}
}

func TestUnsubscribeRemovesSubscriptionAndDecrements(t *testing.T) {
	co, st := newTestCoordinator(t)
	specs := []arhav1alpha1.ServiceSpec{{ServiceType: "pose", FrequencyLimit: freq(5, 3)}}
	services := []arhav1alpha1.Service{{
		PodIP: "10.0.0.1", HostIP: "10.0.0.1", HostPort: 30500, ServiceType: "pose",
		WorkloadLimit: 10, FrequencyLimit: freq(5, 3), CurrentConnection: 1, CurrentFrequency: 5,
	}}
	seed(t, st, specs, services, []arhav1alpha1.Subscription{
		{AgentIP: "1.1.1.1", AgentPort: 9000, ServiceType: "pose", PodIP: "10.0.0.1"},
	})

	if err := co.Unsubscribe(context.Background(), "1.1.1.1", 9000); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}

	got, err := st.LoadServices(context.Background())
	if err != nil {
		t.Fatalf("LoadServices: %v", err)
	}
	if got[0].CurrentConnection != 0 {
		t.Fatalf("expected currentConnection=0, got %d", got[0].CurrentConnection)
	}
	subs, err := st.LoadSubscriptions(context.Background())
	if err != nil {
		t.Fatalf("LoadSubscriptions: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("expected no subscriptions left, got %+v", subs)
	}
}

func TestAlertWorkerNodeFailureRepairsSurvivingPod(t *testing.T) {
	co, st := newTestCoordinator(t)
	specs := []arhav1alpha1.ServiceSpec{{ServiceType: "pose", FrequencyLimit: freq(5, 3)}}
	services := []arhav1alpha1.Service{
		{PodIP: "N1", HostIP: "N1", HostPort: 1, NodeName: "node1", ServiceType: "pose",
			WorkloadLimit: 20, FrequencyLimit: freq(5, 3), CurrentConnection: 2, CurrentFrequency: 5},
		{PodIP: "N2", HostIP: "N2", HostPort: 2, NodeName: "node2", ServiceType: "pose",
			WorkloadLimit: 20, FrequencyLimit: freq(5, 3), CurrentConnection: 2, CurrentFrequency: 5},
	}
	subs := []arhav1alpha1.Subscription{
		{AgentIP: "a1", AgentPort: 1, ServiceType: "pose", PodIP: "N1", NodeName: "node1"},
		{AgentIP: "a2", AgentPort: 2, ServiceType: "pose", PodIP: "N1", NodeName: "node1"},
		{AgentIP: "a3", AgentPort: 3, ServiceType: "pose", PodIP: "N2", NodeName: "node2"},
		{AgentIP: "a4", AgentPort: 4, ServiceType: "pose", PodIP: "N2", NodeName: "node2"},
	}
	seed(t, st, specs, services, subs)

	msg, err := co.Alert(context.Background(), AlertWorkerNodeFailure, "node1", "")
	if err != nil {
		t.Fatalf("Alert: %v", err)
	}
	if msg == "" {
		t.Fatal("expected a diagnostic message")
	}

	got, err := st.LoadServices(context.Background())
	if err != nil {
		t.Fatalf("LoadServices: %v", err)
	}
	if len(got) != 1 || got[0].NodeName != "node2" {
		t.Fatalf("expected only node2's service to survive, got %+v", got)
	}
	// node2's workloadLimit (20) can host both its own 2 and the 2 re-homed
	// agents from node1 at the default frequency (4*5=20).
	if got[0].CurrentConnection != 4 {
		t.Fatalf("expected all 4 agents re-homed onto node2, got %d", got[0].CurrentConnection)
	}

	remainingSubs, err := st.LoadSubscriptions(context.Background())
	if err != nil {
		t.Fatalf("LoadSubscriptions: %v", err)
	}
	for _, s := range remainingSubs {
		if s.PodIP != "N2" {
			t.Fatalf("expected every surviving subscription re-homed to N2, got %+v", s)
		}
	}
}

func TestAlertPodFailureParsesNameAndShrinks(t *testing.T) {
	co, st := newTestCoordinator(t)
	specs := []arhav1alpha1.ServiceSpec{{ServiceType: "pose", FrequencyLimit: freq(5, 3)}}
	services := []arhav1alpha1.Service{
		{PodIP: "N1", HostIP: "N1", HostPort: 30500, NodeName: "node1", ServiceType: "pose",
			WorkloadLimit: 10, FrequencyLimit: freq(5, 3), CurrentConnection: 2, CurrentFrequency: 5},
	}
	subs := []arhav1alpha1.Subscription{
		{AgentIP: "a1", AgentPort: 1, ServiceType: "pose", PodIP: "N1", NodeName: "node1"},
		{AgentIP: "a2", AgentPort: 2, ServiceType: "pose", PodIP: "N1", NodeName: "node1"},
	}
	seed(t, st, specs, services, subs)

	_, err := co.Alert(context.Background(), AlertPodFailure, "", "pose-node1-30500")
	if err != nil {
		t.Fatalf("Alert: %v", err)
	}

	got, err := st.LoadServices(context.Background())
	if err != nil {
		t.Fatalf("LoadServices: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected the failed service removed, got %+v", got)
	}
	remainingSubs, err := st.LoadSubscriptions(context.Background())
	if err != nil {
		t.Fatalf("LoadSubscriptions: %v", err)
	}
	if len(remainingSubs) != 0 {
		t.Fatalf("expected all subscriptions dropped (no surviving pod), got %+v", remainingSubs)
	}
}
