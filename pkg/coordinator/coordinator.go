// Package coordinator implements the subscription coordinator: subscribe,
// unsubscribe, alert, and the two re-pairing helpers compute_frequency and
// adjust_frequency, all serialized behind one process-wide mutex (spec.md
// §4.3-4.5, §5). Grounded on original_source/Controller/controller.go's
// handlers and on pkg/controller/podallocation_controller.go's phased
// validate-then-mutate structure.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/record"
	"k8s.io/klog/v2"

	arhav1alpha1 "arha-controller/api/v1alpha1"
	"arha-controller/pkg/agentclient"
	"arha-controller/pkg/allocation"
	"arha-controller/pkg/cluster"
	"arha-controller/pkg/metrics"
	"arha-controller/pkg/placement"
	"arha-controller/pkg/store"
)

// Coordinator owns the global mutual-exclusion discipline over
// Service/Subscription mutation.
type Coordinator struct {
	mu sync.Mutex

	store     *store.Store
	cluster   *cluster.Driver
	placement *placement.Engine
	agents    *agentclient.Client
	strategy  allocation.Strategy

	// events records Kubernetes Events against a stand-in ArhaData object
	// representing cluster-wide controller state, the way
	// podallocation_controller.go records them against the resource it
	// reconciles. May be nil (e.g. in unit tests); all emit sites are
	// nil-checked.
	events       record.EventRecorder
	eventSubject runtime.Object
}

// New builds a Coordinator. events may be nil to disable event recording
// (as in tests that construct no manager/EventBroadcaster).
func New(s *store.Store, c *cluster.Driver, p *placement.Engine, a *agentclient.Client, strategy allocation.Strategy, events record.EventRecorder) *Coordinator {
	return &Coordinator{
		store: s, cluster: c, placement: p, agents: a, strategy: strategy,
		events: events,
		eventSubject: &arhav1alpha1.ArhaData{
			ObjectMeta: metav1.ObjectMeta{Name: store.ServicesName, Namespace: store.DefaultNamespace},
		},
	}
}

func (c *Coordinator) event(eventType, reason, message string) {
	if c.events == nil {
		return
	}
	c.events.Event(c.eventSubject, eventType, reason, message)
}

// SubscribeResult is the outcome of a /subscribe call.
type SubscribeResult struct {
	Rejected  bool
	Message   string
	IP        string
	Port      int
	Frequency float64
}

func indexSpecs(specs []arhav1alpha1.ServiceSpec) map[string]arhav1alpha1.ServiceSpec {
	out := make(map[string]arhav1alpha1.ServiceSpec, len(specs))
	for _, s := range specs {
		out[s.ServiceType] = s
	}
	return out
}

func countSubscriptions(subs []arhav1alpha1.Subscription, serviceType string) int {
	n := 0
	for _, s := range subs {
		if s.ServiceType == serviceType {
			n++
		}
	}
	return n
}

func sumConnections(services []arhav1alpha1.Service, serviceType string) int {
	n := 0
	for _, s := range services {
		if s.ServiceType == serviceType {
			n += s.CurrentConnection
		}
	}
	return n
}

// Subscribe implements spec.md §4.3's subscribe operation.
func (c *Coordinator) Subscribe(ctx context.Context, agentIP string, agentPort int, serviceType string) (*SubscribeResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	specs, err := c.store.LoadServiceSpecs(ctx)
	if err != nil {
		return nil, err
	}
	specsByType := indexSpecs(specs)
	if _, ok := specsByType[serviceType]; !ok {
		return &SubscribeResult{Rejected: true, Message: "unknown service type"}, nil
	}

	subs, err := c.store.LoadSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	services, err := c.store.LoadServices(ctx)
	if err != nil {
		return nil, err
	}

	nOld := countSubscriptions(subs, serviceType)
	target := nOld + 1

	newList, err := c.computeFrequency(ctx, serviceType, target, services, specsByType)
	if err != nil {
		if errors.Is(err, placement.ErrNoCapacity) {
			c.event(corev1.EventTypeWarning, "SubscribeRejected", fmt.Sprintf("no capacity to host another %s subscriber", serviceType))
			metrics.RecordSubscribe("rejected")
			return &SubscribeResult{Rejected: true, Message: "reject the subscription"}, nil
		}
		return nil, err
	}

	nNew := sumConnections(newList, serviceType)

	switch {
	case nNew == nOld:
		metrics.RecordSubscribe("rejected")
		return &SubscribeResult{Rejected: true, Message: "reject the subscription"}, nil

	case nNew == target:
		if err := c.store.SaveServices(ctx, newList); err != nil {
			return nil, err
		}
		updatedSubs, leftover := c.adjustFrequency(ctx, serviceType, newList, subs)
		if leftover == nil {
			return nil, fmt.Errorf("controller bug: no pod with capacity after successful allocation for %s", serviceType)
		}
		updatedSubs = append(updatedSubs, arhav1alpha1.Subscription{
			AgentIP: agentIP, AgentPort: agentPort, ServiceType: serviceType,
			PodIP: leftover.PodIP, NodeName: leftover.NodeName,
		})
		if err := c.store.SaveSubscriptions(ctx, updatedSubs); err != nil {
			return nil, err
		}
		metrics.RecordSubscribe("accepted")
		return &SubscribeResult{IP: leftover.HostIP, Port: leftover.HostPort, Frequency: leftover.CurrentFrequency}, nil

	default:
		return nil, fmt.Errorf("controller bug: unexpected allocation outcome nNew=%d nOld=%d N=%d", nNew, nOld, target)
	}
}

// AgentState implements the supplemented read-only GET /agentstate pull
// path: an agent can recover its current pod assignment and frequency if
// a push /servicechange notification was lost in transit (spec.md §4.5
// references this pull path by name; grounded on original_source's
// /newagent handler). The bool return is false if the agent has no
// active subscription.
func (c *Coordinator) AgentState(ctx context.Context, agentIP string, agentPort int) (*SubscribeResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	subs, err := c.store.LoadSubscriptions(ctx)
	if err != nil {
		return nil, false, err
	}
	services, err := c.store.LoadServices(ctx)
	if err != nil {
		return nil, false, err
	}

	for _, s := range subs {
		if s.AgentIP != agentIP || s.AgentPort != agentPort {
			continue
		}
		for _, svc := range services {
			if svc.ServiceType == s.ServiceType && svc.PodIP == s.PodIP {
				return &SubscribeResult{IP: svc.HostIP, Port: svc.HostPort, Frequency: svc.CurrentFrequency}, true, nil
			}
		}
	}
	return nil, false, nil
}

// Unsubscribe implements spec.md §4.3's unsubscribe operation.
func (c *Coordinator) Unsubscribe(ctx context.Context, agentIP string, agentPort int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	subs, err := c.store.LoadSubscriptions(ctx)
	if err != nil {
		return err
	}
	services, err := c.store.LoadServices(ctx)
	if err != nil {
		return err
	}

	decrements := map[string]int{}
	var remaining []arhav1alpha1.Subscription
	for _, s := range subs {
		if s.AgentIP == agentIP && s.AgentPort == agentPort {
			decrements[s.ServiceType+"|"+s.PodIP]++
			continue
		}
		remaining = append(remaining, s)
	}
	if len(decrements) == 0 {
		return nil
	}

	for i := range services {
		key := services[i].ServiceType + "|" + services[i].PodIP
		if d, ok := decrements[key]; ok {
			services[i].CurrentConnection -= d
			if services[i].CurrentConnection < 0 {
				services[i].CurrentConnection = 0
			}
		}
	}

	if err := c.store.SaveServices(ctx, services); err != nil {
		return err
	}
	if err := c.store.SaveSubscriptions(ctx, remaining); err != nil {
		return err
	}
	metrics.RecordUnsubscribe()
	return nil
}

// DeployPod implements spec.md §6's operator-facing manual /deploypod
// operation: deploy serviceType directly onto nodeName at the given
// hostPort, bypassing node-eligibility and port-pool selection, and
// record a workloadLimit of workAbility[nodeName]/amount (grounded on
// original_source's deploy_pod handler).
func (c *Coordinator) DeployPod(ctx context.Context, nodeName string, hostPort int, serviceType string, amount int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if amount <= 0 {
		return fmt.Errorf("deploypod: amount must be positive, got %d", amount)
	}

	specs, err := c.store.LoadServiceSpecs(ctx)
	if err != nil {
		return err
	}
	specsByType := indexSpecs(specs)
	target, ok := specsByType[serviceType]
	if !ok {
		return fmt.Errorf("deploypod: unknown service type %q", serviceType)
	}

	services, err := c.store.LoadServices(ctx)
	if err != nil {
		return err
	}

	pod, err := c.placement.DeployPodAt(ctx, serviceType, nodeName, hostPort)
	if err != nil {
		return fmt.Errorf("deploypod: %w", err)
	}

	services = append(services, arhav1alpha1.Service{
		PodIP:             pod.Status.PodIP,
		HostIP:            pod.Status.HostIP,
		HostPort:          hostPort,
		NodeName:          nodeName,
		ServiceType:       serviceType,
		CurrentConnection: 0,
		FrequencyLimit:    target.FrequencyLimit,
		CurrentFrequency:  target.FrequencyLimit.Default,
		WorkloadLimit:     target.WorkAbility[nodeName] / float64(amount),
	})

	return c.store.SaveServices(ctx, services)
}

// AlertKind is the kind of failure alert delivered to /alert.
type AlertKind string

const (
	AlertWorkerNodeFailure AlertKind = "workernode_failure"
	AlertPodFailure        AlertKind = "pod_failure"
)

// Alert implements spec.md §4.3's alert operation.
func (c *Coordinator) Alert(ctx context.Context, kind AlertKind, nodeName, podName string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	metrics.RecordAlert(string(kind))
	switch kind {
	case AlertWorkerNodeFailure:
		return c.alertWorkerNodeFailure(ctx, nodeName)
	case AlertPodFailure:
		return c.alertPodFailure(ctx, podName)
	default:
		return "", fmt.Errorf("alert: unknown alert type %q", kind)
	}
}

func (c *Coordinator) alertWorkerNodeFailure(ctx context.Context, nodeName string) (string, error) {
	services, err := c.store.LoadServices(ctx)
	if err != nil {
		return "", err
	}
	subs, err := c.store.LoadSubscriptions(ctx)
	if err != nil {
		return "", err
	}
	specs, err := c.store.LoadServiceSpecs(ctx)
	if err != nil {
		return "", err
	}
	specsByType := indexSpecs(specs)

	var failed, kept []arhav1alpha1.Service
	for _, s := range services {
		if s.NodeName == nodeName {
			failed = append(failed, s)
		} else {
			kept = append(kept, s)
		}
	}
	if len(failed) == 0 {
		return "no services on failed node", nil
	}
	c.event(corev1.EventTypeWarning, "WorkerNodeFailure", fmt.Sprintf("node %s failed, repairing %d services", nodeName, len(failed)))

	for _, s := range failed {
		if err := c.cluster.DeletePod(ctx, placement.PodName(s.ServiceType, s.NodeName, s.HostPort)); err != nil {
			klog.ErrorS(err, "alert: best-effort pod delete failed", "pod", placement.PodName(s.ServiceType, s.NodeName, s.HostPort))
		}
	}

	services = kept
	for _, f := range failed {
		if f.CurrentConnection == 0 {
			continue
		}
		var err error
		services, subs, err = c.shrinkAndRepair(ctx, f.ServiceType, services, subs, specsByType, map[string]bool{f.PodIP: true})
		if err != nil {
			return "", err
		}
	}

	if err := c.store.SaveServices(ctx, services); err != nil {
		return "", err
	}
	if err := c.store.SaveSubscriptions(ctx, subs); err != nil {
		return "", err
	}
	return "alert handled", nil
}

func (c *Coordinator) alertPodFailure(ctx context.Context, podName string) (string, error) {
	serviceType, nodeName, hostPort, err := placement.ParsePodName(podName)
	if err != nil {
		return "", err
	}

	services, err := c.store.LoadServices(ctx)
	if err != nil {
		return "", err
	}
	subs, err := c.store.LoadSubscriptions(ctx)
	if err != nil {
		return "", err
	}
	specs, err := c.store.LoadServiceSpecs(ctx)
	if err != nil {
		return "", err
	}
	specsByType := indexSpecs(specs)

	var failedPodIP string
	var kept []arhav1alpha1.Service
	found := false
	for _, s := range services {
		if s.ServiceType == serviceType && s.NodeName == nodeName && s.HostPort == hostPort {
			failedPodIP = s.PodIP
			found = true
			continue
		}
		kept = append(kept, s)
	}
	if !found {
		return "no matching service", nil
	}
	c.event(corev1.EventTypeWarning, "PodFailure", fmt.Sprintf("pod %s failed, repairing service %s", podName, serviceType))

	if err := c.cluster.DeletePod(ctx, podName); err != nil {
		klog.ErrorS(err, "alert: best-effort pod delete failed", "pod", podName)
	}

	services = kept
	services, subs, err = c.shrinkAndRepair(ctx, serviceType, services, subs, specsByType, map[string]bool{failedPodIP: true})
	if err != nil {
		return "", err
	}

	if err := c.store.SaveServices(ctx, services); err != nil {
		return "", err
	}
	if err := c.store.SaveSubscriptions(ctx, subs); err != nil {
		return "", err
	}
	return "alert handled", nil
}

// shrinkAndRepair re-runs compute_frequency for serviceType against its
// remaining subscriber count and, if the new assignment can host fewer
// agents than existed, drops the excess (preferring subscribers whose pod
// was on the failed node) before calling adjust_frequency. Spec.md §4.3.
func (c *Coordinator) shrinkAndRepair(
	ctx context.Context,
	serviceType string,
	services []arhav1alpha1.Service,
	subs []arhav1alpha1.Subscription,
	specsByType map[string]arhav1alpha1.ServiceSpec,
	failedPodIPs map[string]bool,
) ([]arhav1alpha1.Service, []arhav1alpha1.Subscription, error) {
	n := countSubscriptions(subs, serviceType)
	if n == 0 {
		return services, subs, nil
	}

	newList, err := c.computeFrequency(ctx, serviceType, n, services, specsByType)
	if err != nil {
		if errors.Is(err, placement.ErrNoCapacity) {
			newList = services
		} else {
			return nil, nil, err
		}
	}

	canHost := sumConnections(newList, serviceType)

	var onFailed, others []int
	for i, s := range subs {
		if s.ServiceType != serviceType {
			continue
		}
		if failedPodIPs[s.PodIP] {
			onFailed = append(onFailed, i)
		} else {
			others = append(others, i)
		}
	}
	ordered := append(append([]int{}, onFailed...), others...)

	toDrop := len(ordered) - canHost
	dropSet := map[int]bool{}
	for i := 0; i < toDrop && i < len(ordered); i++ {
		dropSet[ordered[i]] = true
	}

	var survivors []arhav1alpha1.Subscription
	for i, s := range subs {
		if dropSet[i] {
			continue
		}
		survivors = append(survivors, s)
	}

	repaired, _ := c.adjustFrequency(ctx, serviceType, newList, survivors)
	return newList, repaired, nil
}

// computeFrequency implements spec.md §4.4.
func (c *Coordinator) computeFrequency(
	ctx context.Context,
	serviceType string,
	n int,
	services []arhav1alpha1.Service,
	specsByType map[string]arhav1alpha1.ServiceSpec,
) ([]arhav1alpha1.Service, error) {
	target := n

	for {
		exists := false
		for _, s := range services {
			if s.ServiceType == serviceType {
				exists = true
				break
			}
		}

		mustScale := !exists
		var status allocation.Status
		var newList []arhav1alpha1.Service
		if exists {
			status, newList = allocation.Allocate(c.strategy, serviceType, target, services)
			metrics.RecordAllocate(string(c.strategy), string(status))
			if status != allocation.Success {
				mustScale = true
			} else {
				for _, s := range newList {
					if s.ServiceType == serviceType && s.CurrentConnection > 0 && s.CurrentFrequency < s.FrequencyLimit.Default {
						mustScale = true
						break
					}
				}
			}
		}

		if !mustScale {
			return newList, nil
		}

		targetSpec, ok := specsByType[serviceType]
		if !ok {
			return nil, fmt.Errorf("compute_frequency: missing service spec for %s", serviceType)
		}

		nodeStatus, err := c.store.LoadNodeStatus(ctx)
		if err != nil {
			return nil, err
		}
		nodes, order, err := c.nodeSnapshot(ctx)
		if err != nil {
			return nil, err
		}

		placeStart := time.Now()
		result, err := c.placement.Place(ctx, targetSpec, specsByType, services, nodeStatus, nodes, order)
		metrics.RecordPlacementDuration(time.Since(placeStart).Seconds())
		if err != nil {
			if errors.Is(err, placement.ErrNoCapacity) && status == allocation.Success {
				// The existing pods already host target agents within
				// frequency-limit bounds (if below default, still above
				// minimum); no node is free to scale out further, so keep
				// the already-valid, if degraded, assignment.
				return newList, nil
			}
			return nil, err
		}
		services = result.Services
		for _, t := range result.UpdatedCoTenants {
			coN := sumConnections(services, t)
			if coN == 0 {
				continue
			}
			coStatus, coList := allocation.Allocate(c.strategy, t, coN, services)
			metrics.RecordAllocate(string(c.strategy), string(coStatus))
			if coStatus != allocation.Success {
				// Mirrors original_source's deploy_service, which aborts
				// the whole placement rather than persisting a co-tenant
				// pushed below its minimum frequency by the new pod.
				return nil, fmt.Errorf("compute_frequency: placing %s broke co-tenant %s below its minimum frequency", serviceType, t)
			}
			services = coList
		}

		for target > 0 {
			status, newList = allocation.Allocate(c.strategy, serviceType, target, services)
			metrics.RecordAllocate(string(c.strategy), string(status))
			if status == allocation.Success {
				return newList, nil
			}
			target--
		}
		return newList, nil
	}
}

// adjustFrequency implements spec.md §4.5: reconciles subs against a
// freshly-written services list, notifying agents of frequency or
// endpoint changes. Returns the updated subscription list and a pointer
// to some Service that still has leftover capacity, or nil.
func (c *Coordinator) adjustFrequency(
	ctx context.Context,
	serviceType string,
	services []arhav1alpha1.Service,
	subs []arhav1alpha1.Subscription,
) ([]arhav1alpha1.Subscription, *arhav1alpha1.Service) {
	remaining := map[string]int{}
	byPodIP := map[string]*arhav1alpha1.Service{}
	var podOrder []string
	for i := range services {
		if services[i].ServiceType != serviceType {
			continue
		}
		ip := services[i].PodIP
		remaining[ip] = services[i].CurrentConnection
		byPodIP[ip] = &services[i]
		podOrder = append(podOrder, ip)
	}

	pickPodWithCapacity := func() *arhav1alpha1.Service {
		for _, ip := range podOrder {
			if remaining[ip] > 0 {
				return byPodIP[ip]
			}
		}
		return nil
	}

	updated := make([]arhav1alpha1.Subscription, len(subs))
	copy(updated, subs)

	var queued []int
	for i := range updated {
		s := &updated[i]
		if s.ServiceType != serviceType {
			continue
		}
		if n, ok := remaining[s.PodIP]; ok && n > 0 {
			remaining[s.PodIP] = n - 1
			svc := byPodIP[s.PodIP]
			c.agents.Notify(ctx, s.AgentIP, s.AgentPort, agentclient.KeepPod(serviceType, svc.CurrentFrequency))
		} else {
			queued = append(queued, i)
		}
	}

	for _, idx := range queued {
		s := &updated[idx]
		target := pickPodWithCapacity()
		if target == nil {
			klog.InfoS("adjust_frequency: no pod with capacity to re-home subscription", "serviceType", serviceType, "agentIP", s.AgentIP, "agentPort", s.AgentPort)
			continue
		}
		remaining[target.PodIP]--
		s.PodIP = target.PodIP
		s.NodeName = target.NodeName
		c.agents.Notify(ctx, s.AgentIP, s.AgentPort, agentclient.ServiceChange{
			ServiceName: serviceType, IP: target.HostIP, Port: target.HostPort, Frequency: target.CurrentFrequency,
		})
	}

	return updated, pickPodWithCapacity()
}

// nodeSnapshot reads the cluster's computing nodes into the shape the
// placement engine needs, in a deterministic order.
func (c *Coordinator) nodeSnapshot(ctx context.Context) (map[string]placement.NodeInfo, []string, error) {
	nodeList, err := c.cluster.ComputingNodes(ctx)
	if err != nil {
		return nil, nil, err
	}
	nodes := make(map[string]placement.NodeInfo, len(nodeList))
	order := make([]string, 0, len(nodeList))
	for i := range nodeList {
		n := &nodeList[i]
		nodes[n.Name] = placement.NodeInfo{InternalIP: cluster.NodeInternalIP(n), GPUMemory: cluster.NodeGPUMemory(n)}
		order = append(order, n.Name)
	}
	sort.Strings(order)
	return nodes, order, nil
}
