// Package initializer runs the controller's startup sequence: discover
// the computing nodes, probe each one's health concurrently, and persist
// the resulting node-status document before the HTTP API starts serving.
// Grounded on original_source/Controller/controller.py's
// node_status_sync, which fans a ThreadPoolExecutor out over
// curl_health_check per node; translated to goroutines + sync.WaitGroup,
// the idiomatic Go analogue (see DESIGN.md's stdlib justification).
package initializer

import (
	"context"
	"sync"

	"k8s.io/klog/v2"

	arhav1alpha1 "arha-controller/api/v1alpha1"
	"arha-controller/pkg/cluster"
	"arha-controller/pkg/store"
)

// Bootstrap discovers computing nodes and probes each one's health in
// parallel, then persists the resulting NodeStatus document. It returns
// the status map it wrote.
func Bootstrap(ctx context.Context, driver *cluster.Driver, st *store.Store) (arhav1alpha1.NodeStatus, error) {
	nodes, err := driver.ComputingNodes(ctx)
	if err != nil {
		return nil, err
	}

	status := make(arhav1alpha1.NodeStatus, len(nodes))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := range nodes {
		node := &nodes[i]
		ip := cluster.NodeInternalIP(node)
		if ip == "" {
			mu.Lock()
			status[node.Name] = arhav1alpha1.NodeUnhealthy
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(name, ip string) {
			defer wg.Done()
			healthy := driver.ProbeHealth(ctx, ip)
			mu.Lock()
			if healthy {
				status[name] = arhav1alpha1.NodeHealthy
			} else {
				status[name] = arhav1alpha1.NodeUnhealthy
			}
			mu.Unlock()
		}(node.Name, ip)
	}

	wg.Wait()

	klog.InfoS("node health sync complete", "nodes", len(status))
	if err := st.SaveNodeStatus(ctx, status); err != nil {
		return nil, err
	}
	return status, nil
}
