// Package cluster is the thin orchestrator-facing layer the placement
// engine and initializer drive: node discovery and labels, pod lifecycle,
// and node health probing. Grounded on pkg/actuator/actuator.go's
// retry/poll/Options idiom, repurposed from "resize an existing pod" to
// "create and wait for a new one", and on original_source/Controller/
// controller.go's get_node_ip / is_pod_terminating / curl_health_check.
package cluster

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"
)

// NodeTypeLabel tags nodes eligible to host service pods.
const NodeTypeLabel = "arha-node-type"

// NodeTypeComputing is the label value identifying a computing node.
const NodeTypeComputing = "computing-node"

// GPUMemoryLabel advertises a node's GPU memory budget, in MiB.
const GPUMemoryLabel = "nvidia.com/gpu.memory"

// PollOptions configures pod-readiness waiting, mirroring
// actuator.Options' Wait/WaitTimeout/PollInterval fields.
type PollOptions struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

// DefaultPollOptions is the spec's 60s-via-12x5s cap.
func DefaultPollOptions() PollOptions {
	return PollOptions{Timeout: 60 * time.Second, PollInterval: 5 * time.Second}
}

// Driver is the cluster-facing interface the placement engine needs.
type Driver struct {
	client        kubernetes.Interface
	namespace     string
	healthClient  *http.Client
}

// New builds a Driver against the given clientset.
func New(client kubernetes.Interface, namespace string) *Driver {
	if namespace == "" {
		namespace = "default"
	}
	return &Driver{
		client:       client,
		namespace:    namespace,
		healthClient: &http.Client{Timeout: time.Second},
	}
}

// ComputingNodes lists every node tagged NodeTypeLabel=NodeTypeComputing.
func (d *Driver) ComputingNodes(ctx context.Context) ([]corev1.Node, error) {
	list, err := d.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s", NodeTypeLabel, NodeTypeComputing),
	})
	if err != nil {
		return nil, fmt.Errorf("cluster: listing computing nodes: %w", err)
	}
	return list.Items, nil
}

// NodeInternalIP returns the node's internal IP address, as original's
// get_node_ip does.
func NodeInternalIP(node *corev1.Node) string {
	for _, addr := range node.Status.Addresses {
		if addr.Type == corev1.NodeInternalIP {
			return addr.Address
		}
	}
	return ""
}

// NodeGPUMemory reads the GPU memory budget label, in MiB. Zero if absent
// or unparsable.
func NodeGPUMemory(node *corev1.Node) int64 {
	v, ok := node.Labels[GPUMemoryLabel]
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// ProbeHealth performs the spec's node health probe: GET
// http://{nodeIP}:10248/healthz, 1s timeout, body must be exactly "ok"
// (case-insensitive, trimmed).
func (d *Driver) ProbeHealth(ctx context.Context, nodeIP string) bool {
	url := fmt.Sprintf("http://%s:10248/healthz", nodeIP)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := d.healthClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(string(body)), "ok")
}

// GetPod reads a pod by name; returns (nil, nil) if it doesn't exist.
func (d *Driver) GetPod(ctx context.Context, name string) (*corev1.Pod, error) {
	pod, err := d.client.CoreV1().Pods(d.namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cluster: get pod %s: %w", name, err)
	}
	return pod, nil
}

// IsPodTerminating reports whether a pod exists and has a deletion
// timestamp set, mirroring original's is_pod_terminating.
func (d *Driver) IsPodTerminating(ctx context.Context, name string) (bool, error) {
	pod, err := d.GetPod(ctx, name)
	if err != nil {
		return false, err
	}
	if pod == nil {
		return false, nil
	}
	return pod.DeletionTimestamp != nil, nil
}

// CreatePod submits a pod manifest.
func (d *Driver) CreatePod(ctx context.Context, pod *corev1.Pod) (*corev1.Pod, error) {
	created, err := d.client.CoreV1().Pods(d.namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("cluster: create pod %s: %w", pod.Name, err)
	}
	return created, nil
}

// DeletePod best-effort deletes a pod by name; a NotFound is not an error.
func (d *Driver) DeletePod(ctx context.Context, name string) error {
	err := d.client.CoreV1().Pods(d.namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("cluster: delete pod %s: %w", name, err)
	}
	return nil
}

// WaitForPodReady polls a pod until it has a PodIP/HostIP assigned or the
// opts timeout elapses, returning the last observed pod either way (spec
// §4.2: "poll until the orchestrator reports pod readiness or 60s
// elapsed; either way record the pod in the state store").
func (d *Driver) WaitForPodReady(ctx context.Context, name string, opts PollOptions) (*corev1.Pod, error) {
	if opts.Timeout == 0 {
		opts = DefaultPollOptions()
	}
	deadline := time.Now().Add(opts.Timeout)
	var last *corev1.Pod
	for {
		pod, err := d.GetPod(ctx, name)
		if err != nil {
			return nil, err
		}
		if pod != nil {
			last = pod
			if pod.Status.PodIP != "" && pod.Status.HostIP != "" && pod.Spec.NodeName != "" {
				return pod, nil
			}
		}
		if time.Now().After(deadline) {
			klog.InfoS("pod did not become ready within timeout", "name", name, "timeout", opts.Timeout)
			return last, nil
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(opts.PollInterval):
		}
	}
}
