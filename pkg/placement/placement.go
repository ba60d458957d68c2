package placement

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/yaml"

	arhav1alpha1 "arha-controller/api/v1alpha1"
	"arha-controller/pkg/cluster"
)

// Host-port pool (spec.md §6): service pods use TCP hostPort in this
// range, uniqueness guaranteed by the controller.
const (
	HostPortMin = 30500
	HostPortMax = 30999
)

// ErrNoCapacity is returned when no node is eligible to host a new pod.
var ErrNoCapacity = errors.New("placement: no enough computing resource")

// TemplateLoader resolves a service type to its pod manifest template.
type TemplateLoader interface {
	Load(serviceType string) (*corev1.Pod, error)
}

// FileTemplateLoader reads "{serviceType}.yaml" from a directory, the way
// original_source's deploy_pod reads service_yaml/{service_type}.yaml.
type FileTemplateLoader struct {
	Dir string
}

// Load parses the YAML template for serviceType into a corev1.Pod.
func (f FileTemplateLoader) Load(serviceType string) (*corev1.Pod, error) {
	path := filepath.Join(f.Dir, serviceType+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("placement: loading pod template for %s: %w", serviceType, err)
	}
	var pod corev1.Pod
	if err := yaml.Unmarshal(data, &pod); err != nil {
		return nil, fmt.Errorf("placement: parsing pod template for %s: %w", serviceType, err)
	}
	return &pod, nil
}

// Engine deploys new service pods: node selection plus the mutating
// host-port/pod-create/wait-ready sequence.
type Engine struct {
	cluster   *cluster.Driver
	templates TemplateLoader
	portMin   int
	portMax   int
}

// NewEngine builds an Engine against the given cluster driver and
// template source.
func NewEngine(driver *cluster.Driver, templates TemplateLoader) *Engine {
	return &Engine{cluster: driver, templates: templates, portMin: HostPortMin, portMax: HostPortMax}
}

func usedPorts(services []arhav1alpha1.Service) map[int]bool {
	used := make(map[int]bool, len(services))
	for _, s := range services {
		used[s.HostPort] = true
	}
	return used
}

// buildManifest loads serviceType's template and overrides its name,
// node pin, and first container port to hostPort (spec.md §6's pod
// manifest rules).
func (e *Engine) buildManifest(serviceType, nodeName string, hostPort int) (*corev1.Pod, error) {
	manifest, err := e.templates.Load(serviceType)
	if err != nil {
		return nil, err
	}
	candidate := manifest.DeepCopy()
	candidate.Name = PodName(serviceType, nodeName, hostPort)
	if candidate.Spec.NodeSelector == nil {
		candidate.Spec.NodeSelector = map[string]string{}
	}
	candidate.Spec.NodeSelector["kubernetes.io/hostname"] = nodeName
	if len(candidate.Spec.Containers) == 0 || len(candidate.Spec.Containers[0].Ports) == 0 {
		return nil, fmt.Errorf("placement: template for %s declares no container port to override", serviceType)
	}
	candidate.Spec.Containers[0].Ports[0].HostPort = int32(hostPort)
	return candidate, nil
}

// DeployPod picks the smallest free host port, builds the manifest for
// serviceType pinned to nodeName, and creates it. On a name collision
// with a still-terminating pod of the same port, it advances to the next
// free port and retries (spec.md §4.2).
func (e *Engine) DeployPod(ctx context.Context, serviceType, nodeName string, used map[int]bool) (pod *corev1.Pod, hostPort int, err error) {
	for port := e.portMin; port <= e.portMax; port++ {
		if used[port] {
			continue
		}
		name := PodName(serviceType, nodeName, port)

		terminating, terr := e.cluster.IsPodTerminating(ctx, name)
		if terr != nil {
			return nil, 0, terr
		}
		if terminating {
			continue
		}

		candidate, berr := e.buildManifest(serviceType, nodeName, port)
		if berr != nil {
			return nil, 0, berr
		}

		created, cerr := e.cluster.CreatePod(ctx, candidate)
		if cerr != nil {
			if apierrors.IsAlreadyExists(cerr) {
				continue
			}
			return nil, 0, cerr
		}

		ready, werr := e.cluster.WaitForPodReady(ctx, created.Name, cluster.DefaultPollOptions())
		if werr != nil {
			return nil, 0, werr
		}
		return ready, port, nil
	}

	return nil, 0, fmt.Errorf("placement: no free host port in [%d,%d]", e.portMin, e.portMax)
}

// DeployPodAt creates a pod for serviceType pinned to nodeName at the
// exact given hostPort, with no port-pool scanning. Grounded on
// original_source's deploy_pod as called from the operator-facing
// /deploypod endpoint, which names its own port rather than letting the
// controller pick one.
func (e *Engine) DeployPodAt(ctx context.Context, serviceType, nodeName string, hostPort int) (*corev1.Pod, error) {
	candidate, err := e.buildManifest(serviceType, nodeName, hostPort)
	if err != nil {
		return nil, err
	}
	created, err := e.cluster.CreatePod(ctx, candidate)
	if err != nil {
		return nil, err
	}
	return e.cluster.WaitForPodReady(ctx, created.Name, cluster.DefaultPollOptions())
}

// Result is the outcome of a successful Place call: the caller should
// persist Services (which already includes the new entry and any
// co-tenant workloadLimit updates) and re-run the allocator for every
// service type in UpdatedCoTenants.
type Result struct {
	NewService       arhav1alpha1.Service
	UpdatedCoTenants []string
	Services         []arhav1alpha1.Service
}

// Place selects a node, deploys a pod for target on it, and returns the
// updated full service list. If pod deployment itself fails after a node
// was selected, the returned error carries no service list: the caller
// must keep using its own pre-Place snapshot so co-tenant workloadLimit
// changes are never persisted without the pod that justified them (spec.md
// §9 open question on the placement transaction).
func (e *Engine) Place(
	ctx context.Context,
	target arhav1alpha1.ServiceSpec,
	specs map[string]arhav1alpha1.ServiceSpec,
	services []arhav1alpha1.Service,
	nodeStatus arhav1alpha1.NodeStatus,
	nodes map[string]NodeInfo,
	nodeOrder []string,
) (*Result, error) {
	sel, ok := SelectNode(target, specs, services, nodeStatus, nodes, nodeOrder)
	if !ok {
		return nil, ErrNoCapacity
	}

	updated := make([]arhav1alpha1.Service, len(services))
	copy(updated, services)

	var changedTypes []string
	for i := range updated {
		if updated[i].NodeName != sel.NodeName {
			continue
		}
		spec, ok := specs[updated[i].ServiceType]
		if !ok {
			continue
		}
		newLimit := spec.WorkAbility[sel.NodeName] / float64(sel.NewTenantCount)
		if newLimit != updated[i].WorkloadLimit {
			updated[i].WorkloadLimit = newLimit
			changedTypes = append(changedTypes, updated[i].ServiceType)
		}
	}

	pod, port, err := e.DeployPod(ctx, target.ServiceType, sel.NodeName, usedPorts(updated))
	if err != nil {
		return nil, fmt.Errorf("placement: deploying pod for %s on %s: %w", target.ServiceType, sel.NodeName, err)
	}

	newSvc := arhav1alpha1.Service{
		PodIP:             pod.Status.PodIP,
		HostIP:            pod.Status.HostIP,
		HostPort:          port,
		NodeName:          sel.NodeName,
		ServiceType:       target.ServiceType,
		CurrentConnection: 0,
		FrequencyLimit:    target.FrequencyLimit,
		CurrentFrequency:  target.FrequencyLimit.Default,
		WorkloadLimit:     target.WorkAbility[sel.NodeName] / float64(sel.NewTenantCount),
	}
	updated = append(updated, newSvc)

	return &Result{NewService: newSvc, UpdatedCoTenants: changedTypes, Services: updated}, nil
}
