// Package store implements the Controller's persisted state: four named
// documents (services, servicespecs, subscriptions, nodestatuses), each
// backed by one ArhaData custom resource and replaced as a whole. This
// mirrors original_source/Controller/crd_utils.py's generic
// read_crd/update_crd helpers, translated onto controller-runtime's
// client.Client.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/client"

	arhav1alpha1 "arha-controller/api/v1alpha1"
)

// Document names, addressed as (kind-plural, name) in spec terms; here the
// kind is always ArhaData so only the name varies.
const (
	DefaultNamespace  = "default"
	ServicesName      = "service-info"
	ServiceSpecsName  = "servicespec-info"
	SubscriptionsName = "subscription-info"
	NodeStatusesName  = "nodestatus-info"
)

// Store reads and replaces the four collections.
type Store struct {
	client    client.Client
	namespace string
}

// New builds a Store against the given controller-runtime client, scoped
// to namespace (the original always used "default").
func New(c client.Client, namespace string) *Store {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Store{client: c, namespace: namespace}
}

// read loads the document named name into out. It returns found=false
// with a nil error if no document exists yet (an empty collection), the
// same way original_source's read_crd returns None on 404.
func (s *Store) read(ctx context.Context, name string, out interface{}) (bool, error) {
	var obj arhav1alpha1.ArhaData
	key := client.ObjectKey{Namespace: s.namespace, Name: name}
	if err := s.client.Get(ctx, key, &obj); err != nil {
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("store: reading %s/%s: %w", s.namespace, name, err)
	}
	if len(obj.Data) == 0 {
		return true, nil
	}
	if err := json.Unmarshal(obj.Data, out); err != nil {
		return false, fmt.Errorf("store: decoding %s/%s: %w", s.namespace, name, err)
	}
	return true, nil
}

// replace fully overwrites the document named name with in, creating it
// if absent (upsert-on-404, matching original_source's update_crd).
func (s *Store) replace(ctx context.Context, name string, in interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("store: encoding %s/%s: %w", s.namespace, name, err)
	}

	var obj arhav1alpha1.ArhaData
	key := client.ObjectKey{Namespace: s.namespace, Name: name}
	err = s.client.Get(ctx, key, &obj)
	switch {
	case apierrors.IsNotFound(err):
		obj = arhav1alpha1.ArhaData{
			ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: s.namespace},
			Data:       payload,
		}
		if err := s.client.Create(ctx, &obj); err != nil {
			return fmt.Errorf("store: creating %s/%s: %w", s.namespace, name, err)
		}
		klog.V(2).InfoS("created document", "namespace", s.namespace, "name", name)
		return nil
	case err != nil:
		return fmt.Errorf("store: reading %s/%s before replace: %w", s.namespace, name, err)
	default:
		obj.Data = payload
		if err := s.client.Update(ctx, &obj); err != nil {
			return fmt.Errorf("store: updating %s/%s: %w", s.namespace, name, err)
		}
		return nil
	}
}

// LoadServices returns the current service list, or an empty slice if no
// document has been written yet.
func (s *Store) LoadServices(ctx context.Context) ([]arhav1alpha1.Service, error) {
	var list []arhav1alpha1.Service
	if _, err := s.read(ctx, ServicesName, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// SaveServices fully replaces the service list.
func (s *Store) SaveServices(ctx context.Context, services []arhav1alpha1.Service) error {
	return s.replace(ctx, ServicesName, services)
}

// LoadServiceSpecs returns the current service-spec list.
func (s *Store) LoadServiceSpecs(ctx context.Context) ([]arhav1alpha1.ServiceSpec, error) {
	var list []arhav1alpha1.ServiceSpec
	if _, err := s.read(ctx, ServiceSpecsName, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// SaveServiceSpecs fully replaces the service-spec list.
func (s *Store) SaveServiceSpecs(ctx context.Context, specs []arhav1alpha1.ServiceSpec) error {
	return s.replace(ctx, ServiceSpecsName, specs)
}

// LoadSubscriptions returns the current subscription list.
func (s *Store) LoadSubscriptions(ctx context.Context) ([]arhav1alpha1.Subscription, error) {
	var list []arhav1alpha1.Subscription
	if _, err := s.read(ctx, SubscriptionsName, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// SaveSubscriptions fully replaces the subscription list.
func (s *Store) SaveSubscriptions(ctx context.Context, subs []arhav1alpha1.Subscription) error {
	return s.replace(ctx, SubscriptionsName, subs)
}

// LoadNodeStatus returns the current node health map, or an empty map if
// initialization hasn't run yet.
func (s *Store) LoadNodeStatus(ctx context.Context) (arhav1alpha1.NodeStatus, error) {
	status := arhav1alpha1.NodeStatus{}
	if _, err := s.read(ctx, NodeStatusesName, &status); err != nil {
		return nil, err
	}
	return status, nil
}

// SaveNodeStatus fully replaces the node health map.
func (s *Store) SaveNodeStatus(ctx context.Context, status arhav1alpha1.NodeStatus) error {
	return s.replace(ctx, NodeStatusesName, status)
}
