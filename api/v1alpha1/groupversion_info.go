// Package v1alpha1 contains the generic document kind the Controller
// persists its state in, and the domain structs serialized into its
// payload.
//
// +kubebuilder:object:generate=true
// +groupName=ha.arha.io
package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

var (
	// GroupVersion is the group version used to register these objects.
	GroupVersion = schema.GroupVersion{Group: "ha.arha.io", Version: "v1alpha1"}

	// SchemeBuilder is used to add go types to the GroupVersionKind scheme.
	SchemeBuilder = &scheme{GroupVersion: GroupVersion}

	// AddToScheme adds the types in this group-version to the given scheme.
	AddToScheme = SchemeBuilder.AddToScheme
)

// scheme is a minimal stand-in for controller-gen's generated
// SchemeBuilder: the teacher repo references SchemeBuilder.Register from
// its init() but never carries the generated file that would define it.
type scheme struct {
	GroupVersion schema.GroupVersion
	types        []runtime.Object
}

func (s *scheme) Register(objs ...runtime.Object) {
	s.types = append(s.types, objs...)
}

func (s *scheme) AddToScheme(sch *runtime.Scheme) error {
	sch.AddKnownTypes(s.GroupVersion, s.types...)
	metav1.AddToGroupVersion(sch, s.GroupVersion)
	return nil
}
