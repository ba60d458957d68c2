package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// ArhaData is the single generic kind the Controller persists all of its
// state in: one object per (collection, name) pair, holding the JSON-
// encoded document as a raw payload. This mirrors the original Python
// implementation's single "Data" custom resource kind used for every one
// of its four collections rather than four fully-typed CRDs.
//
// +kubebuilder:object:root=true
// +kubebuilder:resource:scope=Namespaced,shortName=arha
// +genclient
type ArhaData struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	// Data is the collection document, JSON-encoded. Its schema depends on
	// which collection the object belongs to (see pkg/store).
	Data []byte `json:"data,omitempty"`
}

// ArhaDataList contains a list of ArhaData objects.
//
// +kubebuilder:object:root=true
type ArhaDataList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []ArhaData `json:"items"`
}

func init() {
	SchemeBuilder.Register(&ArhaData{}, &ArhaDataList{})
}

// DeepCopyObject implements runtime.Object.
func (a *ArhaData) DeepCopyObject() runtime.Object {
	return a.DeepCopy()
}

// DeepCopy returns a deep copy of ArhaData.
func (a *ArhaData) DeepCopy() *ArhaData {
	if a == nil {
		return nil
	}
	out := new(ArhaData)
	a.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	out.TypeMeta = a.TypeMeta
	if a.Data != nil {
		out.Data = make([]byte, len(a.Data))
		copy(out.Data, a.Data)
	}
	return out
}

// DeepCopyObject implements runtime.Object.
func (l *ArhaDataList) DeepCopyObject() runtime.Object {
	return l.DeepCopy()
}

// DeepCopy returns a deep copy of ArhaDataList.
func (l *ArhaDataList) DeepCopy() *ArhaDataList {
	if l == nil {
		return nil
	}
	out := new(ArhaDataList)
	out.TypeMeta = l.TypeMeta
	l.ListMeta.DeepCopyInto(&out.ListMeta)
	if l.Items != nil {
		out.Items = make([]ArhaData, len(l.Items))
		for i := range l.Items {
			l.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
	return out
}

// DeepCopyInto copies a into out.
func (a *ArhaData) DeepCopyInto(out *ArhaData) {
	*out = *a.DeepCopy()
}
