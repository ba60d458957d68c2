package v1alpha1

// FrequencyLimit is the ordered (default, minimum) pair a service type
// advertises: default ≥ minimum ≥ 0.
type FrequencyLimit struct {
	Default float64 `json:"default"`
	Minimum float64 `json:"minimum"`
}

// ServiceSpec is the static, administrator-supplied description of one
// service type.
type ServiceSpec struct {
	ServiceType      string             `json:"serviceType"`
	WorkAbility      map[string]float64 `json:"workAbility"`
	FrequencyLimit   FrequencyLimit     `json:"frequencyLimit"`
	GPUMemoryRequest int64              `json:"gpuMemoryRequest"`
}

// Service is a running instance of a service pod.
type Service struct {
	PodIP             string         `json:"podIP"`
	HostIP            string         `json:"hostIP"`
	HostPort          int            `json:"hostPort"`
	NodeName          string         `json:"nodeName"`
	ServiceType       string         `json:"serviceType"`
	CurrentConnection int            `json:"currentConnection"`
	FrequencyLimit    FrequencyLimit `json:"frequencyLimit"`
	CurrentFrequency  float64        `json:"currentFrequency"`
	WorkloadLimit     float64        `json:"workloadLimit"`
}

// Subscription binds one agent to one pod for one service type.
type Subscription struct {
	AgentIP     string `json:"agentIP"`
	AgentPort   int    `json:"agentPort"`
	ServiceType string `json:"serviceType"`
	PodIP       string `json:"podIP"`
	NodeName    string `json:"nodeName"`
}

// HealthState is the value half of the NodeStatus mapping.
type HealthState string

const (
	NodeHealthy   HealthState = "healthy"
	NodeUnhealthy HealthState = "unhealthy"
)

// NodeStatus is the full nodeName -> health mapping, persisted as a single
// document.
type NodeStatus map[string]HealthState
