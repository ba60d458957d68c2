// Package agentclient posts reconfiguration notifications to per-terminal
// agents. Grounded on original_source/Controller/controller.go's
// communicate_with_agent: best-effort, logged-and-ignored on failure, no
// retry (the agent has an orthogonal /newagent pull path).
package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"k8s.io/klog/v2"
)

// ServiceChange is the payload delivered to an agent's /servicechange
// endpoint. IP == "null" and Port == 0 mean "keep your current pod, only
// change frequency".
type ServiceChange struct {
	ServiceName string  `json:"servicename"`
	IP          string  `json:"ip"`
	Port        int     `json:"port"`
	Frequency   float64 `json:"frequency"`
}

// KeepPod builds a frequency-only ServiceChange payload.
func KeepPod(serviceName string, frequency float64) ServiceChange {
	return ServiceChange{ServiceName: serviceName, IP: "null", Port: 0, Frequency: frequency}
}

// Client notifies agents of reconfiguration. Failures are logged, never
// returned as fatal to the caller's own operation.
type Client struct {
	http *http.Client
}

// New builds a Client with the given POST timeout.
func New(timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Client{http: &http.Client{Timeout: timeout}}
}

// Notify POSTs change to the agent at agentIP:agentPort. Any failure
// (network, non-2xx) is logged and swallowed, matching the spec's error
// taxonomy for agent reconfiguration.
func (c *Client) Notify(ctx context.Context, agentIP string, agentPort int, change ServiceChange) {
	url := fmt.Sprintf("http://%s:%d/servicechange", agentIP, agentPort)
	body, err := json.Marshal(change)
	if err != nil {
		klog.ErrorS(err, "agentclient: encoding servicechange payload", "agentIP", agentIP, "agentPort", agentPort)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		klog.ErrorS(err, "agentclient: building request", "agentIP", agentIP, "agentPort", agentPort)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		klog.ErrorS(err, "agentclient: servicechange POST failed", "agentIP", agentIP, "agentPort", agentPort)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		klog.InfoS("agentclient: servicechange rejected by agent", "agentIP", agentIP, "agentPort", agentPort, "status", resp.StatusCode)
	}
}
