package placement

import (
	"fmt"
	"strconv"
	"strings"
)

// PodName builds the load-bearing "{serviceType}-{nodeName}-{hostPort}"
// pod name (spec.md §6/§9): the only place this format is produced.
func PodName(serviceType, nodeName string, hostPort int) string {
	return fmt.Sprintf("%s-%s-%d", serviceType, nodeName, hostPort)
}

// ParsePodName is the explicit, rejecting inverse of PodName, reified
// per spec.md §9's design note ("magic splitting of pod name"): pod_failure
// alerts depend on this parse succeeding unambiguously. serviceType itself
// may not contain "-" under this scheme; nodeName may.
func ParsePodName(name string) (serviceType, nodeName string, hostPort int, err error) {
	parts := strings.Split(name, "-")
	if len(parts) < 3 {
		return "", "", 0, fmt.Errorf("placement: malformed pod name %q: expected serviceType-nodeName-hostPort", name)
	}
	hostPort, err = strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return "", "", 0, fmt.Errorf("placement: malformed pod name %q: host port not numeric: %w", name, err)
	}
	serviceType = parts[0]
	nodeName = strings.Join(parts[1:len(parts)-1], "-")
	if serviceType == "" || nodeName == "" {
		return "", "", 0, fmt.Errorf("placement: malformed pod name %q", name)
	}
	return serviceType, nodeName, hostPort, nil
}
