package ctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
)

// RunDeployPod implements the `deploypod` subcommand: it posts directly to
// the running controller's /deploypod route so the new pod is recorded
// under the same mutex as every other state mutation.
func (a *App) RunDeployPod(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("deploypod", flag.ExitOnError)
	nodeName := fs.String("node", "", "Node to pin the pod to (required)")
	hostPort := fs.Int("port", 0, "Host port to bind the pod to (required)")
	serviceType := fs.String("service", "", "Service type to deploy (required)")
	amount := fs.Int("amount", 1, "Number of logical shares this pod's workload limit should be divided into")
	_ = fs.Parse(args)

	if *nodeName == "" || *hostPort == 0 || *serviceType == "" {
		fmt.Fprintln(os.Stderr, "Error: -node, -port and -service are required")
		fs.Usage()
		os.Exit(1)
	}

	body, err := json.Marshal(map[string]any{
		"nodeName":     *nodeName,
		"hostPort":     *hostPort,
		"service_type": *serviceType,
		"amount":       *amount,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding request: %v\n", err)
		os.Exit(1)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.ControllerURL+"/deploypod", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.HTTP.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error calling controller: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Controller rejected deploy (status %d): %s\n", resp.StatusCode, out)
		os.Exit(1)
	}
	fmt.Printf("Deployed %s on %s:%d (amount=%d): %s\n", *serviceType, *nodeName, *hostPort, *amount, out)
}
