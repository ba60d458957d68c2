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

// RunAlert implements the `alert` subcommand: it posts a synthetic
// workerNodeFailure or podFailure alert to the controller's /alert route,
// the same shape a real monitoring agent would send.
func (a *App) RunAlert(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("alert", flag.ExitOnError)
	alertType := fs.String("type", "", "workerNodeFailure or podFailure (required)")
	nodeName := fs.String("node", "", "Node name (required for workerNodeFailure)")
	podName := fs.String("pod", "", "Pod name (required for podFailure)")
	_ = fs.Parse(args)

	var content map[string]string
	var wireType string
	switch *alertType {
	case "workerNodeFailure":
		if *nodeName == "" {
			fmt.Fprintln(os.Stderr, "Error: -node is required for workerNodeFailure")
			os.Exit(1)
		}
		content = map[string]string{"nodeName": *nodeName}
		wireType = "workernode_failure"
	case "podFailure":
		if *podName == "" {
			fmt.Fprintln(os.Stderr, "Error: -pod is required for podFailure")
			os.Exit(1)
		}
		content = map[string]string{"podName": *podName}
		wireType = "pod_failure"
	default:
		fmt.Fprintf(os.Stderr, "Error: -type must be workerNodeFailure or podFailure, got %q\n", *alertType)
		os.Exit(1)
	}

	body, err := json.Marshal(map[string]any{"alertType": wireType, "alertContent": content})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding request: %v\n", err)
		os.Exit(1)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.ControllerURL+"/alert", bytes.NewReader(body))
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
		fmt.Fprintf(os.Stderr, "Controller rejected alert (status %d): %s\n", resp.StatusCode, out)
		os.Exit(1)
	}
	fmt.Printf("Alert posted: %s\n", out)
}
