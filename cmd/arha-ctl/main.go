package main

import (
	"fmt"
	"os"

	"arha-controller/pkg/ctl"
)

// Package main wires the CLI flags/arguments to the ctl package.
// It intentionally stays very small so library code can be reused elsewhere.
func main() {
	if len(os.Args) < 2 {
		ctl.PrintGlobalUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	rest := os.Args[2:]

	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		ctl.PrintGlobalUsage()
		return
	}

	namespace := envOr("NAMESPACE", "default")
	controllerURL := envOr("ARHA_CONTROLLER_URL", "http://localhost:8080")

	app, err := ctl.NewApp(namespace, controllerURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating client: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := ctl.WithTimeout()
	defer cancel()

	switch cmd {
	case "services":
		app.RunServices(ctx, rest)
	case "subscriptions":
		app.RunSubscriptions(ctx, rest)
	case "nodestatus":
		app.RunNodeStatus(ctx, rest)
	case "deploypod":
		app.RunDeployPod(ctx, rest)
	case "alert":
		app.RunAlert(ctx, rest)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		ctl.PrintGlobalUsage()
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
