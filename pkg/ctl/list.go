package ctl

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
)

// RunServices implements the `services` subcommand.
func (a *App) RunServices(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("services", flag.ExitOnError)
	_ = fs.Parse(args)

	services, err := a.Store.LoadServices(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading services: %v\n", err)
		os.Exit(1)
	}
	if len(services) == 0 {
		fmt.Println("No service pods recorded.")
		return
	}

	sort.Slice(services, func(i, j int) bool {
		if services[i].ServiceType != services[j].ServiceType {
			return services[i].ServiceType < services[j].ServiceType
		}
		return services[i].NodeName < services[j].NodeName
	})

	fmt.Println("Service pods:")
	for _, s := range services {
		fmt.Printf("- type=%s node=%s pod=%s:%d conns=%d/%.1f freq=%.2f (default=%.2f min=%.2f)\n",
			s.ServiceType, s.NodeName, s.PodIP, s.HostPort, s.CurrentConnection, s.WorkloadLimit,
			s.CurrentFrequency, s.FrequencyLimit.Default, s.FrequencyLimit.Minimum)
	}
}

// RunSubscriptions implements the `subscriptions` subcommand.
func (a *App) RunSubscriptions(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("subscriptions", flag.ExitOnError)
	_ = fs.Parse(args)

	subs, err := a.Store.LoadSubscriptions(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading subscriptions: %v\n", err)
		os.Exit(1)
	}
	if len(subs) == 0 {
		fmt.Println("No subscriptions recorded.")
		return
	}

	fmt.Println("Subscriptions:")
	for _, sub := range subs {
		fmt.Printf("- agent=%s:%d type=%s -> pod=%s node=%s\n",
			sub.AgentIP, sub.AgentPort, sub.ServiceType, sub.PodIP, sub.NodeName)
	}
}

// RunNodeStatus implements the `nodestatus` subcommand.
func (a *App) RunNodeStatus(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("nodestatus", flag.ExitOnError)
	_ = fs.Parse(args)

	status, err := a.Store.LoadNodeStatus(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading node status: %v\n", err)
		os.Exit(1)
	}
	if len(status) == 0 {
		fmt.Println("No node status recorded yet (controller may not have run its startup bootstrap).")
		return
	}

	names := make([]string, 0, len(status))
	for name := range status {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Node status:")
	for _, name := range names {
		fmt.Printf("- %s: %s\n", name, status[name])
	}
}
