// Package ctl contains the human-facing operator CLI commands:
//   - "services"      : list the currently running service pods and their load
//   - "subscriptions" : list agent-to-pod subscriptions
//   - "nodestatus"    : list the last-probed health of every computing node
//   - "deploypod"     : force-deploy a service pod onto a specific node/port
//   - "alert"         : post a synthetic worker-node/pod failure alert
//
// It talks to the cluster's state documents directly for the read-only
// listing commands, and to the running controller's HTTP API for the two
// mutating commands so they go through the same subscribe/alert/compute
// mutex the controller itself uses for every other write.
package ctl

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
	"sigs.k8s.io/controller-runtime/pkg/client"

	arhav1alpha1 "arha-controller/api/v1alpha1"
	"arha-controller/pkg/store"
)

// App holds the shared state-store handle and HTTP client used by every
// subcommand.
type App struct {
	Store         *store.Store
	ControllerURL string
	HTTP          *http.Client
}

// NewApp builds a new App using kubeconfig (or in-cluster config) for the
// document store, and controllerURL for the mutating HTTP operations.
func NewApp(namespace, controllerURL string) (*App, error) {
	config, err := buildConfig()
	if err != nil {
		return nil, fmt.Errorf("build kube config: %w", err)
	}

	sch := runtime.NewScheme()
	if err := scheme.AddToScheme(sch); err != nil {
		return nil, fmt.Errorf("register builtin types: %w", err)
	}
	if err := arhav1alpha1.AddToScheme(sch); err != nil {
		return nil, fmt.Errorf("register arha types: %w", err)
	}

	docClient, err := client.New(config, client.Options{Scheme: sch})
	if err != nil {
		return nil, fmt.Errorf("create controller-runtime client: %w", err)
	}

	return &App{
		Store:         store.New(docClient, namespace),
		ControllerURL: controllerURL,
		HTTP:          &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// WithTimeout returns a context with a sensible default timeout for commands.
func WithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// buildConfig prefers KUBECONFIG, then ~/.kube/config, then in-cluster config.
func buildConfig() (*rest.Config, error) {
	var kubeconfigPath string
	if env := os.Getenv("KUBECONFIG"); env != "" {
		kubeconfigPath = env
	} else if home := homedir.HomeDir(); home != "" {
		kubeconfigPath = filepath.Join(home, ".kube", "config")
	}

	if kubeconfigPath != "" {
		if _, err := os.Stat(kubeconfigPath); err == nil {
			if cfg, err := clientcmd.BuildConfigFromFlags("", kubeconfigPath); err == nil {
				return cfg, nil
			}
		}
	}

	return rest.InClusterConfig()
}

// PrintGlobalUsage prints CLI help.
func PrintGlobalUsage() {
	fmt.Println("arha-ctl: inspect and operate the ARHA controller's state")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  arha-ctl <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  services      List running service pods and their current load")
	fmt.Println("  subscriptions List agent-to-pod subscriptions")
	fmt.Println("  nodestatus    List the last-probed health of every computing node")
	fmt.Println("  deploypod     Force-deploy a service pod onto a node/port")
	fmt.Println("  alert         Post a synthetic worker-node or pod failure alert")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  NAMESPACE=default arha-ctl services")
	fmt.Println("  arha-ctl deploypod -node worker-1 -port 30500 -service pose -amount 2")
	fmt.Println("  arha-ctl alert -type workerNodeFailure -node worker-1")
}
