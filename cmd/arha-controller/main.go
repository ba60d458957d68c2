package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	typedcorev1 "k8s.io/client-go/kubernetes/typed/core/v1"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/record"
	"k8s.io/klog/v2"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	arhav1alpha1 "arha-controller/api/v1alpha1"
	"arha-controller/pkg/agentclient"
	"arha-controller/pkg/allocation"
	"arha-controller/pkg/cluster"
	"arha-controller/pkg/coordinator"
	"arha-controller/pkg/httpapi"
	"arha-controller/pkg/initializer"
	"arha-controller/pkg/placement"
	"arha-controller/pkg/store"
)

func main() {
	fmt.Println("================================================================================")
	fmt.Println("  ARHA Controller - AR-offload subscription/placement control plane")
	fmt.Println("================================================================================")
	fmt.Println()

	klog.InitFlags(nil)

	zapLog, err := zap.NewProduction()
	if err != nil {
		klog.Fatalf("Failed to build zap logger: %v", err)
	}
	ctrl.SetLogger(zapr.NewLogger(zapLog))

	var (
		namespace    string
		addr         string
		templateDir  string
		agentTimeout time.Duration
	)
	flag.StringVar(&namespace, "namespace", "default", "Namespace holding the controller's state documents")
	flag.StringVar(&addr, "addr", ":8080", "HTTP API listen address")
	flag.StringVar(&templateDir, "template-dir", "/etc/arha-controller/templates", "Directory of per-service pod manifest YAML templates")
	flag.DurationVar(&agentTimeout, "agent-timeout", 2*time.Second, "Timeout for best-effort /servicechange POSTs to agents")
	flag.Parse()

	if ns := os.Getenv("NAMESPACE"); ns != "" {
		namespace = ns
	}

	config, err := rest.InClusterConfig()
	if err != nil {
		klog.Fatalf("Failed to get in-cluster config: %v (controller must run in-cluster)", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		klog.Fatalf("Failed to create Kubernetes clientset: %v", err)
	}

	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		klog.Fatalf("Failed to register builtin types: %v", err)
	}
	if err := arhav1alpha1.AddToScheme(scheme); err != nil {
		klog.Fatalf("Failed to register arha types: %v", err)
	}

	docClient, err := client.New(config, client.Options{Scheme: scheme})
	if err != nil {
		klog.Fatalf("Failed to create controller-runtime client: %v", err)
	}

	st := store.New(docClient, namespace)
	driver := cluster.New(clientset, namespace)
	engine := placement.NewEngine(driver, placement.FileTemplateLoader{Dir: templateDir})
	agents := agentclient.New(agentTimeout)

	strategy := allocation.Strategy(os.Getenv("OPTIMIZER_FUNCTION"))
	switch strategy {
	case allocation.StrategyOptimize, allocation.StrategyUniform, allocation.StrategyMostRemaining:
	default:
		klog.InfoS("OPTIMIZER_FUNCTION unset or unrecognized, defaulting to optimize", "got", string(strategy))
		strategy = allocation.StrategyOptimize
	}

	events := newEventRecorder(clientset, namespace)
	co := coordinator.New(st, driver, engine, agents, strategy, events)

	ctx := context.Background()
	if _, err := initializer.Bootstrap(ctx, driver, st); err != nil {
		klog.Fatalf("Startup node-health bootstrap failed: %v", err)
	}

	srv := httpapi.New(co)
	klog.InfoS("Starting HTTP API", "addr", addr, "strategy", string(strategy), "namespace", namespace)
	if err := srv.Start(addr); err != nil {
		klog.Fatalf("HTTP API server error: %v", err)
	}
}

// newEventRecorder wires a client-go EventBroadcaster the way
// k3s-io-k3s/pkg/util/api.go does for its own controllers: log events via
// klog and also publish them to the apiserver's Events API.
func newEventRecorder(clientset kubernetes.Interface, namespace string) record.EventRecorder {
	broadcaster := record.NewBroadcaster()
	broadcaster.StartLogging(func(format string, args ...interface{}) {
		klog.InfoS(fmt.Sprintf(format, args...))
	})
	broadcaster.StartRecordingToSink(&typedcorev1.EventSinkImpl{Interface: clientset.CoreV1().Events(namespace)})
	return broadcaster.NewRecorder(clientgoscheme.Scheme, corev1.EventSource{Component: "arha-controller"})
}
