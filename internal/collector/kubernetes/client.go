package kubernetes

import (
	"fmt"

	"k8s.io/client-go/dynamic"
	clientset "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// LoadConfig resolves cluster credentials. The in-cluster service account is
// tried first, then the kubeconfig at path (or the recommended home file).
func LoadConfig(path string) (*rest.Config, error) {
	config, err := rest.InClusterConfig()
	if err == nil {
		return config, nil
	}
	if path == "" {
		path = clientcmd.RecommendedHomeFile
	}
	config, err = clientcmd.BuildConfigFromFlags("", path)
	if err != nil {
		return nil, fmt.Errorf("failed to build k8s config: %w", err)
	}
	return config, nil
}

// NewClients builds the typed clientset used for pod listing and the dynamic
// client used for the metrics.k8s.io API.
func NewClients(config *rest.Config) (clientset.Interface, dynamic.Interface, error) {
	cs, err := clientset.NewForConfig(config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create k8s clientset: %w", err)
	}
	dyn, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create k8s dynamic client: %w", err)
	}
	return cs, dyn, nil
}
