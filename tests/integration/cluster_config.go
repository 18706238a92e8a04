package integration

import (
	"os"
	"strings"
)

// ClusterConfig holds configuration for in-cluster testing
type ClusterConfig struct {
	RedisURL    string
	IsInCluster bool
	Namespace   string
}

// SetupInClusterEnvironment configures the test environment. Redis is
// optional: without INTEGRATION_REDIS_URL the tests run against miniredis.
func SetupInClusterEnvironment() *ClusterConfig {
	config := &ClusterConfig{
		IsInCluster: isRunningInCluster(),
		Namespace:   getNamespace(),
		RedisURL:    os.Getenv("INTEGRATION_REDIS_URL"),
	}

	if config.IsInCluster && config.RedisURL == "" {
		config.RedisURL = "redis://mission-dispatch-redis." + config.Namespace + ".svc:6379/15"
	}

	return config
}

// isRunningInCluster detects if we're running inside a Kubernetes cluster
func isRunningInCluster() bool {
	if _, err := os.Stat("/var/run/secrets/kubernetes.io/serviceaccount/token"); err == nil {
		return true
	}
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

// getNamespace returns the current Kubernetes namespace
func getNamespace() string {
	if data, err := os.ReadFile("/var/run/secrets/kubernetes.io/serviceaccount/namespace"); err == nil {
		return strings.TrimSpace(string(data))
	}
	if ns := os.Getenv("NAMESPACE"); ns != "" {
		return ns
	}
	return "mission-dispatch"
}
