package kubernetes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	clientset "k8s.io/client-go/kubernetes"

	"github.com/inelson/podpulse/internal/models"
)

var (
	ErrClientNotConfigured = errors.New("kubernetes client not configured")
	ErrPodList             = errors.New("pod list failed")
	ErrMetricsUnavailable  = errors.New("metrics api unavailable")
	ErrUsageParse          = errors.New("malformed usage value")
)

// PodMetricsResource is the metrics-server resource listed for per-pod usage.
var PodMetricsResource = schema.GroupVersionResource{
	Group:    "metrics.k8s.io",
	Version:  "v1beta1",
	Resource: "pods",
}

// SnapshotSource supplies the fallback snapshot when a fetch cannot complete.
type SnapshotSource interface {
	Load() *models.Snapshot
}

type Config struct {
	Namespace  string
	Kubeconfig string
	Timeout    time.Duration
}

// Fetcher lists pods and their usage from the cluster and turns them into
// snapshots. It never fails: any fetch-level error yields the cached snapshot.
type Fetcher struct {
	pods      clientset.Interface
	metrics   dynamic.Interface
	namespace string
	timeout   time.Duration
	fallback  SnapshotSource
	logger    *slog.Logger
	degraded  sync.Once
	now       func() time.Time
}

// New loads cluster credentials and builds a Fetcher. Callers that get an
// error can still serve with NewWithClients(nil, nil, ...).
func New(cfg Config, fallback SnapshotSource, logger *slog.Logger) (*Fetcher, error) {
	restConfig, err := LoadConfig(cfg.Kubeconfig)
	if err != nil {
		return nil, err
	}
	cs, dyn, err := NewClients(restConfig)
	if err != nil {
		return nil, err
	}
	return NewWithClients(cs, dyn, cfg, fallback, logger), nil
}

// NewWithClients builds a Fetcher from existing clients. A nil pods client
// puts the fetcher in permanent degraded mode; a nil metrics client only
// disables usage data.
func NewWithClients(pods clientset.Interface, metrics dynamic.Interface, cfg Config, fallback SnapshotSource, logger *slog.Logger) *Fetcher {
	ns := cfg.Namespace
	if ns == "" {
		ns = metav1.NamespaceDefault
	}
	return &Fetcher{
		pods:      pods,
		metrics:   metrics,
		namespace: ns,
		timeout:   cfg.Timeout,
		fallback:  fallback,
		logger:    logger,
		now:       time.Now,
	}
}

func (f *Fetcher) Configured() bool {
	return f.pods != nil
}

func (f *Fetcher) Namespace() string {
	return f.namespace
}

// Fetch returns a fresh snapshot, or the fallback snapshot when the client is
// not configured or the pod list fails.
func (f *Fetcher) Fetch(ctx context.Context) *models.Snapshot {
	snap, err := f.fetch(ctx)
	if err == nil {
		return snap
	}
	if errors.Is(err, ErrClientNotConfigured) {
		f.degraded.Do(func() {
			f.logger.Warn("kubernetes not configured, serving cached data")
		})
	} else {
		f.logger.Error("pod fetch failed, serving cached data", "namespace", f.namespace, "error", err)
	}
	return f.fallback.Load()
}

func (f *Fetcher) fetch(ctx context.Context) (*models.Snapshot, error) {
	if f.pods == nil {
		return nil, ErrClientNotConfigured
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	podList, err := f.pods.CoreV1().Pods(f.namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPodList, err)
	}

	usage, err := f.listUsage(ctx)
	if err != nil {
		f.logger.Warn("metrics api not available, usage will be N/A", "namespace", f.namespace, "error", err)
		usage = map[string]podUsage{}
	} else {
		f.logger.Debug("fetched pod metrics", "pods", len(usage))
	}

	entries := make([]models.PodEntry, 0, len(podList.Items))
	for i := range podList.Items {
		pod := &podList.Items[i]
		entry := models.PodEntry{
			Name:   pod.Name,
			Status: string(pod.Status.Phase),
			IP:     pod.Status.PodIP,
			CPU:    models.NotAvailable,
			Memory: models.NotAvailable,
		}
		if entry.IP == "" {
			entry.IP = models.NotAvailable
		}

		if rec, ok := usage[pod.Name]; ok {
			err := rec.err
			if err == nil {
				var cpu, memory string
				cpu, memory, err = sumUsage(rec.containers)
				if err == nil {
					entry.CPU, entry.Memory = cpu, memory
				}
			}
			if err != nil {
				f.logger.Warn("failed to parse pod metrics", "pod", pod.Name, "error", err)
			}
		}
		entries = append(entries, entry)
	}

	f.logger.Info("fetched pods", "namespace", f.namespace, "pods", len(entries))
	return models.NewSnapshot(entries, f.now()), nil
}

func (f *Fetcher) listUsage(ctx context.Context) (map[string]podUsage, error) {
	if f.metrics == nil {
		return nil, ErrMetricsUnavailable
	}
	list, err := f.metrics.Resource(PodMetricsResource).Namespace(f.namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMetricsUnavailable, err)
	}
	return usageByPod(list.Items), nil
}
