package kubernetes

import (
	"fmt"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

type containerUsage struct {
	CPU    string
	Memory string
}

// podUsage is the raw usage record for one pod as returned by the metrics API.
// err is set when the object could not be read into container usages.
type podUsage struct {
	containers []containerUsage
	err        error
}

// usageByPod indexes PodMetrics objects by pod name. Objects without a
// containers field are skipped, leaving the pod without a usage record.
func usageByPod(items []unstructured.Unstructured) map[string]podUsage {
	result := make(map[string]podUsage, len(items))
	for i := range items {
		item := &items[i]
		raw, found, err := unstructured.NestedFieldNoCopy(item.Object, "containers")
		if err != nil {
			result[item.GetName()] = podUsage{err: fmt.Errorf("%w: %v", ErrUsageParse, err)}
			continue
		}
		if !found {
			continue
		}
		containers, err := readContainers(raw)
		result[item.GetName()] = podUsage{containers: containers, err: err}
	}
	return result
}

func readContainers(raw interface{}) ([]containerUsage, error) {
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: containers is %T", ErrUsageParse, raw)
	}
	containers := make([]containerUsage, 0, len(list))
	for i, entry := range list {
		obj, ok := entry.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: container %d is %T", ErrUsageParse, i, entry)
		}
		cpu, found, err := unstructured.NestedString(obj, "usage", "cpu")
		if err != nil || !found {
			return nil, fmt.Errorf("%w: container %d has no cpu usage", ErrUsageParse, i)
		}
		memory, found, err := unstructured.NestedString(obj, "usage", "memory")
		if err != nil || !found {
			return nil, fmt.Errorf("%w: container %d has no memory usage", ErrUsageParse, i)
		}
		containers = append(containers, containerUsage{CPU: cpu, Memory: memory})
	}
	return containers, nil
}

// sumUsage totals container usage and formats it for display. Any malformed
// value fails the whole pod.
func sumUsage(containers []containerUsage) (cpu, memory string, err error) {
	var nanocores, kibibytes int64
	for _, c := range containers {
		n, err := ParseNanocores(c.CPU)
		if err != nil {
			return "", "", err
		}
		k, err := ParseKibibytes(c.Memory)
		if err != nil {
			return "", "", err
		}
		nanocores += n
		kibibytes += k
	}
	return FormatCores(nanocores), FormatMebibytes(kibibytes), nil
}

// ParseNanocores parses a metrics-server cpu value such as "250000000n".
func ParseNanocores(s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSuffix(s, "n"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: cpu %q", ErrUsageParse, s)
	}
	return v, nil
}

// ParseKibibytes parses a metrics-server memory value such as "20480Ki".
func ParseKibibytes(s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSuffix(s, "Ki"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: memory %q", ErrUsageParse, s)
	}
	return v, nil
}

func FormatCores(nanocores int64) string {
	return fmt.Sprintf("%.2f cores", float64(nanocores)/1e9)
}

func FormatMebibytes(kibibytes int64) string {
	return fmt.Sprintf("%.2f Mi", float64(kibibytes)/1024)
}
