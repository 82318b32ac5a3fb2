package api

type HealthResponse struct {
	Status      string            `json:"status"`
	Version     string            `json:"version,omitempty"`
	Services    map[string]string `json:"services,omitempty"`
	Namespace   string            `json:"namespace,omitempty"`
	PodCount    int               `json:"podCount"`
	Subscribers int               `json:"subscribers"`
	LastRefresh string            `json:"lastRefresh"`
}
