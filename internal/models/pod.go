package models

import "time"

// NotAvailable is substituted for any field whose source is missing or unreadable.
const NotAvailable = "N/A"

// PodEntry is one row of a snapshot. Values are preformatted for display.
type PodEntry struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	IP     string `json:"ip"`
	CPU    string `json:"cpu"`
	Memory string `json:"memory"`
}

// Snapshot is the complete pod listing produced by one fetch. A Snapshot is
// never mutated after it has been handed to the cache.
type Snapshot struct {
	Pods      []PodEntry `json:"pods"`
	PodCount  int        `json:"pod_count"`
	FetchedAt time.Time  `json:"-"`
}

func NewSnapshot(pods []PodEntry, fetchedAt time.Time) *Snapshot {
	if pods == nil {
		pods = []PodEntry{}
	}
	return &Snapshot{
		Pods:      pods,
		PodCount:  len(pods),
		FetchedAt: fetchedAt,
	}
}

// EmptySnapshot is the value served before any fetch has succeeded.
func EmptySnapshot() *Snapshot {
	return NewSnapshot(nil, time.Time{})
}
