package cas

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cafcPrometheusMetrics sync.Once

	cafcSizeBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "buildbarn",
			Subsystem: "cafc",
			Name:      "size_bytes",
			Help:      "Total number of bytes occupied by blobs and directory trees",
		},
		[]string{"name"})
	cafcEntryCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "buildbarn",
			Subsystem: "cafc",
			Name:      "entry_count",
			Help:      "Number of storage entries, referenced or not",
		},
		[]string{"name"})
	cafcUnreferencedEntryCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "buildbarn",
			Subsystem: "cafc",
			Name:      "unreferenced_entry_count",
			Help:      "Number of entries eligible for eviction",
		},
		[]string{"name"})
	cafcDirectoryStorageCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "buildbarn",
			Subsystem: "cafc",
			Name:      "directory_storage_count",
			Help:      "Number of materialized directory trees currently registered",
		},
		[]string{"name"})
	cafcEvictedCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buildbarn",
			Subsystem: "cafc",
			Name:      "evicted_total",
			Help:      "Lifetime number of evicted entries",
		},
		[]string{"name"})
	cafcEvictedSizeBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buildbarn",
			Subsystem: "cafc",
			Name:      "evicted_size_bytes_total",
			Help:      "Lifetime number of bytes freed through eviction",
		},
		[]string{"name"})
	cafcPutDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "buildbarn",
			Subsystem: "cafc",
			Name:      "put_duration_seconds",
			Help:      "Amount of time spent ingesting a single blob",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"name"})
)

// registerMetrics lazily registers this package's Prometheus
// collectors, matching the convention in pkg/blobstore/local's
// localBlobAccessPrometheusMetrics: metrics are declared at package
// scope and registered exactly once regardless of how many FileCache
// instances are constructed.
func registerMetrics() {
	cafcPrometheusMetrics.Do(func() {
		prometheus.MustRegister(cafcSizeBytes)
		prometheus.MustRegister(cafcEntryCount)
		prometheus.MustRegister(cafcUnreferencedEntryCount)
		prometheus.MustRegister(cafcDirectoryStorageCount)
		prometheus.MustRegister(cafcEvictedCount)
		prometheus.MustRegister(cafcEvictedSizeBytes)
		prometheus.MustRegister(cafcPutDurationSeconds)
	})
}

// CacheStats is a point-in-time snapshot of a FileCache's observability
// counters.
type CacheStats struct {
	SizeBytes              int64
	EntryCount             int
	UnreferencedEntryCount int
	DirectoryStorageCount  int
	EvictedCount           uint64
	EvictedSizeBytes       uint64
}

// GetCacheStats returns a point-in-time snapshot of the cache's
// observability counters in one call, and publishes the same values
// to this instance's Prometheus gauges.
func (fc *FileCache) GetCacheStats() CacheStats {
	registerMetrics()

	stats := CacheStats{
		SizeBytes:              fc.Size(),
		EntryCount:             fc.EntryCount(),
		UnreferencedEntryCount: fc.UnreferencedEntryCount(),
		DirectoryStorageCount:  fc.DirectoryStorageCount(),
		EvictedCount:           fc.GetEvictedCount(),
		EvictedSizeBytes:       fc.GetEvictedSize(),
	}

	cafcSizeBytes.WithLabelValues(fc.name).Set(float64(stats.SizeBytes))
	cafcEntryCount.WithLabelValues(fc.name).Set(float64(stats.EntryCount))
	cafcUnreferencedEntryCount.WithLabelValues(fc.name).Set(float64(stats.UnreferencedEntryCount))
	cafcDirectoryStorageCount.WithLabelValues(fc.name).Set(float64(stats.DirectoryStorageCount))
	cafcEvictedCount.WithLabelValues(fc.name).Add(0)
	cafcEvictedSizeBytes.WithLabelValues(fc.name).Add(0)

	return stats
}
