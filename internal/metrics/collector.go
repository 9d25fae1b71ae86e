package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sydlexius/camwatch/internal/scanner"
)

// Fleet is the scanner state the collector reads.
type Fleet interface {
	Snapshot() *scanner.Snapshot
	State() scanner.State
	Stats() scanner.Stats
	MetadataCount() int
}

var (
	cameraUpDesc = prometheus.NewDesc(
		"camwatch_camera_up", "Whether a public camera was online in the last scan.", []string{"code"}, nil,
	)
	camerasDesc = prometheus.NewDesc(
		"camwatch_cameras", "Cameras in the published snapshot grouped by status.", []string{"status"}, nil,
	)
	metadataDesc = prometheus.NewDesc(
		"camwatch_metadata_records", "Camera metadata records loaded in memory.", nil, nil,
	)
	scanningDesc = prometheus.NewDesc(
		"camwatch_scan_in_progress", "Whether a scan is running.", nil, nil,
	)
	timedOutDesc = prometheus.NewDesc(
		"camwatch_last_scan_timed_out", "Whether the last scan hit its deadline.", nil, nil,
	)
	lastScanDesc = prometheus.NewDesc(
		"camwatch_last_scan_timestamp_seconds", "Completion time of the last published scan.", nil, nil,
	)
	nextScanDesc = prometheus.NewDesc(
		"camwatch_next_scan_timestamp_seconds", "When the scheduler will scan next.", nil, nil,
	)
	scansDesc = prometheus.NewDesc(
		"camwatch_scans_total", "Published scans.", nil, nil,
	)
	scanTimeoutsDesc = prometheus.NewDesc(
		"camwatch_scan_timeouts_total", "Scans that hit their deadline.", nil, nil,
	)
	probesDesc = prometheus.NewDesc(
		"camwatch_probes_total", "Upstream probes performed.", nil, nil,
	)
	probesInFlightDesc = prometheus.NewDesc(
		"camwatch_probes_in_flight", "Probes currently running.", nil, nil,
	)
	requestsDesc = prometheus.NewDesc(
		"camwatch_http_requests_total", "HTTP requests served.", nil, nil,
	)
	requestErrorsDesc = prometheus.NewDesc(
		"camwatch_http_request_errors_total", "HTTP requests answered with a 5xx status.", nil, nil,
	)
	proxyDesc = prometheus.NewDesc(
		"camwatch_proxy_requests_total", "Image proxy requests by outcome.", []string{"outcome"}, nil,
	)
)

// Collector exports fleet state and request counters.
type Collector struct {
	fleet    Fleet
	recorder *Recorder
}

// NewCollector creates a Collector.
func NewCollector(fleet Fleet, recorder *Recorder) *Collector {
	return &Collector{fleet: fleet, recorder: recorder}
}

// NewRegistry returns a registry holding the collector plus the standard
// process and Go runtime collectors.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		cameraUpDesc, camerasDesc, metadataDesc, scanningDesc, timedOutDesc,
		lastScanDesc, nextScanDesc, scansDesc, scanTimeoutsDesc, probesDesc,
		probesInFlightDesc, requestsDesc, requestErrorsDesc, proxyDesc,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.fleet.Snapshot()
	// Per-camera series are public, so restricted cameras only count in the totals.
	for _, r := range snap.Records {
		if !r.Public() {
			continue
		}
		ch <- prometheus.MustNewConstMetric(cameraUpDesc, prometheus.GaugeValue, boolFloat(r.Online()), string(r.Code))
	}
	ch <- prometheus.MustNewConstMetric(camerasDesc, prometheus.GaugeValue, float64(snap.Online), "online")
	ch <- prometheus.MustNewConstMetric(camerasDesc, prometheus.GaugeValue, float64(len(snap.Records)-snap.Online), "offline")
	ch <- prometheus.MustNewConstMetric(metadataDesc, prometheus.GaugeValue, float64(c.fleet.MetadataCount()))

	st := c.fleet.State()
	ch <- prometheus.MustNewConstMetric(scanningDesc, prometheus.GaugeValue, boolFloat(st.IsScanning))
	ch <- prometheus.MustNewConstMetric(timedOutDesc, prometheus.GaugeValue, boolFloat(st.LastScanTimedOut))
	if !snap.ScannedAt.IsZero() {
		ch <- prometheus.MustNewConstMetric(lastScanDesc, prometheus.GaugeValue, float64(snap.ScannedAt.Unix()))
	}
	if !st.NextScanAt.IsZero() {
		ch <- prometheus.MustNewConstMetric(nextScanDesc, prometheus.GaugeValue, float64(st.NextScanAt.Unix()))
	}

	stats := c.fleet.Stats()
	ch <- prometheus.MustNewConstMetric(scansDesc, prometheus.CounterValue, float64(stats.Scans))
	ch <- prometheus.MustNewConstMetric(scanTimeoutsDesc, prometheus.CounterValue, float64(stats.Timeouts))
	ch <- prometheus.MustNewConstMetric(probesDesc, prometheus.CounterValue, float64(stats.Probes))
	ch <- prometheus.MustNewConstMetric(probesInFlightDesc, prometheus.GaugeValue, float64(stats.InFlight))

	sum := c.recorder.Summary()
	ch <- prometheus.MustNewConstMetric(requestsDesc, prometheus.CounterValue, float64(sum.RequestCount))
	ch <- prometheus.MustNewConstMetric(requestErrorsDesc, prometheus.CounterValue, float64(sum.ErrorsCount))
	ch <- prometheus.MustNewConstMetric(proxyDesc, prometheus.CounterValue, float64(sum.ProxySuccesses), "success")
	ch <- prometheus.MustNewConstMetric(proxyDesc, prometheus.CounterValue, float64(sum.ProxyFailures), "failure")
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
