// Package metrics exports downloader counters as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/meigma/imgload"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "imgload"

// StatsSource supplies counter snapshots. *imgload.Downloader implements it.
type StatsSource interface {
	Stats() imgload.Stats
}

// Collector is a prometheus.Collector reading a StatsSource at scrape time.
type Collector struct {
	src StatsSource

	cacheHits    *prometheus.Desc
	cacheMisses  *prometheus.Desc
	demotions    *prometheus.Desc
	reclaimed    *prometheus.Desc
	entries      *prometheus.Desc
	started      *prometheus.Desc
	succeeded    *prometheus.Desc
	failures     *prometheus.Desc
	cancelled    *prometheus.Desc
	superseded   *prometheus.Desc
	deduplicated *prometheus.Desc
	stale        *prometheus.Desc
	inFlight     *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// Option configures a Collector.
type Option func(*options)

type options struct {
	namespace   string
	constLabels prometheus.Labels
}

// WithNamespace replaces [DefaultNamespace].
func WithNamespace(ns string) Option {
	return func(o *options) {
		o.namespace = ns
	}
}

// WithConstLabels attaches labels to every metric, e.g. to tell several
// downloaders apart.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(o *options) {
		o.constLabels = labels
	}
}

// NewCollector creates a Collector for src.
func NewCollector(src StatsSource, opts ...Option) *Collector {
	o := options{namespace: DefaultNamespace}
	for _, opt := range opts {
		opt(&o)
	}

	desc := func(subsystem, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(o.namespace, subsystem, name),
			help, labels, o.constLabels,
		)
	}

	return &Collector{
		src:          src,
		cacheHits:    desc("cache", "hits_total", "Cache hits by tier.", "tier"),
		cacheMisses:  desc("cache", "misses_total", "Cache lookups that found nothing."),
		demotions:    desc("cache", "demotions_total", "Entries demoted from the hot tier to the warm tier."),
		reclaimed:    desc("cache", "reclaimed_total", "Warm entries found reclaimed by the garbage collector."),
		entries:      desc("cache", "entries", "Current entries by tier.", "tier"),
		started:      desc("fetch", "started_total", "Fetches started."),
		succeeded:    desc("fetch", "succeeded_total", "Fetches that produced an image."),
		failures:     desc("fetch", "failures_total", "Failed fetches by kind.", "kind"),
		cancelled:    desc("fetch", "cancelled_total", "Fetches abandoned before their result was used."),
		superseded:   desc("download", "superseded_total", "Downloads cancelled by a newer request for the same target."),
		deduplicated: desc("download", "deduplicated_total", "Requests folded into an in-flight download."),
		stale:        desc("download", "stale_total", "Results cached but not applied because the target was rebound."),
		inFlight:     desc("download", "in_flight", "Downloads currently in flight."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.cacheHits, c.cacheMisses, c.demotions, c.reclaimed, c.entries,
		c.started, c.succeeded, c.failures, c.cancelled,
		c.superseded, c.deduplicated, c.stale, c.inFlight,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()

	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v int, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v), labels...)
	}

	counter(c.cacheHits, s.Cache.HotHits, "hot")
	counter(c.cacheHits, s.Cache.WarmHits, "warm")
	counter(c.cacheMisses, s.Cache.Misses)
	counter(c.demotions, s.Cache.Demotions)
	counter(c.reclaimed, s.Cache.Reclaimed)
	gauge(c.entries, s.HotEntries, "hot")
	gauge(c.entries, s.WarmEntries, "warm")

	counter(c.started, s.FetchesStarted)
	counter(c.succeeded, s.FetchesSucceeded)
	for kind, n := range s.Failures {
		counter(c.failures, n, kind.String())
	}
	counter(c.cancelled, s.Cancelled)

	counter(c.superseded, s.Superseded)
	counter(c.deduplicated, s.Deduplicated)
	counter(c.stale, s.Stale)
	gauge(c.inFlight, s.InFlight)
}
