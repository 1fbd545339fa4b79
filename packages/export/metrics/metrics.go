// Package metrics exports the outcome of a run in the Prometheus exposition
// format, to a node_exporter textfile or a Pushgateway.
package metrics

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/prometheus/common/expfmt"

	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
	"github.com/abdul-hamid-achik/apiregress/packages/core/runner"
)

// Namespace prefixes every metric name
const Namespace = "apiregress"

// caseDurationBuckets are tuned for single API calls
var caseDurationBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Collector holds the gauges of one run
type Collector struct {
	registry     *prometheus.Registry
	cases        *prometheus.GaugeVec
	caseDuration *prometheus.HistogramVec
	anomalies    *prometheus.GaugeVec
	runDuration  prometheus.Gauge
	runSuccess   prometheus.Gauge
	runAborted   prometheus.Gauge
	lastRun      prometheus.Gauge
	info         *prometheus.GaugeVec
}

// NewCollector initializes a registry with the run metrics
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		cases: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: Namespace, Name: "cases", Help: "Test cases of the last run by classification"},
			[]string{"classification"},
		),
		caseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "case_duration_seconds",
				Help:      "Response time of the executed test cases",
				Buckets:   caseDurationBuckets,
			},
			[]string{"classification"},
		),
		anomalies: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: Namespace, Name: "anomalies", Help: "Execution records that could not be attributed"},
			[]string{"kind"},
		),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Name: "run_duration_seconds", Help: "Wall time of the last run",
		}),
		runSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Name: "run_success", Help: "1 if every case of the last run passed",
		}),
		runAborted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Name: "run_aborted", Help: "1 if the last run was aborted by a fatal error",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Name: "last_run_timestamp_seconds", Help: "Start time of the last run",
		}),
		info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: Namespace, Name: "run_info", Help: "Collection and source of the last run"},
			[]string{"collection", "source"},
		),
	}

	c.registry.MustRegister(c.cases, c.caseDuration, c.anomalies,
		c.runDuration, c.runSuccess, c.runAborted, c.lastRun, c.info)
	return c
}

// Gatherer exposes the registry
func (c *Collector) Gatherer() prometheus.Gatherer {
	return c.registry
}

// Observe records a run. res may be partial when runErr aborted the run.
func (c *Collector) Observe(res *runner.Result, runErr error) {
	for _, cl := range []model.Classification{model.Pass, model.Fail, model.Error, model.NoResult} {
		c.cases.WithLabelValues(classLabel(cl)).Set(0)
	}
	for _, kind := range []model.AnomalyKind{model.AnomalyOrphan, model.AnomalyDuplicate} {
		c.anomalies.WithLabelValues(string(kind)).Set(0)
	}

	aborted := 0.0
	if runErr != nil {
		aborted = 1
	}
	c.runAborted.Set(aborted)

	if res == nil {
		c.runSuccess.Set(0)
		return
	}

	c.runDuration.Set(res.Duration.Seconds())
	if !res.StartedAt.IsZero() {
		c.lastRun.Set(float64(res.StartedAt.UnixNano()) / float64(time.Second))
	}
	c.info.WithLabelValues(res.CollectionName, res.Source).Set(1)

	success := 0.0
	if runErr == nil && res.Counts().OK() {
		success = 1
	}
	c.runSuccess.Set(success)

	if res.Run == nil {
		return
	}
	for _, r := range res.Run.Results() {
		label := classLabel(r.Classification)
		c.cases.WithLabelValues(label).Inc()
		if r.Duration > 0 {
			c.caseDuration.WithLabelValues(label).Observe(r.Duration.Seconds())
		}
	}
	for _, a := range res.Run.Anomalies() {
		c.anomalies.WithLabelValues(string(a.Kind)).Inc()
	}
}

// WriteTextfile writes the metrics for the node_exporter textfile collector.
// The file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	families, err := c.registry.Gather()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range families {
		if err := enc.Encode(family); err != nil {
			return err
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Push replaces the metrics of job on a Pushgateway
func (c *Collector) Push(ctx context.Context, url, job string, client *http.Client) error {
	p := push.New(strings.TrimSuffix(url, "/"), job).Gatherer(c.registry)
	if client != nil {
		p = p.Client(client)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}

func classLabel(c model.Classification) string {
	switch c {
	case model.Pass:
		return "pass"
	case model.Fail:
		return "fail"
	case model.Error:
		return "error"
	default:
		return "no_result"
	}
}
