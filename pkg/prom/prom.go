package prom

import (
	"fmt"
	"sync"

	xhttp "github.com/nimasrn/bigchat/pkg/http"
	"github.com/nimasrn/bigchat/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	SystemMessages = "message"
	SystemLedger   = "ledger"
	SystemRelay    = "relay"
	SystemEvents   = "events"
)

const (
	MetricMessageCreated        = "created_total"
	MetricMessageRejected       = "rejected_total"
	MetricMessageCreateDuration = "create_duration_seconds"
	MetricMessageMarkedRead     = "marked_read_total"

	MetricLedgerDebit  = "debit_total"
	MetricLedgerCredit = "credit_total"

	MetricRelaySessions         = "sessions"
	MetricRelayEvents           = "events_total"
	MetricRelayDeliveryFailures = "delivery_failures_total"
	MetricRelayDispatchDuration = "dispatch_duration_seconds"

	MetricEventsBacklog = "backlog"
)

const (
	TypeCounter      = "counter"
	TypeCounterVec   = "counterVec"
	TypeHistogram    = "histogram"
	TypeHistogramVec = "histogramVec"
	TypeGaugeVec     = "gaugeVec"
)

var (
	mu                  sync.RWMutex
	namespace           = "none"
	MetricSystemEnabled = false
	defaultLabels       prometheus.Labels

	counters      = make(map[string]prometheus.Counter)
	counterVecs   = make(map[string]*prometheus.CounterVec)
	gaugeVecs     = make(map[string]*prometheus.GaugeVec)
	histograms    = make(map[string]prometheus.Histogram)
	histogramVecs = make(map[string]*prometheus.HistogramVec)
)

// Create registers every metric the service reports. Until it is called all
// recording functions are no-ops.
func Create(host string, env string, nameSpace string) error {
	defaultLabels = prometheus.Labels{"env": env, "instance": host}
	if nameSpace != "" {
		namespace = nameSpace
	}

	var err error
	hasError := func(e error) {
		if err == nil && e != nil {
			err = e
		}
	}

	hasError(CreateMetric(TypeCounterVec, SystemMessages, MetricMessageCreated, "priority", "sender_type"))
	hasError(CreateMetric(TypeCounterVec, SystemMessages, MetricMessageRejected, "reason"))
	hasError(CreateMetric(TypeHistogramVec, SystemMessages, MetricMessageCreateDuration, "sender_type"))
	hasError(CreateMetric(TypeCounter, SystemMessages, MetricMessageMarkedRead))
	hasError(CreateMetric(TypeCounterVec, SystemLedger, MetricLedgerDebit, "result"))
	hasError(CreateMetric(TypeCounter, SystemLedger, MetricLedgerCredit))
	hasError(CreateMetric(TypeGaugeVec, SystemRelay, MetricRelaySessions, "type"))
	hasError(CreateMetric(TypeCounterVec, SystemRelay, MetricRelayEvents, "event"))
	hasError(CreateMetric(TypeCounterVec, SystemRelay, MetricRelayDeliveryFailures, "reason"))
	hasError(CreateMetric(TypeHistogram, SystemRelay, MetricRelayDispatchDuration))
	hasError(CreateMetric(TypeGaugeVec, SystemEvents, MetricEventsBacklog, "state"))

	mu.Lock()
	MetricSystemEnabled = err == nil
	mu.Unlock()
	return err
}

func CreateMetric(metricType, subsystem, name string, labels ...string) error {
	mu.Lock()
	defer mu.Unlock()

	key := subsystem + name
	var c prometheus.Collector
	switch metricType {
	case TypeCounter:
		m := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: name, ConstLabels: defaultLabels})
		counters[key], c = m, m
	case TypeCounterVec:
		m := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: name, ConstLabels: defaultLabels}, labels)
		counterVecs[key], c = m, m
	case TypeHistogram:
		m := prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: name, ConstLabels: defaultLabels, Buckets: prometheus.DefBuckets})
		histograms[key], c = m, m
	case TypeHistogramVec:
		m := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: name, ConstLabels: defaultLabels, Buckets: prometheus.DefBuckets}, labels)
		histogramVecs[key], c = m, m
	case TypeGaugeVec:
		m := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: name, ConstLabels: defaultLabels}, labels)
		gaugeVecs[key], c = m, m
	default:
		return fmt.Errorf("metric type %s is not defined", metricType)
	}
	return prometheus.Register(c)
}

func ListenAndServer(addr string, url string) {
	if url == "" {
		url = "/metrics"
	}
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.GET(url, fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()))
	logger.Info("[metrics-server] listening...", "addr", addr, "url", url)
	if err := s.ListenAndServe(addr); err != nil {
		logger.Error("[metrics-server] http listen error", "error", err)
	}
}

func enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return MetricSystemEnabled
}

func IncCounter(subsystem, name string) {
	AddCounter(subsystem, name, 1)
}

func AddCounter(subsystem, name string, number float64) {
	if !enabled() {
		return
	}
	if v, ok := counters[subsystem+name]; ok {
		v.Add(number)
		return
	}
	logger.Warn("[metrics-server] counter not found", "subsystem", subsystem, "name", name)
}

func IncCounterVec(subsystem, name string, labelValues ...string) {
	AddCounterVec(subsystem, name, 1, labelValues...)
}

func AddCounterVec(subsystem, name string, num float64, labelValues ...string) {
	if !enabled() {
		return
	}
	if v, ok := counterVecs[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Add(num)
		return
	}
	logger.Warn("[metrics-server] counter vec not found", "subsystem", subsystem, "name", name)
}

func AddGaugeVec(subsystem, name string, num float64, labelValues ...string) {
	if !enabled() {
		return
	}
	if v, ok := gaugeVecs[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Add(num)
		return
	}
	logger.Warn("[metrics-server] gauge not found", "subsystem", subsystem, "name", name)
}

func SetGaugeVec(subsystem, name string, num float64, labelValues ...string) {
	if !enabled() {
		return
	}
	if v, ok := gaugeVecs[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Set(num)
		return
	}
	logger.Warn("[metrics-server] gauge not found", "subsystem", subsystem, "name", name)
}

func AddHistogram(subsystem, name string, number float64) {
	if !enabled() {
		return
	}
	if v, ok := histograms[subsystem+name]; ok {
		v.Observe(number)
		return
	}
	logger.Warn("[metrics-server] histogram not found", "subsystem", subsystem, "name", name)
}

func AddHistogramVec(subsystem, name string, number float64, labelValues ...string) {
	if !enabled() {
		return
	}
	if v, ok := histogramVecs[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Observe(number)
		return
	}
	logger.Warn("[metrics-server] histogram vec not found", "subsystem", subsystem, "name", name)
}

// Domain shortcuts.

func MessageCreated(priority, senderType string, seconds float64) {
	IncCounterVec(SystemMessages, MetricMessageCreated, priority, senderType)
	AddHistogramVec(SystemMessages, MetricMessageCreateDuration, seconds, senderType)
}

func MessageRejected(reason string) {
	IncCounterVec(SystemMessages, MetricMessageRejected, reason)
}

func MessagesMarkedRead(n int) {
	AddCounter(SystemMessages, MetricMessageMarkedRead, float64(n))
}

func LedgerDebit(result string) {
	IncCounterVec(SystemLedger, MetricLedgerDebit, result)
}

func LedgerCredit() {
	IncCounter(SystemLedger, MetricLedgerCredit)
}

func RelaySessionDelta(sessionType string, delta float64) {
	AddGaugeVec(SystemRelay, MetricRelaySessions, delta, sessionType)
}

func RelayEvent(event string) {
	IncCounterVec(SystemRelay, MetricRelayEvents, event)
}

func RelayDeliveryFailure(reason string) {
	IncCounterVec(SystemRelay, MetricRelayDeliveryFailures, reason)
}

func RelayDispatchDuration(seconds float64) {
	AddHistogram(SystemRelay, MetricRelayDispatchDuration, seconds)
}

func EventsBacklog(length, pending int64) {
	SetGaugeVec(SystemEvents, MetricEventsBacklog, float64(length), "stored")
	SetGaugeVec(SystemEvents, MetricEventsBacklog, float64(pending), "pending")
}
