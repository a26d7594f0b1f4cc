// Package metrics exposes session traffic and switch pipeline state as
// Prometheus metrics.
package metrics

import (
	"strconv"

	"github.com/jackyang74/oftest/ofp4"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "oftest"

// Session counts messages and transaction outcomes. It satisfies
// session.Observer.
type Session struct {
	MessagesIn   *prometheus.CounterVec
	MessagesOut  *prometheus.CounterVec
	Transactions *prometheus.CounterVec
}

func NewSession(reg prometheus.Registerer) (*Session, error) {
	m := &Session{
		MessagesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "messages_received_total",
			Help:      "Messages received on control sessions, by message type.",
		}, []string{"type"}),
		MessagesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "messages_sent_total",
			Help:      "Messages sent on control sessions, by message type.",
		}, []string{"type"}),
		Transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "transactions_total",
			Help:      "Completed request/reply transactions, by request type and outcome.",
		}, []string{"type", "outcome"}),
	}
	for _, c := range []prometheus.Collector{m.MessagesIn, m.MessagesOut, m.Transactions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Session) MessageIn(mtype uint8) {
	m.MessagesIn.WithLabelValues(ofp4.TypeName(mtype)).Inc()
}

func (m *Session) MessageOut(mtype uint8) {
	m.MessagesOut.WithLabelValues(ofp4.TypeName(mtype)).Inc()
}

func (m *Session) Transaction(mtype uint8, outcome string) {
	m.Transactions.WithLabelValues(ofp4.TypeName(mtype), outcome).Inc()
}

// Source is the switch state read at scrape time.
type Source interface {
	TableStats() []ofp4.TableStats
	PortStats(no uint32) ([]ofp4.PortStats, error)
}

var (
	flowEntriesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "table", "flow_entries"),
		"Active flow entries per table.",
		[]string{"table_id"}, nil)
	lookupsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "table", "lookups_total"),
		"Packets looked up per table.",
		[]string{"table_id"}, nil)
	matchesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "table", "matches_total"),
		"Packets that hit an entry per table.",
		[]string{"table_id"}, nil)
	portPacketsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "port", "packets_total"),
		"Packets per port and direction.",
		[]string{"port", "direction"}, nil)
	portBytesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "port", "bytes_total"),
		"Bytes per port and direction.",
		[]string{"port", "direction"}, nil)
	portDroppedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "port", "dropped_total"),
		"Dropped packets per port and direction.",
		[]string{"port", "direction"}, nil)
)

// Pipeline collects table and port counters from a Source on every
// scrape.
type Pipeline struct {
	source Source
}

func NewPipeline(source Source) *Pipeline {
	return &Pipeline{source: source}
}

func (c *Pipeline) Describe(ch chan<- *prometheus.Desc) {
	ch <- flowEntriesDesc
	ch <- lookupsDesc
	ch <- matchesDesc
	ch <- portPacketsDesc
	ch <- portBytesDesc
	ch <- portDroppedDesc
}

func (c *Pipeline) Collect(ch chan<- prometheus.Metric) {
	for _, t := range c.source.TableStats() {
		id := strconv.Itoa(int(t.TableId))
		ch <- prometheus.MustNewConstMetric(flowEntriesDesc, prometheus.GaugeValue, float64(t.ActiveCount), id)
		ch <- prometheus.MustNewConstMetric(lookupsDesc, prometheus.CounterValue, float64(t.LookupCount), id)
		ch <- prometheus.MustNewConstMetric(matchesDesc, prometheus.CounterValue, float64(t.MatchedCount), id)
	}
	ports, err := c.source.PortStats(ofp4.OFPP_ANY)
	if err != nil {
		return
	}
	for _, p := range ports {
		no := strconv.FormatUint(uint64(p.PortNo), 10)
		ch <- prometheus.MustNewConstMetric(portPacketsDesc, prometheus.CounterValue, float64(p.RxPackets), no, "rx")
		ch <- prometheus.MustNewConstMetric(portPacketsDesc, prometheus.CounterValue, float64(p.TxPackets), no, "tx")
		ch <- prometheus.MustNewConstMetric(portBytesDesc, prometheus.CounterValue, float64(p.RxBytes), no, "rx")
		ch <- prometheus.MustNewConstMetric(portBytesDesc, prometheus.CounterValue, float64(p.TxBytes), no, "tx")
		ch <- prometheus.MustNewConstMetric(portDroppedDesc, prometheus.CounterValue, float64(p.RxDropped), no, "rx")
		ch <- prometheus.MustNewConstMetric(portDroppedDesc, prometheus.CounterValue, float64(p.TxDropped), no, "tx")
	}
}
