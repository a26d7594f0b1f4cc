package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackyang74/oftest/ofp4"
)

func TestSession(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewSession(reg)
	require.NoError(t, err)

	m.MessageIn(ofp4.OFPT_HELLO)
	m.MessageIn(ofp4.OFPT_HELLO)
	m.MessageOut(ofp4.OFPT_FLOW_MOD)
	m.Transaction(ofp4.OFPT_BARRIER_REQUEST, "ok")
	m.Transaction(ofp4.OFPT_BARRIER_REQUEST, "timeout")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesIn.WithLabelValues("HELLO")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesOut.WithLabelValues("FLOW_MOD")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transactions.WithLabelValues("BARRIER_REQUEST", "timeout")))

	_, err = NewSession(reg)
	assert.Error(t, err, "registered twice")
}

type fakeSource struct {
	tables []ofp4.TableStats
	ports  []ofp4.PortStats
}

func (f fakeSource) TableStats() []ofp4.TableStats { return f.tables }

func (f fakeSource) PortStats(uint32) ([]ofp4.PortStats, error) { return f.ports, nil }

func TestPipeline(t *testing.T) {
	c := NewPipeline(fakeSource{
		tables: []ofp4.TableStats{
			{TableId: 0, ActiveCount: 2, LookupCount: 10, MatchedCount: 7},
			{TableId: 1},
		},
		ports: []ofp4.PortStats{{PortNo: 1, RxPackets: 4, TxDropped: 1}},
	})
	assert.Equal(t, 3*2+6, testutil.CollectAndCount(c))

	expected := `
# HELP oftest_table_flow_entries Active flow entries per table.
# TYPE oftest_table_flow_entries gauge
oftest_table_flow_entries{table_id="0"} 2
oftest_table_flow_entries{table_id="1"} 0
`
	assert.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "oftest_table_flow_entries"))

	expected = `
# HELP oftest_port_packets_total Packets per port and direction.
# TYPE oftest_port_packets_total counter
oftest_port_packets_total{direction="rx",port="1"} 4
oftest_port_packets_total{direction="tx",port="1"} 0
`
	assert.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "oftest_port_packets_total"))
}
