package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

// PhyCollector bundles the Prometheus metrics of every simulated PHY. Each
// series is labelled with the owning node.
type PhyCollector struct {
	gatherer prometheus.Gatherer

	RxOk             *prometheus.CounterVec
	RxDrops          *prometheus.CounterVec
	Tx               *prometheus.CounterVec
	StateTransitions *prometheus.CounterVec
	ChannelSwitches  *prometheus.CounterVec
	RxSnr            *prometheus.HistogramVec
}

// NewPhyCollector registers PHY metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewPhyCollector(reg prometheus.Registerer) (*PhyCollector, error) {
	reg, gatherer := registry(reg)

	rxOk, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "phy_rx_ok_total",
		Help: "Frames received without error, labelled by node.",
	}, []string{"node"}), "phy_rx_ok_total")
	if err != nil {
		return nil, err
	}
	drops, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "phy_rx_drops_total",
		Help: "Frames dropped on arrival or after reception, labelled by node and reason.",
	}, []string{"node", "reason"}), "phy_rx_drops_total")
	if err != nil {
		return nil, err
	}
	tx, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "phy_tx_total",
		Help: "Frames transmitted, labelled by node.",
	}, []string{"node"}), "phy_tx_total")
	if err != nil {
		return nil, err
	}
	transitions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "phy_state_transitions_total",
		Help: "PHY state machine transitions, labelled by node and from/to state.",
	}, []string{"node", "from", "to"}), "phy_state_transitions_total")
	if err != nil {
		return nil, err
	}
	switches, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "phy_channel_switches_total",
		Help: "Completed channel switches, labelled by node.",
	}, []string{"node"}), "phy_channel_switches_total")
	if err != nil {
		return nil, err
	}
	snr, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "phy_rx_snr_db",
		Help:    "SNR in dB of successfully received frames.",
		Buckets: prometheus.LinearBuckets(-5, 5, 10),
	}, []string{"node"}), "phy_rx_snr_db")
	if err != nil {
		return nil, err
	}

	return &PhyCollector{
		gatherer:         gatherer,
		RxOk:             rxOk,
		RxDrops:          drops,
		Tx:               tx,
		StateTransitions: transitions,
		ChannelSwitches:  switches,
		RxSnr:            snr,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PhyCollector) Handler() http.Handler { return Handler(c.gatherer) }

// ForNode returns the recorder one PHY reports through.
func (c *PhyCollector) ForNode(node string) *PhyRecorder {
	return &PhyRecorder{c: c, node: node}
}

// PhyRecorder feeds one node's PHY events into a PhyCollector. A nil
// recorder or collector discards everything.
type PhyRecorder struct {
	c    *PhyCollector
	node string
}

func (r *PhyRecorder) ObserveRxOk(snrDb float64) {
	if r == nil || r.c == nil {
		return
	}
	r.c.RxOk.WithLabelValues(r.node).Inc()
	r.c.RxSnr.WithLabelValues(r.node).Observe(snrDb)
}

func (r *PhyRecorder) IncRxDrop(reason string) {
	if r == nil || r.c == nil {
		return
	}
	r.c.RxDrops.WithLabelValues(r.node, reason).Inc()
}

func (r *PhyRecorder) IncTx() {
	if r == nil || r.c == nil {
		return
	}
	r.c.Tx.WithLabelValues(r.node).Inc()
}

func (r *PhyRecorder) IncStateTransition(from, to string) {
	if r == nil || r.c == nil {
		return
	}
	r.c.StateTransitions.WithLabelValues(r.node, from, to).Inc()
}

func (r *PhyRecorder) IncChannelSwitch() {
	if r == nil || r.c == nil {
		return
	}
	r.c.ChannelSwitches.WithLabelValues(r.node).Inc()
}
