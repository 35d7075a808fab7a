package phy

import (
	"math"

	"github.com/signalsfoundry/vanet-simulator/internal/sched"
	"github.com/signalsfoundry/vanet-simulator/model"
)

// SpeedOfLight in metres per second.
const SpeedOfLight = 299792458.0

// Channel is the medium a PHY transmits on.
type Channel interface {
	Send(sender *Phy, pkt *Packet, txPowerDbm float64, v TxVector, preamble Preamble)
}

// Mobility yields the current position of a node.
type Mobility interface {
	Position() model.Position
}

type fixedPosition model.Position

func (f fixedPosition) Position() model.Position { return model.Position(f) }

// Fixed returns a Mobility that never moves.
func Fixed(p model.Position) Mobility { return fixedPosition(p) }

// PropagationLoss computes the received power of a signal.
type PropagationLoss interface {
	RxPowerDbm(txPowerDbm float64, from, to model.Position) float64
}

// LogDistanceLoss is the log-distance path loss model:
// L = L0 + 10·n·log10(d/d0).
type LogDistanceLoss struct {
	Exponent          float64
	ReferenceDistance float64 // metres
	ReferenceLossDb   float64
}

// DefaultLogDistanceLoss returns exponent 3 with 46.6777 dB at 1 m.
func DefaultLogDistanceLoss() LogDistanceLoss {
	return LogDistanceLoss{Exponent: 3, ReferenceDistance: 1, ReferenceLossDb: 46.6777}
}

// RxPowerDbm implements PropagationLoss.
func (m LogDistanceLoss) RxPowerDbm(txPowerDbm float64, from, to model.Position) float64 {
	d := from.DistanceTo(to)
	if d <= m.ReferenceDistance {
		return txPowerDbm - m.ReferenceLossDb
	}
	return txPowerDbm - m.ReferenceLossDb - 10*m.Exponent*math.Log10(d/m.ReferenceDistance)
}

type attachment struct {
	phy      *Phy
	mobility Mobility
}

// BroadcastChannel delivers every transmission to all other attached PHYs
// tuned to the sender's channel, after the propagation delay.
type BroadcastChannel struct {
	sched sched.EventScheduler
	loss  PropagationLoss
	nodes []attachment
}

// NewBroadcastChannel builds an empty channel.
func NewBroadcastChannel(s sched.EventScheduler, loss PropagationLoss) *BroadcastChannel {
	if loss == nil {
		loss = DefaultLogDistanceLoss()
	}
	return &BroadcastChannel{sched: s, loss: loss}
}

// Add attaches p at the position given by m.
func (c *BroadcastChannel) Add(p *Phy, m Mobility) {
	c.nodes = append(c.nodes, attachment{phy: p, mobility: m})
	p.SetChannel(c)
}

// Len returns the number of attached PHYs.
func (c *BroadcastChannel) Len() int { return len(c.nodes) }

func (c *BroadcastChannel) positionOf(p *Phy) (model.Position, bool) {
	for _, n := range c.nodes {
		if n.phy == p {
			return n.mobility.Position(), true
		}
	}
	return model.Position{}, false
}

// Send implements Channel.
func (c *BroadcastChannel) Send(sender *Phy, pkt *Packet, txPowerDbm float64, v TxVector, preamble Preamble) {
	from, ok := c.positionOf(sender)
	if !ok {
		return
	}
	now := c.sched.Now()
	for _, n := range c.nodes {
		if n.phy == sender || n.phy.ChannelNumber() != sender.ChannelNumber() {
			continue
		}
		to := n.mobility.Position()
		rxPowerDbm := c.loss.RxPowerDbm(txPowerDbm, from, to)
		delay := secondsToDuration(from.DistanceTo(to) / SpeedOfLight)
		dst := n.phy
		c.sched.Schedule(now+delay, func() {
			dst.StartReceivePacket(pkt, rxPowerDbm, v, preamble)
		})
	}
}
