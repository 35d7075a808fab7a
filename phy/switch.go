package phy

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/vanet-simulator/internal/logging"
)

// SetChannelNumber moves the PHY to channel nch.
//
// At time zero the channel is simply recorded. Later, a reception in
// progress is abandoned and the switch proceeds; a transmission in progress
// defers the whole request to its end. Proceeding puts the PHY in SWITCHING
// for the configured delay, forgets every tracked signal and records the
// new channel right away, so signals arriving during the delay belong to it.
// A newer request replaces a deferred one.
func (p *Phy) SetChannelNumber(nch uint16) error {
	if nch < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidChannelNumber, nch)
	}
	now := p.sched.Now()
	p.sched.Cancel(p.pendingSwitch)
	p.pendingSwitch = ""

	switch decideChannelSwitch(now, p.state.state()) {
	case switchInit:
		p.cfg.ChannelNumber = nch
		return nil
	case switchDefer:
		delay := p.state.delayUntilIdle()
		p.log.Debug(context.Background(), "channel switch deferred until end of tx",
			logging.Int("channel", int(nch)),
			logging.Duration("delay", delay),
		)
		p.pendingSwitch = p.sched.Schedule(now+delay, func() {
			p.pendingSwitch = ""
			// The channel was validated above.
			_ = p.SetChannelNumber(nch)
		})
		return nil
	case switchAbortRxThenNow:
		p.log.Debug(context.Background(), "channel switch aborts reception")
		p.abortReception(DropSwitching)
	}

	p.log.Debug(context.Background(), "switching channel",
		logging.Int("from", int(p.cfg.ChannelNumber)),
		logging.Int("to", int(nch)),
	)
	p.state.switchToChannelSwitching(p.cfg.ChannelSwitchDelay)
	p.interference.EraseEvents()
	p.cfg.ChannelNumber = nch
	p.metrics.IncChannelSwitch()
	return nil
}

// PendingChannelSwitch reports whether a deferred channel switch is waiting
// for a transmission to end.
func (p *Phy) PendingChannelSwitch() bool { return p.sched.IsPending(p.pendingSwitch) }
