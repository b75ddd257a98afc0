// Package bridge runs the main loop: scan for a broadcast, queue the
// reading, deliver it over the link, then sleep until the next one.
package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/ericogr/xbridge/pkg/battery"
	"github.com/ericogr/xbridge/pkg/clock"
	"github.com/ericogr/xbridge/pkg/config"
	"github.com/ericogr/xbridge/pkg/delivery"
	"github.com/ericogr/xbridge/pkg/link"
	"github.com/ericogr/xbridge/pkg/output"
	"github.com/ericogr/xbridge/pkg/power"
	"github.com/ericogr/xbridge/pkg/queue"
	"github.com/ericogr/xbridge/pkg/radio"
	"github.com/ericogr/xbridge/pkg/scanner"
	"github.com/ericogr/xbridge/pkg/schedule"
	"github.com/ericogr/xbridge/pkg/store"
	"github.com/ericogr/xbridge/pkg/telemetry"
	"github.com/ericogr/xbridge/pkg/wait"
	"github.com/sirupsen/logrus"
)

// Timing holds the main loop intervals that are not part of the radio
// schedule.
type Timing struct {
	// ScanPoll is how often a channel wait checks the receive ring.
	ScanPoll clock.Millis
	// Poll is how often other waits service the link.
	Poll clock.Millis
	// BeaconInterval spaces beacons while no transmitter id is set.
	BeaconInterval clock.Millis
	// BeaconDelay lets the receiver settle after it connects.
	BeaconDelay clock.Millis
	// MissLinkWait bounds the wait for the link after a cycle without a
	// capture.
	MissLinkWait clock.Millis
}

func DefaultTiming() Timing {
	return Timing{ScanPoll: 5, Poll: 20, BeaconInterval: 10000, BeaconDelay: 500, MissLinkWait: 30000}
}

// Deps are the collaborators a Bridge is built from. Battery, Console and
// Outputs are optional.
type Deps struct {
	Config  config.Config
	Clock   clock.Source
	PHY     radio.PHY
	Ring    *radio.RxRing
	Link    *link.Link
	Store   store.Store
	Battery battery.Monitor
	Console *Console
	Outputs []output.Output
	Log     logrus.FieldLogger
	Timing  Timing
}

// Bridge owns every piece of mutable state. All of it is touched from the
// goroutine running Run; other goroutines only feed the ring and the link
// inbox.
type Bridge struct {
	cfg     config.Config
	timing  Timing
	clock   clock.Source
	phy     radio.PHY
	link    *link.Link
	store   store.Store
	battery battery.Monitor
	console *Console
	outputs []output.Output
	log     logrus.FieldLogger
	level   link.Level

	settings   config.Settings
	dirty      bool
	batteryPct uint8

	queue    queue.Queue
	wait     *wait.Loop
	scanner  *scanner.Scanner
	delivery *delivery.Protocol
	sched    schedule.Scheduler
	power    *power.Manager

	ctx      context.Context
	captures int
	misses   int
}

// New loads the persisted settings, takes a first battery reading and wires
// the main loop. A store that cannot be read leaves the defaults in place.
func New(d Deps) (*Bridge, error) {
	level, err := link.ParseLevel(d.Config.Protocol)
	if err != nil {
		return nil, err
	}
	if d.Timing == (Timing{}) {
		d.Timing = DefaultTiming()
	}
	b := &Bridge{
		cfg:     d.Config,
		timing:  d.Timing,
		clock:   d.Clock,
		phy:     d.PHY,
		link:    d.Link,
		store:   d.Store,
		battery: d.Battery,
		console: d.Console,
		outputs: d.Outputs,
		log:     d.Log,
		level:   level,
		ctx:     context.Background(),
	}

	b.settings, err = b.store.Load()
	if err != nil {
		b.log.WithError(err).Warn("using default settings")
		b.settings = config.DefaultSettings()
	}
	if !b.settings.Paired() && d.Config.TransmitterID != "" {
		id, err := telemetry.ParseSourceName(d.Config.TransmitterID)
		if err != nil {
			return nil, fmt.Errorf("transmitter id: %w", err)
		}
		b.settings.TransmitterID = id
		b.dirty = true
	}
	b.link.HonorState(b.settings.HonorLinkState)

	b.wait = &wait.Loop{Clock: b.clock, Svc: b, Poll: b.timing.Poll}
	scanWait := &wait.Loop{Clock: b.clock, Svc: b, Poll: b.timing.ScanPoll}
	b.scanner = scanner.New(b.phy, d.Ring, b.clock, scanWait, b.filter, b.log)
	b.delivery = delivery.New(b.link, b.wait, b.clock, &b.queue, b.encodeData, b.log)
	b.sched = schedule.Scheduler{Clock: b.clock}
	b.power = &power.Manager{
		Clock:   b.clock,
		Pending: func() bool { return b.link.Available() > 0 || b.console.Available() > 0 },
		Log:     b.log,
	}
	b.refreshBattery()
	return b, nil
}

// Settings returns a copy of the current settings.
func (b *Bridge) Settings() config.Settings { return b.settings }

// Queued is the number of readings waiting for an ack.
func (b *Bridge) Queued() int { return b.queue.Len() }

// Run loops until ctx is done. While no transmitter id is known it beacons
// for one instead of scanning, unless the bridge is promiscuous.
func (b *Bridge) Run(ctx context.Context) error {
	b.ctx = ctx
	b.log.WithFields(logrus.Fields{
		"txid":     telemetry.SourceName(b.settings.TransmitterID),
		"protocol": b.level,
	}).Info("bridge started")
	for ctx.Err() == nil {
		if !b.paired() {
			b.pair()
			continue
		}
		b.Cycle()
	}
	b.saveIfDirty()
	if err := b.close(); err != nil {
		b.log.WithError(err).Warn("shutdown")
	}
	return ctx.Err()
}

// close releases everything but the serial ports, which belong to the
// goroutines pumping them.
func (b *Bridge) close() error {
	var errs []error
	for _, o := range b.outputs {
		errs = append(errs, o.Close())
	}
	if b.battery != nil {
		errs = append(errs, b.battery.Close())
	}
	errs = append(errs, b.phy.Close(), b.store.Close())
	return errors.Join(errs...)
}

// Cycle scans once, delivers what is queued and sleeps until the next
// broadcast when something was captured.
func (b *Bridge) Cycle() {
	f, out := b.scanner.Scan()
	if b.ctx.Err() != nil {
		return
	}
	captured := out == scanner.Captured
	if captured {
		b.captured(f)
	} else {
		b.misses++
		b.log.WithError(out.Err()).Debug("no capture this cycle")
		if err := b.delivery.Beacon(b.settings.TransmitterID, b.timing.MissLinkWait, b.encodeBeacon); err != nil {
			b.log.WithError(err).Debug("no beacon sent")
		}
	}

	n, err := b.delivery.Deliver()
	switch {
	case err == nil:
	case errors.Is(err, delivery.ErrNoAck), errors.Is(err, delivery.ErrLinkUnavailable):
		b.log.WithError(err).WithField("queued", b.queue.Len()).Debug("delivery deferred")
	default:
		b.log.WithError(err).Warn("delivery failed")
	}
	if n > 0 {
		b.log.WithFields(logrus.Fields{"delivered": n, "queued": b.queue.Len()}).Debug("delivery pass")
	}
	b.saveIfDirty()

	if captured && b.ctx.Err() == nil {
		b.sleep()
	}
}

func (b *Bridge) captured(f radio.RawFrame) {
	b.captures++
	sess := b.scanner.Session()
	pkt := telemetry.Decode(f, sess.LastChannel, b.clock.Now())
	if err := b.queue.Push(pkt); err != nil {
		b.log.WithError(err).Warn("oldest reading dropped")
	}

	entry := b.log.WithFields(logrus.Fields{
		"txid":     telemetry.SourceName(pkt.TransmitterID),
		"channel":  pkt.Channel,
		"seq":      f.Seq,
		"raw":      pkt.Raw,
		"filtered": pkt.Filtered,
		"rssi":     pkt.RSSI,
		"queued":   b.queue.Len(),
	})
	if b.settings.Indicators {
		entry.Info("capture")
	} else {
		entry.Debug("capture")
	}

	for _, o := range b.outputs {
		if err := o.Publish([]telemetry.Packet{pkt}); err != nil {
			b.log.WithError(err).Warn("output publish failed")
		}
	}

	if b.settings.SendDebug {
		if err := b.link.Printf("capture ch=%d seq=%d rssi=%d freqest=%d lqi=%d", pkt.Channel, f.Seq, pkt.RSSI, f.FreqEst, f.LQI); err != nil {
			b.log.WithError(err).Debug("debug line not sent")
		}
	}
}

// sleep idles the radio until shortly before the next broadcast.
func (b *Bridge) sleep() {
	sess := b.scanner.Session()
	d := b.sched.SleepDuration(sess.Captured, sess.LastCapture, sess.LastChannel)
	if d == 0 {
		return
	}
	if err := b.phy.Idle(); err != nil {
		b.log.WithError(err).Warn("radio idle failed")
	}
	slept := b.power.Sleep(d)
	b.log.WithFields(logrus.Fields{"want_ms": d, "slept_ms": slept}).Debug("woke")
	if b.settings.SleepLink && b.settings.HonorLinkState {
		b.link.Drop()
	}
	b.refreshBattery()
}

// pair beacons until the receiver assigns a transmitter id.
func (b *Bridge) pair() {
	b.log.Info("no transmitter id, beaconing until one is set")
	for !b.paired() && b.ctx.Err() == nil {
		b.wait.For(0, b.link.Ready)
		if b.paired() || !b.link.Ready() {
			continue
		}
		b.wait.For(b.timing.BeaconDelay, nil)
		if err := b.link.Send(b.encodeBeacon(b.settings.TransmitterID)); err != nil {
			b.log.WithError(err).Warn("beacon failed")
		}
		b.wait.For(b.timing.BeaconInterval, b.paired)
		b.saveIfDirty()
	}
	b.saveIfDirty()
}

// Service handles everything that arrived since the last call. It is run
// by every wait and returns false when the wait should stop early.
func (b *Bridge) Service() bool {
	urgent := false
	for _, cmd := range b.link.Poll() {
		switch cmd.Kind {
		case link.Ack:
			b.delivery.Acknowledge()
		case link.SetIdentity:
			b.setIdentity(cmd.TransmitterID)
		case link.Connected, link.Disconnected:
			b.log.WithField("status", cmd.Kind).Debug("link status")
		}
		if cmd.Kind.Urgent() {
			urgent = true
		}
	}
	if b.console != nil {
		for _, c := range b.console.Poll() {
			b.consoleCommand(c)
		}
	}
	return !urgent && b.ctx.Err() == nil
}

func (b *Bridge) setIdentity(id uint32) {
	if id == b.settings.TransmitterID {
		return
	}
	b.log.WithFields(logrus.Fields{
		"old": telemetry.SourceName(b.settings.TransmitterID),
		"new": telemetry.SourceName(id),
	}).Info("transmitter id set")
	b.settings.TransmitterID = id
	b.dirty = true
}

func (b *Bridge) paired() bool { return b.cfg.Promiscuous || b.settings.Paired() }

func (b *Bridge) filter() uint32 {
	if b.cfg.Promiscuous {
		return 0
	}
	return b.settings.Filter()
}

func (b *Bridge) refreshBattery() {
	if b.battery == nil {
		return
	}
	v, err := b.battery.Read()
	if err != nil {
		b.log.WithError(err).Warn("battery read failed")
		return
	}
	pct, changed := battery.Percent(v, &b.settings)
	b.batteryPct = pct
	if changed {
		b.dirty = true
	}
}

// saveIfDirty persists the settings. A failed save is retried at the next
// safe point.
func (b *Bridge) saveIfDirty() {
	if !b.dirty {
		return
	}
	if err := b.store.Save(b.settings); err != nil {
		b.log.WithError(err).Warn("settings not saved")
		return
	}
	b.dirty = false
}

func (b *Bridge) encodeData(p telemetry.Packet, now clock.Millis) []byte {
	return link.EncodeData(p, b.batteryPct, now, b.level)
}

func (b *Bridge) encodeBeacon(id uint32) []byte { return link.EncodeBeacon(id, b.level) }
