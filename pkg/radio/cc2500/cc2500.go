// Package cc2500 drives a CC2500-family 2.4GHz transceiver over SPI and
// publishes received broadcasts into a radio.RxRing.
package cc2500

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ericogr/xbridge/pkg/clock"
	"github.com/ericogr/xbridge/pkg/radio"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Config registers.
const (
	regIOCFG0   = 0x02
	regPKTLEN   = 0x06
	regPKTCTRL1 = 0x07
	regPKTCTRL0 = 0x08
	regADDR     = 0x09
	regCHANNR   = 0x0A
	regFSCTRL1  = 0x0B
	regFSCTRL0  = 0x0C
	regFREQ2    = 0x0D
	regFREQ1    = 0x0E
	regFREQ0    = 0x0F
	regMDMCFG4  = 0x10
	regMDMCFG3  = 0x11
	regMDMCFG2  = 0x12
	regMDMCFG1  = 0x13
	regMDMCFG0  = 0x14
	regDEVIATN  = 0x15
	regFOCCFG   = 0x19
	regBSCFG    = 0x1A
	regAGCCTRL2 = 0x1B
	regAGCCTRL1 = 0x1C
	regAGCCTRL0 = 0x1D
	regFREND1   = 0x21
	regFREND0   = 0x22
	regFSCAL3   = 0x23
	regFSCAL2   = 0x24
	regFSCAL1   = 0x25
	regFSCAL0   = 0x26
	regTEST2    = 0x2C
	regTEST1    = 0x2D
	regTEST0    = 0x2E
	regSYNC1    = 0x04
	regSYNC0    = 0x05
)

// Status registers, read with the burst bit set.
const (
	regFREQEST   = 0x32
	regRXBYTES   = 0x3B
	regFIFO      = 0x3F
)

// Command strobes.
const (
	strobeSRES  = 0x30
	strobeSRX   = 0x34
	strobeSIDLE = 0x36
	strobeSPWD  = 0x39
	strobeSFRX  = 0x3A
)

const (
	readBit  = 0x80
	burstBit = 0x40

	rxOverflow = 0x80
	rxCount    = 0x7F
)

// settings configures the modem for the transmitter: MSK at ~50kbit/s,
// 250kHz channel spacing, variable length packets up to 18 bytes with CRC
// flagging and appended status bytes. GDO0 deasserts at end of packet.
var settings = []struct{ reg, val byte }{
	{regIOCFG0, 0x06},
	{regFREQ2, 0x65}, {regFREQ1, 0x0A}, {regFREQ0, 0x48},
	{regSYNC1, 0xD3}, {regSYNC0, 0x91},
	{regADDR, 0x00},
	{regFSCTRL1, 0x0A}, {regFSCTRL0, 0x00},
	{regMDMCFG4, 0x4B}, {regMDMCFG3, 0x11}, {regMDMCFG2, 0x73}, {regMDMCFG1, 0x03}, {regMDMCFG0, 0x55},
	{regDEVIATN, 0x00},
	{regFREND1, 0xB6}, {regFREND0, 0x10},
	{regFOCCFG, 0x2A}, {regBSCFG, 0x6C},
	{regAGCCTRL2, 0x44}, {regAGCCTRL1, 0x50}, {regAGCCTRL0, 0xB2},
	{regFSCAL3, 0xA9}, {regFSCAL2, 0x0A}, {regFSCAL1, 0x20}, {regFSCAL0, 0x0D},
	{regTEST2, 0x81}, {regTEST1, 0x35}, {regTEST0, 0x0B},
	{regPKTCTRL1, 0x04}, {regPKTCTRL0, 0x05}, {regPKTLEN, 0x12},
}

// Opts selects the hardware the radio is attached to.
type Opts struct {
	SPIPort string // e.g. "/dev/spidev0.0" or "" for the first port
	GDO0    string // GPIO name of the packet-done interrupt line
	Speed   physic.Frequency
}

// Radio is a radio.PHY. SPI access is shared between the caller of Tune and
// the receive goroutine, hence the mutex.
type Radio struct {
	mu   sync.Mutex
	conn spi.Conn
	port spi.PortCloser
	gdo0 gpio.PinIn
	ring *radio.RxRing
	clk  clock.Source
	log  logrus.FieldLogger

	stop chan struct{}
	done chan struct{}
}

// New opens the SPI port and interrupt pin, configures the radio and starts
// the receive goroutine.
func New(opts Opts, ring *radio.RxRing, clk clock.Source, log logrus.FieldLogger) (*Radio, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	port, err := spireg.Open(opts.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("open spi: %w", err)
	}
	if opts.Speed == 0 {
		opts.Speed = 4 * physic.MegaHertz
	}
	conn, err := port.Connect(opts.Speed, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("connect spi: %w", err)
	}
	pin := gpioreg.ByName(opts.GDO0)
	if pin == nil {
		port.Close()
		return nil, fmt.Errorf("gdo0 pin %q not found", opts.GDO0)
	}
	if err := pin.In(gpio.PullNoChange, gpio.FallingEdge); err != nil {
		port.Close()
		return nil, fmt.Errorf("gdo0 edge: %w", err)
	}
	r := newRadio(conn, ring, clk, log)
	r.port = port
	r.gdo0 = pin
	if err := r.configure(); err != nil {
		port.Close()
		return nil, err
	}
	go r.worker()
	return r, nil
}

func newRadio(conn spi.Conn, ring *radio.RxRing, clk clock.Source, log logrus.FieldLogger) *Radio {
	return &Radio{conn: conn, ring: ring, clk: clk, log: log,
		stop: make(chan struct{}), done: make(chan struct{})}
}

func (r *Radio) configure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.strobe(strobeSRES); err != nil {
		return fmt.Errorf("cc2500: reset: %w", err)
	}
	time.Sleep(time.Millisecond)
	for _, s := range settings {
		if err := r.writeReg(s.reg, s.val); err != nil {
			return fmt.Errorf("cc2500: write reg %#02x: %w", s.reg, err)
		}
	}
	return nil
}

// Tune implements radio.PHY.
func (r *Radio) Tune(channel int, offset int8) error {
	if !radio.ValidChannel(channel) {
		return radio.ErrInvalidChannel
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, step := range []func() error{
		func() error { return r.strobe(strobeSIDLE) },
		func() error { return r.writeReg(regCHANNR, radio.ChannelNumbers[channel]) },
		func() error { return r.writeReg(regFSCTRL0, byte(offset)) },
		func() error { return r.strobe(strobeSFRX) },
		func() error { return r.strobe(strobeSRX) },
	} {
		if err := step(); err != nil {
			return fmt.Errorf("cc2500: tune %d: %w", channel, err)
		}
	}
	return nil
}

// Idle implements radio.PHY.
func (r *Radio) Idle() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.strobe(strobeSIDLE); err != nil {
		return fmt.Errorf("cc2500: idle: %w", err)
	}
	return r.strobe(strobeSPWD)
}

func (r *Radio) Close() error {
	if r.gdo0 != nil {
		close(r.stop)
		<-r.done
	}
	if r.port != nil {
		return r.port.Close()
	}
	return nil
}

func (r *Radio) worker() {
	defer close(r.done)
	for {
		select {
		case <-r.stop:
			return
		default:
		}
		if !r.gdo0.WaitForEdge(time.Second) {
			continue
		}
		if err := r.receive(); err != nil {
			r.log.WithError(err).Debug("cc2500 receive")
		}
	}
}

// receive drains one packet from the FIFO and publishes it. It runs on the
// receive goroutine only.
func (r *Radio) receive() error {
	r.mu.Lock()
	buf, est, err := r.readPacket()
	if err == nil || errors.Is(err, errShortPacket) {
		// back to receive on the same channel for the next repeat
		err2 := r.strobe(strobeSFRX)
		if err2 == nil {
			err2 = r.strobe(strobeSRX)
		}
		if err == nil {
			err = err2
		}
	}
	r.mu.Unlock()
	if err != nil {
		return err
	}
	f, err := radio.ParseFrame(buf)
	if err != nil {
		return err
	}
	f.FreqEst = int16(int8(est))
	f.At = r.clk.Now()
	if !r.ring.TryPublish(f) {
		r.log.WithField("seq", f.Seq).Debug("rx ring full, frame dropped")
	}
	return nil
}

var errShortPacket = errors.New("cc2500: short packet")

func (r *Radio) readPacket() ([]byte, byte, error) {
	n, err := r.readStatus(regRXBYTES)
	if err != nil {
		return nil, 0, err
	}
	if n&rxOverflow != 0 || int(n&rxCount) < radio.FrameLen {
		return nil, 0, errShortPacket
	}
	buf, err := r.readBurst(regFIFO, radio.FrameLen)
	if err != nil {
		return nil, 0, err
	}
	est, err := r.readStatus(regFREQEST)
	if err != nil {
		return nil, 0, err
	}
	return buf, est, nil
}

func (r *Radio) strobe(cmd byte) error {
	return r.conn.Tx([]byte{cmd}, make([]byte, 1))
}

func (r *Radio) writeReg(reg, val byte) error {
	return r.conn.Tx([]byte{reg, val}, make([]byte, 2))
}

func (r *Radio) readStatus(reg byte) (byte, error) {
	rd := make([]byte, 2)
	if err := r.conn.Tx([]byte{reg | readBit | burstBit, 0}, rd); err != nil {
		return 0, err
	}
	return rd[1], nil
}

func (r *Radio) readBurst(reg byte, n int) ([]byte, error) {
	w := make([]byte, n+1)
	w[0] = reg | readBit | burstBit
	rd := make([]byte, n+1)
	if err := r.conn.Tx(w, rd); err != nil {
		return nil, err
	}
	return rd[1:], nil
}
