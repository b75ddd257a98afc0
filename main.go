package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ericogr/xbridge/pkg/battery"
	"github.com/ericogr/xbridge/pkg/bridge"
	"github.com/ericogr/xbridge/pkg/clock"
	"github.com/ericogr/xbridge/pkg/config"
	"github.com/ericogr/xbridge/pkg/link"
	"github.com/ericogr/xbridge/pkg/output"
	"github.com/ericogr/xbridge/pkg/output/console"
	"github.com/ericogr/xbridge/pkg/output/influx"
	"github.com/ericogr/xbridge/pkg/output/mqtt"
	"github.com/ericogr/xbridge/pkg/radio"
	"github.com/ericogr/xbridge/pkg/radio/cc2500"
	"github.com/ericogr/xbridge/pkg/store"
	"github.com/ericogr/xbridge/pkg/telemetry"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("log level: %v", err)
	}
	log.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
	log.Info("stopped")
}

func run(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	clk := clock.NewReal()
	ring := &radio.RxRing{}

	phy, err := initRadio(ctx, cfg, ring, clk, log)
	if err != nil {
		return err
	}
	mon, err := initBattery(cfg)
	if err != nil {
		phy.Close()
		return err
	}
	st, err := initStore(cfg)
	if err != nil {
		phy.Close()
		return err
	}
	outs, err := initOutputs(cfg, log)
	if err != nil {
		phy.Close()
		return err
	}

	port, err := openPort(cfg.Serial.Port, cfg.Serial.Baud)
	if err != nil {
		phy.Close()
		return err
	}
	defer port.Close()
	lk := link.New(port, clk, false, log.WithField("component", "link"))
	go func() {
		if err := lk.Pump(ctx, port); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("link pump stopped")
		}
	}()

	con, err := initConsole(ctx, cfg, log)
	if err != nil {
		phy.Close()
		return err
	}

	b, err := bridge.New(bridge.Deps{
		Config:  cfg,
		Clock:   clk,
		PHY:     phy,
		Ring:    ring,
		Link:    lk,
		Store:   st,
		Battery: mon,
		Console: con,
		Outputs: outs,
		Log:     log,
	})
	if err != nil {
		phy.Close()
		return err
	}
	return b.Run(ctx)
}

// initRadio opens the radio front end, or a fake one played by a simulated
// transmitter.
func initRadio(ctx context.Context, cfg config.Config, ring *radio.RxRing, clk clock.Source, log *logrus.Logger) (radio.PHY, error) {
	switch strings.ToLower(cfg.Radio.Type) {
	case "", "cc2500":
		return cc2500.New(cc2500.Opts{SPIPort: cfg.Radio.SPIPort, GDO0: cfg.Radio.GDO0}, ring, clk, log.WithField("component", "radio"))
	case "simulation":
		name := cfg.Radio.SimulatedID
		if name == "" {
			name = cfg.TransmitterID
		}
		if name == "" {
			name = "6ABCD"
		}
		id, err := telemetry.ParseSourceName(name)
		if err != nil {
			return nil, fmt.Errorf("simulated id: %w", err)
		}
		phy := radio.NewFake(ring, clk)
		sim := &radio.Simulator{PHY: phy, Src: id, Period: 5 * time.Minute, ChannelGap: 500 * time.Millisecond}
		go sim.Run(ctx)
		log.WithField("txid", telemetry.SourceName(id)).Info("simulated transmitter running")
		return phy, nil
	}
	return nil, fmt.Errorf("unknown radio type %q", cfg.Radio.Type)
}

func initBattery(cfg config.Config) (battery.Monitor, error) {
	switch strings.ToLower(cfg.Battery.Type) {
	case "", "ads1115":
		return battery.NewADS1115(cfg.Battery)
	case "simulation":
		f := battery.NewFake(1700)
		f.Noise = 5
		return f, nil
	case "none":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown battery type %q", cfg.Battery.Type)
}

func initStore(cfg config.Config) (store.Store, error) {
	switch strings.ToLower(cfg.Store.Type) {
	case "", "file":
		return store.NewFile(cfg.Store.Path), nil
	case "redis":
		if cfg.Store.RedisAddr == "" {
			return nil, errors.New("redis store needs redis_addr")
		}
		return store.NewRedis(cfg.Store.RedisAddr, cfg.Store.RedisKey), nil
	}
	return nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
}

// initOutputs builds the telemetry mirrors. A failing mirror is skipped so
// the bridge keeps delivering to the receiver.
func initOutputs(cfg config.Config, log logrus.FieldLogger) ([]output.Output, error) {
	var outs []output.Output
	for _, oc := range cfg.Outputs {
		switch strings.ToLower(oc.Type) {
		case "console":
			outs = append(outs, console.NewConsole())
		case "mqtt":
			mc := config.MQTTConfig{}
			if oc.MQTT != nil {
				mc = *oc.MQTT
			}
			o, err := mqtt.NewMQTT(mc)
			if err != nil {
				log.WithError(err).Warn("mqtt output disabled")
				continue
			}
			outs = append(outs, o)
		case "influx":
			if oc.Influx == nil {
				return nil, errors.New("influx output needs an influx section")
			}
			o, err := influx.NewInflux(*oc.Influx)
			if err != nil {
				return nil, err
			}
			outs = append(outs, o)
		default:
			return nil, fmt.Errorf("unknown output type %q", oc.Type)
		}
	}
	return outs, nil
}

// stdio joins stdin and stdout so "-" can stand in for a serial port.
type stdio struct {
	io.Reader
	io.Writer
}

func (stdio) Close() error { return nil }

func openPort(name string, baud int) (io.ReadWriteCloser, error) {
	if name == "-" {
		return stdio{os.Stdin, os.Stdout}, nil
	}
	return link.OpenSerial(name, baud)
}

func initConsole(ctx context.Context, cfg config.Config, log *logrus.Logger) (*bridge.Console, error) {
	var rw io.ReadWriter
	switch cfg.Console {
	case "":
		return nil, nil
	case "stdin":
		rw = stdio{os.Stdin, os.Stdout}
	default:
		p, err := link.OpenSerial(cfg.Console, 9600)
		if err != nil {
			return nil, fmt.Errorf("console: %w", err)
		}
		go func() {
			<-ctx.Done()
			p.Close()
		}()
		rw = p
	}
	con := bridge.NewConsole(rw)
	go func() {
		if err := con.Pump(ctx, rw); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("console stopped")
		}
	}()
	return con, nil
}
