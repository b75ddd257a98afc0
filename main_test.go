package main

import (
	"context"
	"testing"

	"github.com/ericogr/xbridge/pkg/battery"
	"github.com/ericogr/xbridge/pkg/clock"
	"github.com/ericogr/xbridge/pkg/config"
	"github.com/ericogr/xbridge/pkg/radio"
	"github.com/ericogr/xbridge/pkg/store"
	"github.com/sirupsen/logrus"
)

func TestInitOutputs(t *testing.T) {
	cfg := config.Config{Outputs: []config.OutputConfig{{Type: "console"}, {Type: "Console"}}}
	outs, err := initOutputs(cfg, logrus.New())
	if err != nil {
		t.Fatalf("initOutputs: %v", err)
	}
	if len(outs) != 2 {
		t.Fatalf("outputs len: %d", len(outs))
	}

	for _, bad := range []config.OutputConfig{{Type: "influx"}, {Type: "influx", Influx: &config.InfluxConfig{}}, {Type: "carrier-pigeon"}} {
		if _, err := initOutputs(config.Config{Outputs: []config.OutputConfig{bad}}, logrus.New()); err == nil {
			t.Fatalf("expected error for %+v", bad)
		}
	}
}

func TestInitStore(t *testing.T) {
	cfg := config.DefaultConfig()
	st, err := initStore(cfg)
	if err != nil {
		t.Fatalf("initStore: %v", err)
	}
	if _, ok := st.(*store.FileStore); !ok {
		t.Fatalf("default store: %T", st)
	}

	cfg.Store.Type = "redis"
	if _, err := initStore(cfg); err == nil {
		t.Fatalf("redis store without an address should fail")
	}
	cfg.Store.RedisAddr = "localhost:6379"
	st, err = initStore(cfg)
	if err != nil {
		t.Fatalf("initStore redis: %v", err)
	}
	if _, ok := st.(*store.RedisStore); !ok {
		t.Fatalf("redis store: %T", st)
	}
	st.Close()
}

func TestInitBattery(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Battery.Type = "simulation"
	mon, err := initBattery(cfg)
	if err != nil {
		t.Fatalf("initBattery: %v", err)
	}
	if _, ok := mon.(*battery.Fake); !ok {
		t.Fatalf("monitor: %T", mon)
	}
	cfg.Battery.Type = "lemon"
	if _, err := initBattery(cfg); err == nil {
		t.Fatalf("expected error for unknown battery")
	}
}

func TestInitSimulatedRadio(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := config.DefaultConfig()
	cfg.Radio.Type = "simulation"
	cfg.Radio.SimulatedID = "6ABCD"
	phy, err := initRadio(ctx, cfg, &radio.RxRing{}, clock.NewReal(), logrus.New())
	if err != nil {
		t.Fatalf("initRadio: %v", err)
	}
	if _, ok := phy.(*radio.Fake); !ok {
		t.Fatalf("phy: %T", phy)
	}

	cfg.Radio.SimulatedID = "not an id!"
	if _, err := initRadio(ctx, cfg, &radio.RxRing{}, clock.NewReal(), logrus.New()); err == nil {
		t.Fatalf("expected error for a bad simulated id")
	}
	cfg.Radio.Type = "crystal"
	if _, err := initRadio(ctx, cfg, &radio.RxRing{}, clock.NewReal(), logrus.New()); err == nil {
		t.Fatalf("expected error for unknown radio")
	}
}
