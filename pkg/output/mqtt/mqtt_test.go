package mqtt

import (
	"encoding/json"
	"testing"

	"github.com/ericogr/xbridge/pkg/telemetry"
)

func TestTopicFor(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"", "xbridge/00001"},
		{"home/cgm", "home/cgm/00001"},
		{"home/cgm/", "home/cgm/00001"},
	}
	for _, tt := range tests {
		if got := topicFor(tt.base, 1); got != tt.want {
			t.Fatalf("topicFor(%q) = %q; want %q", tt.base, got, tt.want)
		}
	}
}

func TestPayload(t *testing.T) {
	b, err := json.Marshal(payload(telemetry.Packet{Raw: 20, Filtered: 40, TransmitterID: 0x1F, RSSI: -70}))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"channel":0,"device_battery":0,"filtered":40,"raw":20,"rssi":-70,"transmitter":"0000Y"}`
	if string(b) != want {
		t.Fatalf("payload:\n got %s\nwant %s", b, want)
	}
}
