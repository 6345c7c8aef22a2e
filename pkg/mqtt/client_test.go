package mqtt

import "testing"

func TestTopicsMatch(t *testing.T) {
	cases := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"fota/v1/status/dev-1", "fota/v1/status/dev-1", true},
		{"fota/v1/status/+", "fota/v1/status/dev-1", true},
		{"fota/v1/status/+", "fota/v1/status/dev-1/extra", false},
		{"fota/v1/#", "fota/v1/status/dev-1", true},
		{"fota/v1/status/+", "fota/v1/event/dev-1", false},
		{"fota/v1/status/dev-1", "fota/v1/status/dev-2", false},
		{"+/v1/status/dev-1", "fota/v1/status/dev-1", true},
	}
	for _, tc := range cases {
		if got := topicsMatch(tc.filter, tc.topic); got != tc.want {
			t.Errorf("topicsMatch(%q, %q) = %v, want %v", tc.filter, tc.topic, got, tc.want)
		}
	}
}

func TestClientConfigValidate(t *testing.T) {
	cfg := &ClientConfig{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty broker url should not validate")
	}

	cfg.BrokerURL = "mqtt://broker.local:1883"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
