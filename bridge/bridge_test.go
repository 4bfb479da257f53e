package bridge

import (
	"testing"
)

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "single route",
			cfg: Config{
				URL:    "nats://localhost:4222",
				Routes: []TopicRoute{{Name: "Telemetry"}},
			},
		},
		{
			name:    "missing url",
			cfg:     Config{Routes: []TopicRoute{{Name: "Telemetry"}}},
			wantErr: true,
		},
		{
			name:    "no routes",
			cfg:     Config{URL: "nats://localhost:4222"},
			wantErr: true,
		},
		{
			name: "unnamed route",
			cfg: Config{
				URL:    "nats://localhost:4222",
				Routes: []TopicRoute{{TypeName: "Shape"}},
			},
			wantErr: true,
		},
		{
			name: "topic with whitespace",
			cfg: Config{
				URL:    "nats://localhost:4222",
				Routes: []TopicRoute{{Name: "bad topic"}},
			},
			wantErr: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected an error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestSubjectFor(t *testing.T) {
	cases := []struct {
		prefix string
		topic  string
		want   string
	}{
		{"dds", "Telemetry", "dds.Telemetry"},
		{"dds", "rt.sensor.pose", "dds.rt_sensor_pose"},
		{"fleet", "Shapes", "fleet.Shapes"},
	}
	for _, tc := range cases {
		if got := subjectFor(tc.prefix, tc.topic); got != tc.want {
			t.Errorf("subjectFor(%q, %q) = %q, want %q", tc.prefix, tc.topic, got, tc.want)
		}
	}
}
