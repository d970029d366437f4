package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNextPreview(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "daily",
			args: []string{"next", "--time", "09:00", "--tz", "UTC", "--from", "2024-03-10T08:00:00Z", "-n", "2"},
			want: []string{"cron: CRON_TZ=UTC 0 9 * * *", "Sun 2024-03-10 09:00 UTC", "Mon 2024-03-11 09:00 UTC"},
		},
		{
			name: "monthly clamps to month end",
			args: []string{"next", "--frequency", "monthly", "--dom", "31", "--time", "06:30", "--tz", "UTC", "--from", "2024-01-31T07:00:00Z", "-n", "2"},
			want: []string{"Thu 2024-02-29 06:30 UTC", "Sun 2024-03-31 06:30 UTC"},
		},
		{
			name: "weekly",
			args: []string{"next", "--frequency", "weekly", "--dow", "1", "--time", "08:00", "--tz", "UTC", "--from", "2024-03-10T08:00:00Z", "-n", "1"},
			want: []string{"cron: CRON_TZ=UTC 0 8 * * 1", "Mon 2024-03-11 08:00 UTC"},
		},
	}
	for _, tc := range tests {
		out, err := execute(t, tc.args...)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		for _, w := range tc.want {
			if !strings.Contains(out, w) {
				t.Fatalf("%s: output missing %q:\n%s", tc.name, w, out)
			}
		}
	}
}

func TestNextRejectsBadCadence(t *testing.T) {
	t.Parallel()

	if _, err := execute(t, "next", "--frequency", "hourly"); err == nil {
		t.Fatalf("hourly accepted")
	}
	if _, err := execute(t, "next", "--time", "25:00"); err == nil {
		t.Fatalf("25:00 accepted")
	}
}

func TestRunRequiresExistingSchedule(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := "logging:\n  level: error\nstorage:\n  driver: memory\n"
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := execute(t, "--config", path, "run", "nope")
	if err == nil || !strings.Contains(err.Error(), "schedule not found") {
		t.Fatalf("err = %v", err)
	}
}
