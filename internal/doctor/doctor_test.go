package doctor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/voxcap/internal/audio"
	"github.com/rbright/voxcap/internal/config"
)

func stubDevices(t *testing.T, devices []audio.Device, err error) {
	t.Helper()
	previous := listDevices
	listDevices = func(context.Context) ([]audio.Device, error) { return devices, err }
	t.Cleanup(func() { listDevices = previous })
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	cfg := config.Default()
	cfg.Output.Dir = filepath.Join(t.TempDir(), "samples")
	cfg.Indicator.Enable = false
	return cfg
}

func findCheck(t *testing.T, report Report, name string) Check {
	t.Helper()
	for _, check := range report.Checks {
		if check.Name == name {
			return check
		}
	}
	require.Failf(t, "missing check", "no check named %q in %v", name, report.Checks)
	return Check{}
}

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestReportOKAllPassing(t *testing.T) {
	report := Report{Checks: []Check{{Name: "one", Pass: true}, {Name: "two", Pass: true}}}
	require.True(t, report.OK())
}

func TestRunAllPassingWithDefaultSource(t *testing.T) {
	stubDevices(t, []audio.Device{{ID: "alsa_input.usb", Description: "USB Mic", Available: true, Default: true}}, nil)
	cfg := testConfig(t)

	report := Run(context.Background(), config.Loaded{Path: "/tmp/config.jsonc", Config: cfg, Exists: true})
	require.True(t, report.OK(), report.String())

	require.Contains(t, findCheck(t, report, "config").Message, `loaded "/tmp/config.jsonc"`)
	require.Equal(t, "1 input source(s)", findCheck(t, report, "audio.server").Message)
	require.Contains(t, findCheck(t, report, "audio.device").Message, "alsa_input.usb")
	require.Contains(t, findCheck(t, report, "recording.encodings").Message, "audio/wav")
	require.Contains(t, findCheck(t, report, "history").Message, "history.db")

	_, err := os.Stat(cfg.Output.Dir)
	require.NoError(t, err)
	entries, err := os.ReadDir(cfg.Output.Dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRunSkipsSelectionWhenServerUnreachable(t *testing.T) {
	stubDevices(t, nil, errors.New("connect pulse server: no such file or directory"))
	cfg := testConfig(t)
	cfg.History.Enable = false

	report := Run(context.Background(), config.Loaded{Path: "/tmp/config.jsonc", Config: cfg})
	require.False(t, report.OK())
	require.False(t, findCheck(t, report, "audio.server").Pass)
	require.Contains(t, findCheck(t, report, "config").Message, "using defaults")

	for _, check := range report.Checks {
		require.NotEqual(t, "audio.device", check.Name)
		require.NotEqual(t, "history", check.Name)
	}
}

func TestRunReportsMissingSource(t *testing.T) {
	stubDevices(t, nil, nil)
	cfg := testConfig(t)

	report := Run(context.Background(), config.Loaded{Config: cfg})
	check := findCheck(t, report, "audio.device")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "no audio input devices")
}

func TestRunIncludesWarningsCount(t *testing.T) {
	stubDevices(t, []audio.Device{{ID: "mic", Available: true, Default: true}}, nil)
	cfg := testConfig(t)

	report := Run(context.Background(), config.Loaded{
		Path:     "/tmp/c.jsonc",
		Config:   cfg,
		Exists:   true,
		Warnings: []config.Warning{{Message: "unknown encoding"}},
	})
	require.Contains(t, findCheck(t, report, "config").Message, "1 warning(s)")
}

func TestRunChecksOutputCommandAndBusctl(t *testing.T) {
	stubDevices(t, []audio.Device{{ID: "mic", Available: true, Default: true}}, nil)
	binDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "fake-upload"), []byte("#!/usr/bin/env sh\nexit 0\n"), 0o755))
	t.Setenv("PATH", binDir)

	cfg := testConfig(t)
	cfg.Indicator.Enable = true
	cfg.Output.Command = config.CommandConfig{Raw: "fake-upload --now", Argv: []string{"fake-upload", "--now"}}

	report := Run(context.Background(), config.Loaded{Config: cfg})
	require.True(t, findCheck(t, report, "fake-upload").Pass)
	require.False(t, findCheck(t, report, "busctl").Pass)
}

func TestCheckEncodingFailsWithoutKnownTypes(t *testing.T) {
	cfg := config.Default()
	cfg.Recording.Encodings = []string{"audio/webm"}

	check := checkEncoding(cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "audio/webm")
}

func TestCheckOutputDirNotWritable(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	cfg := config.Default()
	cfg.Output.Dir = filepath.Join(blocker, "samples")

	check := checkOutputDir(cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "create")
}

func TestCheckCommandEmpty(t *testing.T) {
	check := checkCommand(nil, "output.command")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "command is empty")
}

func TestCheckBinaryFound(t *testing.T) {
	check := checkBinary("sh", "shell available")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "shell available")
}

func TestCheckBinaryMissing(t *testing.T) {
	check := checkBinary("definitely-not-a-real-binary", "unused")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "binary not found")
}
