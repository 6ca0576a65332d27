// Package doctor runs readiness diagnostics for config, the sound server, encodings, and output.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/voxcap/internal/audio"
	"github.com/rbright/voxcap/internal/config"
	"github.com/rbright/voxcap/internal/encoding"
	"github.com/rbright/voxcap/internal/history"
)

const probeTimeout = 3 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

var listDevices = audio.ListDevices

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	checks := []Check{checkConfig(cfg)}

	devices, serverCheck := checkSoundServer(ctx)
	checks = append(checks, serverCheck)
	if serverCheck.Pass {
		checks = append(checks, checkAudioSelection(devices, cfg.Config))
	}

	checks = append(checks, checkEncoding(cfg.Config))
	checks = append(checks, checkOutputDir(cfg.Config))

	if len(cfg.Config.Output.Command.Argv) > 0 {
		checks = append(checks, checkCommand(cfg.Config.Output.Command.Argv, "output.command"))
	}
	if cfg.Config.Indicator.Enable {
		checks = append(checks, checkBinary("busctl", "desktop notifications use busctl"))
	}
	if cfg.Config.History.Enable {
		checks = append(checks, checkHistory(cfg.Config))
	}

	return Report{Checks: checks}
}

func checkConfig(cfg config.Loaded) Check {
	message := fmt.Sprintf("loaded %q", cfg.Path)
	if !cfg.Exists {
		message = fmt.Sprintf("using defaults (%q not found)", cfg.Path)
	}
	if n := len(cfg.Warnings); n > 0 {
		message = fmt.Sprintf("%s with %d warning(s)", message, n)
	}
	return Check{Name: "config", Pass: true, Message: message}
}

// checkSoundServer lists sources to prove a Pulse server is reachable.
func checkSoundServer(ctx context.Context) ([]audio.Device, Check) {
	devices, err := listDevices(ctx)
	if err != nil {
		return nil, Check{Name: "audio.server", Pass: false, Message: err.Error()}
	}
	return devices, Check{Name: "audio.server", Pass: true, Message: fmt.Sprintf("%d input source(s)", len(devices))}
}

// checkAudioSelection runs device selection to surface selection/fallback issues.
func checkAudioSelection(devices []audio.Device, cfg config.Config) Check {
	selection, err := audio.SelectFrom(devices, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

func checkEncoding(cfg config.Config) Check {
	enc, err := encoding.Negotiate(cfg.Recording.Encodings, func(f audio.Format) bool {
		return f == audio.CaptureFormat
	})
	if err != nil {
		return Check{Name: "recording.encodings", Pass: false, Message: err.Error()}
	}
	return Check{Name: "recording.encodings", Pass: true, Message: fmt.Sprintf("will record %s (.%s)", enc.MediaType, enc.Extension)}
}

// checkOutputDir creates the output dir when missing and proves a file can be written there.
func checkOutputDir(cfg config.Config) Check {
	dir, err := config.ExpandHome(strings.TrimSpace(cfg.Output.Dir))
	if err != nil {
		return Check{Name: "output.dir", Pass: false, Message: err.Error()}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Check{Name: "output.dir", Pass: false, Message: fmt.Sprintf("create %s: %v", dir, err)}
	}
	probe, err := os.CreateTemp(dir, ".voxcap-doctor-*")
	if err != nil {
		return Check{Name: "output.dir", Pass: false, Message: fmt.Sprintf("%s is not writable: %v", dir, err)}
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return Check{Name: "output.dir", Pass: true, Message: fmt.Sprintf("writable %s", dir)}
}

func checkHistory(cfg config.Config) Check {
	path, err := cfg.History.ResolvedPath()
	if err != nil {
		return Check{Name: "history", Pass: false, Message: err.Error()}
	}
	store, err := history.Open(path)
	if err != nil {
		return Check{Name: "history", Pass: false, Message: err.Error()}
	}
	_ = store.Close()
	return Check{Name: "history", Pass: true, Message: fmt.Sprintf("ledger at %s", path)}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}
