package indicator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func installBusctlStub(t *testing.T, body string) string {
	t.Helper()

	dir := t.TempDir()
	argsFile := filepath.Join(dir, "busctl-args.log")
	script := "#!/usr/bin/env bash\nset -euo pipefail\nprintf '%s\\n' \"$*\" >> " + argsFile + "\n" + body + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "busctl"), []byte(script), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
	return argsFile
}

func TestDesktopNotifyParsesID(t *testing.T) {
	argsFile := installBusctlStub(t, `echo "u 42"`)

	id, err := desktopNotify(context.Background(), "voxcap", 7, "Voice sample", "Recording", 0)
	require.NoError(t, err)
	require.Equal(t, uint32(42), id)

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	args := strings.TrimSpace(string(data))
	require.True(t, strings.HasPrefix(args, "--user call org.freedesktop.Notifications /org/freedesktop/Notifications org.freedesktop.Notifications Notify susssasa{sv}i voxcap 7"))
	require.True(t, strings.HasSuffix(args, "Voice sample Recording 0 0 0"))
}

func TestDesktopNotifyRejectsBadReply(t *testing.T) {
	installBusctlStub(t, `echo "s nope"`)

	_, err := desktopNotify(context.Background(), "voxcap", 0, "t", "b", 0)
	require.ErrorContains(t, err, "unexpected Notify reply")
}

func TestDesktopNotifyReportsCommandOutput(t *testing.T) {
	installBusctlStub(t, `echo "Failed to connect to bus" >&2; exit 1`)

	_, err := desktopNotify(context.Background(), "voxcap", 0, "t", "b", 0)
	require.ErrorContains(t, err, "busctl Notify")
	require.ErrorContains(t, err, "Failed to connect to bus")
}

func TestDesktopDismiss(t *testing.T) {
	argsFile := installBusctlStub(t, `exit 0`)

	require.NoError(t, desktopDismiss(context.Background(), 9))

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	require.Contains(t, string(data), "CloseNotification u 9")
}
