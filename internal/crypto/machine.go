package crypto

import (
	"os"
	"runtime"
	"strings"
)

// MachineID returns a platform-specific machine identifier used to derive
// the secret encryption key.
func MachineID() string {
	hostname, _ := os.Hostname()
	switch runtime.GOOS {
	case "darwin":
		return "macos:" + hostname
	case "windows":
		return "windows:" + hostname
	default:
		return linuxMachineID(hostname)
	}
}

// linuxMachineID prefers the systemd or dbus machine-id over the hostname.
func linuxMachineID(hostname string) string {
	for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if data, err := os.ReadFile(path); err == nil {
			if id := strings.TrimSpace(string(data)); id != "" {
				return "linux:" + id
			}
		}
	}
	return "linux:" + hostname
}
