package camcap

import (
	"os"
	"path/filepath"
	"strings"
)

// VideoForLinuxDir is where the kernel lists video devices.
const VideoForLinuxDir = "/sys/class/video4linux"

// ListDevices returns the video device nodes on the system mapped to the
// names their drivers report.
func ListDevices() (map[string]string, error) {
	return listDevices(VideoForLinuxDir, "/dev")
}

func listDevices(sysDir, devDir string) (map[string]string, error) {
	entries, err := os.ReadDir(sysDir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	devices := make(map[string]string)
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "video") {
			continue
		}
		name, err := os.ReadFile(filepath.Join(sysDir, e.Name(), "name"))
		if err != nil {
			continue
		}
		devices[filepath.Join(devDir, e.Name())] = strings.TrimSpace(string(name))
	}
	return devices, nil
}
