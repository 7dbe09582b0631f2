// Package browser opens URLs in the user's default browser through the
// platform's own launcher command.
package browser

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Opener launches URLs with open / cmd start / xdg-open depending on the
// platform. It satisfies auth.Launcher.
type Opener struct{}

// Open starts the platform browser on url without waiting for it.
func (Opener) Open(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("cmd", "/C", "start", "", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
