package tui

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

var errNoClipboard = errors.New("no clipboard tool: install wl-copy, xclip or xsel")

// clipboardCommand picks the tool that writes the system clipboard.
func clipboardCommand() (*exec.Cmd, error) {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("pbcopy"), nil
	case "linux", "freebsd", "openbsd":
		candidates := [][]string{
			{"xclip", "-selection", "clipboard"},
			{"xsel", "--clipboard", "--input"},
		}
		if os.Getenv("WAYLAND_DISPLAY") != "" {
			candidates = append([][]string{{"wl-copy"}}, candidates...)
		}
		for _, c := range candidates {
			if _, err := exec.LookPath(c[0]); err == nil {
				return exec.Command(c[0], c[1:]...), nil
			}
		}
		return nil, errNoClipboard
	}
	return nil, fmt.Errorf("clipboard not supported on %s", runtime.GOOS)
}

// copyToClipboard copies text to the system clipboard.
func copyToClipboard(text string) error {
	cmd, err := clipboardCommand()
	if err != nil {
		return err
	}

	cmd.Stdin = strings.NewReader(text)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}
	return nil
}
