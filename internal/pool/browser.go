package pool

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

// BrowserOpener opens a URL in the user's browser.
type BrowserOpener interface {
	Open(ctx context.Context, url string) error
}

// BrowserOpenerFunc adapts a function to BrowserOpener.
type BrowserOpenerFunc func(ctx context.Context, url string) error

func (f BrowserOpenerFunc) Open(ctx context.Context, url string) error {
	return f(ctx, url)
}

// SystemBrowser opens URLs with the platform's default handler.
type SystemBrowser struct{}

func (SystemBrowser) Open(ctx context.Context, url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "linux", "freebsd", "openbsd", "netbsd":
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "explorer", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
