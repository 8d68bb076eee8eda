// Package browser opens citation links from the terminal client.
package browser

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/atotto/clipboard"
)

// ErrCopied reports that no browser could be launched and the link was put
// on the clipboard instead.
var ErrCopied = errors.New("link copied to clipboard")

type Opener struct {
	launch func(url string) error
	copy   func(text string) error
}

func New() *Opener {
	return &Opener{launch: launch, copy: clipboard.WriteAll}
}

func (o *Opener) Open(url string) error {
	launchErr := o.launch(url)
	if launchErr == nil {
		return nil
	}
	if err := o.copy(url); err != nil {
		return fmt.Errorf("open %s: %v; clipboard: %w", url, launchErr, err)
	}
	return ErrCopied
}

// Copy puts text on the system clipboard.
func (o *Opener) Copy(text string) error {
	return o.copy(text)
}

func launch(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
