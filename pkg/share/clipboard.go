package share

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "share")

// ErrNoClipboard means no clipboard program was found.
var ErrNoClipboard = errors.New("no clipboard available")

// Method tells how a link reached the user.
type Method string

const (
	MethodClipboard Method = "clipboard"
	MethodPrompt    Method = "prompt"
)

// Clipboard writes text to the system clipboard.
type Clipboard interface {
	WriteText(ctx context.Context, text string) error
}

// Prompter shows text to the user for manual copying.
type Prompter interface {
	Prompt(message, text string) error
}

// WriterPrompter prints the message and the text on its own line.
type WriterPrompter struct {
	W io.Writer
}

func (p WriterPrompter) Prompt(message, text string) error {
	_, err := fmt.Fprintf(p.W, "%s\n%s\n", message, text)
	return err
}

// ClipboardError reports a copy that fell back to the prompt.
type ClipboardError struct {
	Err error
}

func (e *ClipboardError) Error() string {
	return fmt.Sprintf("clipboard: %v", e.Err)
}

func (e *ClipboardError) Unwrap() error {
	return e.Err
}

// Copy puts text on the clipboard. When that fails, or clip is nil, the
// text goes to prompt with message and the clipboard failure is returned as
// a *ClipboardError next to MethodPrompt. Only a failing prompt is fatal.
func Copy(ctx context.Context, clip Clipboard, prompt Prompter, message, text string) (Method, error) {
	var err error
	if clip == nil {
		err = ErrNoClipboard
	} else if err = clip.WriteText(ctx, text); err == nil {
		return MethodClipboard, nil
	}

	log.Debugf("clipboard unavailable, prompting: %v", err)
	if perr := prompt.Prompt(message, text); perr != nil {
		return "", fmt.Errorf("prompt: %w", perr)
	}
	return MethodPrompt, &ClipboardError{Err: err}
}

// CommandClipboard pipes text into a clipboard program.
type CommandClipboard struct {
	Name string
	Args []string
}

// DetectClipboard picks the clipboard program for this platform.
func DetectClipboard() (*CommandClipboard, error) {
	candidates := [][]string{{"xclip", "-selection", "clipboard"}, {"xsel", "--clipboard", "--input"}, {"wl-copy"}}
	switch runtime.GOOS {
	case "darwin":
		candidates = [][]string{{"pbcopy"}}
	case "windows":
		candidates = [][]string{{"clip.exe"}}
	}
	for _, c := range candidates {
		if _, err := exec.LookPath(c[0]); err == nil {
			return &CommandClipboard{Name: c[0], Args: c[1:]}, nil
		}
	}
	return nil, ErrNoClipboard
}

func (c *CommandClipboard) WriteText(ctx context.Context, text string) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Stdin = strings.NewReader(text)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", c.Name, err, strings.TrimSpace(string(out)))
	}
	return nil
}
