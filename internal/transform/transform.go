package transform

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// Transformer maps source text to transformed text. It is a pure function
// from the relay's point of view: same input, same output, no relay state.
type Transformer interface {
	Transform(code string) (string, error)
}

// Noop returns the code unchanged. Used when no transform command is
// configured.
type Noop struct{}

func (Noop) Transform(code string) (string, error) { return code, nil }

// Command runs an external transformer program. The code is written to the
// program's stdin and the transformed code read from its stdout; a
// non-zero exit is a transform failure.
type Command struct {
	Path string
	Args []string
}

func (c Command) Transform(code string) (string, error) {
	cmd := exec.Command(c.Path, c.Args...)
	cmd.Stdin = strings.NewReader(code)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("transform %s: %w: %s", c.Path, err, msg)
		}
		return "", fmt.Errorf("transform %s: %w", c.Path, err)
	}
	return stdout.String(), nil
}
