package console

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Streams are the operator-facing input and outputs. Stage output and the
// run banners go here; structured logs go to the zap logger instead.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

func StdStreams() Streams {
	return Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

// Unattended writes to stdout and stderr but has no input, so every prompt
// is answered with no.
func Unattended() Streams {
	return Streams{In: strings.NewReader(""), Out: os.Stdout, Err: os.Stderr}
}

// Discard drops all output and reads nothing.
func Discard() Streams {
	return Streams{In: strings.NewReader(""), Out: io.Discard, Err: io.Discard}
}

// Confirm asks a yes/no question. Only "y" or "yes" count as yes; EOF is no.
func Confirm(s Streams, question string) (bool, error) {
	if _, err := fmt.Fprintf(s.Out, "%s (y/n): ", question); err != nil {
		return false, err
	}
	line, err := bufio.NewReader(s.In).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Banner prints the section header used between pipeline steps.
func Banner(w io.Writer, title string) {
	line := strings.Repeat("=", 80)
	_, _ = fmt.Fprintf(w, "\n%s\n%s\n%s\n", line, title, line)
}
