package console

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/fatih/color"
)

// CommandTest triggers an on-demand fetch of the newest message.
const CommandTest = "test"

// Console reads operator commands line by line.
type Console struct {
	in      io.Reader
	out     io.Writer
	trigger func() error
	logger  *slog.Logger
}

// New creates a console. trigger is called for each "test" command.
func New(in io.Reader, out io.Writer, trigger func() error, logger *slog.Logger) *Console {
	return &Console{
		in:      in,
		out:     out,
		trigger: trigger,
		logger:  logger,
	}
}

// Run processes input until ctx is cancelled or the input ends.
func (c *Console) Run(ctx context.Context) error {
	hint := color.New(color.FgCyan)
	hint.Fprintf(c.out, "Type %q and press enter to fetch the latest email.\n", CommandTest)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			c.handle(line)
		}
	}
}

func (c *Console) handle(line string) {
	cmd := strings.ToLower(strings.TrimSpace(line))
	if cmd != CommandTest {
		return
	}

	c.logger.Info("manual fetch requested")
	if err := c.trigger(); err != nil {
		color.New(color.FgYellow).Fprintf(c.out, "fetch not started: %v\n", err)
		return
	}
	color.New(color.FgGreen).Fprintln(c.out, "fetching latest email...")
}
