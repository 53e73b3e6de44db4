package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/vishpuri/FRED/agent"
)

// Terminal answers questions typed at an interactive prompt.
type Terminal struct {
	agent *agent.Agent
	in    io.Reader
	out   io.Writer
}

// New creates a Terminal reading stdin and writing stdout.
func New(a *agent.Agent) *Terminal {
	return &Terminal{agent: a, in: os.Stdin, out: os.Stdout}
}

// WithIO replaces the terminal's input and output.
func (t *Terminal) WithIO(in io.Reader, out io.Writer) *Terminal {
	t.in, t.out = in, out
	return t
}

// Run starts the interactive session. An initial question, when given, is
// answered before the first prompt.
func (t *Terminal) Run(ctx context.Context, initialQuery string) error {
	if initialQuery != "" {
		if err := t.processTurn(ctx, initialQuery); err != nil {
			fmt.Fprintf(t.out, "Error: %v\n", err)
		}
	}

	scanner := bufio.NewScanner(t.in)
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(t.out, "You: ")
		if !scanner.Scan() {
			// EOF or read error ends the session
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if query == "/quit" || query == "/exit" {
			break
		}

		if err := t.processTurn(ctx, query); err != nil {
			fmt.Fprintf(t.out, "Error: %v\n", err)
		}
	}
	return scanner.Err()
}

func (t *Terminal) processTurn(ctx context.Context, query string) error {
	callbacks := agent.ProcessCallbacks{
		OnStateChange: func(s agent.State, detail string) {
			switch s {
			case agent.StatePlanning, agent.StateExecuting, agent.StateSummarizing:
				fmt.Fprintf(t.out, "[%s] %s\n", s, detail)
			}
		},
		OnWarning: func(warning string) {
			fmt.Fprintf(t.out, "Warning: %s\n", warning)
		},
	}

	res, err := t.agent.ProcessQuery(ctx, query, callbacks)
	if err != nil {
		return err
	}
	t.print(res)
	return nil
}

func (t *Terminal) print(res *agent.Result) {
	fmt.Fprintf(t.out, "FRED: %s\n", res.Answer)
	for _, r := range res.Rankings {
		sign := ""
		if r.GrowthValue > 0 {
			sign = "+"
		}
		fmt.Fprintf(t.out, "  %d. %s (%s): %s%.1fk (%.2f%%)\n", r.Rank, r.Sector, r.SeriesID, sign, r.GrowthValue, r.GrowthPercent)
	}
	if res.Analysis.Methodology != "" {
		fmt.Fprintf(t.out, "Method: %s\n", res.Analysis.Methodology)
	}
}
