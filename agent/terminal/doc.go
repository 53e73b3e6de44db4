// Package terminal implements the interactive command-line mode.
//
// Each line typed at the "You: " prompt is answered by the agent. Stage
// changes and skipped steps are printed as they happen, followed by the
// answer and the sector rankings. /quit, /exit or EOF end the session.
//
//	term := terminal.New(a)
//	err := term.Run(ctx, initialQuery)
package terminal
