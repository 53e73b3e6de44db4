package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vishpuri/FRED/config"
	"github.com/vishpuri/FRED/fred"
	"github.com/vishpuri/FRED/llm"
	"github.com/vishpuri/FRED/mcpclient"
	"github.com/vishpuri/FRED/metrics"
	"github.com/vishpuri/FRED/session"
)

// ToolCaller invokes tools on the FRED MCP server.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcpclient.ToolResult, error)
}

// State is the stage a query is in.
type State string

const (
	StatePlanning    State = "planning"
	StateExecuting   State = "executing"
	StateSummarizing State = "summarizing"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// ProcessCallbacks lets the terminal, ACP and HTTP front ends follow a query.
type ProcessCallbacks struct {
	OnStateChange func(state State, detail string)
	OnWarning     func(warning string)
}

func (c ProcessCallbacks) state(s State, detail string) {
	if c.OnStateChange != nil {
		c.OnStateChange(s, detail)
	}
}

func (c ProcessCallbacks) warn(format string, args ...any) {
	if c.OnWarning != nil {
		c.OnWarning(fmt.Sprintf(format, args...))
	}
}

// Agent answers natural-language questions about economic data by planning
// FRED tool calls with an LLM, running them and asking the LLM to analyze
// what came back.
type Agent struct {
	llm           llm.LLMClient
	tools         ToolCaller
	registry      *fred.Registry
	allowedTools  []string
	targetSeries  []string
	transcripts   bool
	transcriptDir string
	log           zerolog.Logger
}

// New creates an agent. A nil registry means the built-in series registry.
func New(cfg *config.Config, client llm.LLMClient, caller ToolCaller, registry *fred.Registry, log zerolog.Logger) (*Agent, error) {
	if client == nil {
		return nil, fmt.Errorf("agent requires an LLM client")
	}
	if caller == nil {
		return nil, fmt.Errorf("agent requires a tool caller")
	}
	if registry == nil {
		registry = fred.NewRegistry()
	}
	allowed := cfg.Planner.AllowedTools
	if len(allowed) == 0 {
		allowed = []string{"fred_*"}
	}
	return &Agent{
		llm:          client,
		tools:        caller,
		registry:     registry,
		allowedTools: allowed,
		targetSeries: cfg.Planner.TargetSeries,
		transcripts:  cfg.Planner.SaveTranscripts,
		log:          log.With().Str("component", "agent").Logger(),
	}, nil
}

// SetTranscriptDir overrides where transcripts are saved.
func (a *Agent) SetTranscriptDir(dir string) { a.transcriptDir = dir }

// ProcessQuery plans, executes and summarizes one query.
func (a *Agent) ProcessQuery(ctx context.Context, query string, cb ProcessCallbacks) (res *Result, err error) {
	start := time.Now()
	sess := session.New(query)
	log := a.log.With().Str("session", sess.ID).Logger()
	log.Info().Str("query", query).Msg("processing query")

	defer func() {
		metrics.ObserveQuery(time.Since(start), err == nil)
		if err != nil {
			cb.state(StateFailed, err.Error())
			log.Error().Err(err).Msg("query failed")
		} else {
			cb.state(StateDone, "")
			log.Info().Dur("elapsed", time.Since(start)).Msg("query complete")
		}
		if a.transcripts {
			if serr := sess.Save(a.transcriptDir); serr != nil {
				log.Warn().Err(serr).Msg("failed to save transcript")
			}
		}
	}()

	cb.state(StatePlanning, query)
	plan, err := a.Plan(ctx, sess)
	if err != nil {
		return nil, err
	}
	log.Info().Str("intent", plan.Intent).Int("steps", len(plan.Steps)).Msg("execution plan")

	cb.state(StateExecuting, plan.Intent)
	data, err := a.Execute(ctx, plan, cb)
	if err != nil {
		return nil, err
	}
	log.Info().Int("series", data.Len()).Msg("MCP data retrieved")

	cb.state(StateSummarizing, fmt.Sprintf("%d series", data.Len()))
	return a.Summarize(ctx, sess, plan, data)
}

// chat sends messages, recording both sides in the transcript.
func (a *Agent) chat(ctx context.Context, sess *session.Session, msgs []session.Message) (string, error) {
	for _, m := range msgs {
		sess.AddMessage(m)
	}
	reply, err := a.llm.Chat(ctx, msgs)
	if err != nil {
		return "", err
	}
	sess.AddMessage(*reply)
	return reply.Content, nil
}

// Plan asks the LLM for an execution plan for the session's query.
func (a *Agent) Plan(ctx context.Context, sess *session.Session) (*Plan, error) {
	reply, err := a.chat(ctx, sess, a.planMessages(sess.Query))
	if err != nil {
		return nil, fmt.Errorf("failed to create execution plan: %w", err)
	}
	return parsePlan(reply)
}
