package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/docs"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/executor"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/knowledge"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/pipeline"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/store"
)

const (
	serverName    = "autoclawd"
	serverVersion = "0.1.0"
)

const instructions = `autoclawd turns things said out loud into a world model, a todo list, and tasks.
Use world_model to read what is known about the user, list_tasks to see pending work,
ingest_transcript to feed text through the pipeline, and synthesize to fold new knowledge into the documents.`

// Deps are the components the MCP tools read and drive.
type Deps struct {
	Processor   *pipeline.Processor
	Synthesizer *knowledge.Synthesizer
	Documents   *docs.Store
	Pipeline    *store.PipelineStore
	Runner      *executor.Runner
}

// NewServer builds the stdio MCP server with every tool registered.
func NewServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	t := &Tools{deps: deps}
	s.AddTool(t.ListTasksDefinition(), t.ListTasks)
	s.AddTool(t.WorldModelDefinition(), t.WorldModel)
	s.AddTool(t.SynthesizeDefinition(), t.Synthesize)
	s.AddTool(t.IngestDefinition(), t.Ingest)
	if deps.Runner != nil {
		s.AddTool(t.AnswerDefinition(), t.Answer)
	}
	return s
}

// Serve blocks serving MCP over stdin/stdout.
func Serve(deps Deps) error {
	return server.ServeStdio(NewServer(deps))
}
