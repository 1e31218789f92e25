package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/harun/conflux/internal/observability"
	"github.com/harun/conflux/internal/tracing"
	"github.com/harun/conflux/pkg/commandqueue"
	"github.com/harun/conflux/pkg/coordinator"
	"github.com/harun/conflux/pkg/conversation"
	"github.com/harun/conflux/pkg/credentials"
	"github.com/harun/conflux/pkg/events"
	"github.com/harun/conflux/pkg/integrations"
	"github.com/harun/conflux/pkg/planner"
	"github.com/harun/conflux/pkg/toolexecutor"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// PlanningStatus is the status text of the planning event
const PlanningStatus = "Analyzing your request..."

const defaultEventBuffer = 32

// ConfigError is a turn rejected before any work ran
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

var (
	// ErrNoLLM rejects turns when no language model is configured
	ErrNoLLM = &ConfigError{Message: "LLM not configured. Please set GOOGLE_API_KEY."}

	// ErrNoTools rejects turns from users without connected services
	ErrNoTools = &ConfigError{Message: "No integrations connected. Please connect at least one service first."}
)

// IsConfigError reports whether err is a ConfigError
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Request is one user turn
type Request struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

// Response is the non-streaming result of a turn
type Response struct {
	Message        string                 `json:"message"`
	ActionsTaken   []events.ActionResult  `json:"actions_taken"`
	RawResponse    map[string]interface{} `json:"raw_response,omitempty"`
	ConversationID string                 `json:"conversation_id"`
}

// Planner builds a plan for a message over the connected services
type Planner interface {
	PlanTasks(ctx context.Context, message string, available []string) *planner.TaskPlan
}

// Executor runs a plan and emits its task and terminal events
type Executor interface {
	Execute(ctx context.Context, plan *planner.TaskPlan, tools *toolexecutor.ToolExecutor, message string, sink events.Sink) coordinator.Outcome
}

// Config holds the dependencies of a Service
type Config struct {
	Resolver    credentials.Resolver
	Backend     integrations.Backend
	Planner     Planner
	Executor    Executor
	Recorder    conversation.Recorder
	Queue       *commandqueue.CommandQueue
	HasLLM      bool
	EventBuffer int
	Logger      zerolog.Logger
}

// Service drives chat turns
type Service struct {
	resolver    credentials.Resolver
	backend     integrations.Backend
	planner     Planner
	executor    Executor
	recorder    conversation.Recorder
	queue       *commandqueue.CommandQueue
	hasLLM      bool
	eventBuffer int
	logger      zerolog.Logger
}

// New creates a chat service
func New(cfg Config) (*Service, error) {
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("credential resolver is required")
	}
	if cfg.Backend == nil {
		return nil, fmt.Errorf("integration backend is required")
	}
	if cfg.Planner == nil {
		return nil, fmt.Errorf("planner is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Recorder == nil {
		return nil, fmt.Errorf("conversation recorder is required")
	}

	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}

	return &Service{
		resolver:    cfg.Resolver,
		backend:     cfg.Backend,
		planner:     cfg.Planner,
		executor:    cfg.Executor,
		recorder:    cfg.Recorder,
		queue:       cfg.Queue,
		hasLLM:      cfg.HasLLM,
		eventBuffer: buffer,
		logger:      cfg.Logger,
	}, nil
}

// Stream runs one turn and returns its events. The channel closes after
// the terminal event.
func (s *Service) Stream(ctx context.Context, req Request) <-chan events.Event {
	req = withConversationID(req)
	sink := events.NewChannelSink(s.eventBuffer)

	go func() {
		defer sink.Close()
		stream := events.NewStream(sink, s.logger)
		if _, err := s.run(ctx, req, stream); err != nil && !IsConfigError(err) {
			s.logger.Error().Err(err).Str("conversationId", req.ConversationID).Msg("Streaming turn failed")
		}
	}()

	return sink.Events()
}

// Process runs one turn and returns its final response. Configuration
// errors are returned as ConfigError.
func (s *Service) Process(ctx context.Context, req Request) (*Response, error) {
	req = withConversationID(req)
	stream := events.NewStream(&events.Recorder{}, s.logger)
	return s.run(ctx, req, stream)
}

func withConversationID(req Request) Request {
	if req.ConversationID == "" {
		req.ConversationID, _ = gonanoid.New()
	}
	return req
}

// run serializes the turn on its conversation lane
func (s *Service) run(ctx context.Context, req Request, stream *events.Stream) (*Response, error) {
	ctx = tracing.NewTurnContext(ctx, req.UserID, req.ConversationID)

	if s.queue == nil {
		return s.turn(ctx, req, stream)
	}

	var resp *Response
	err := s.queue.Enqueue(ctx, commandqueue.ConversationLane(req.ConversationID), func(ctx context.Context) error {
		var err error
		resp, err = s.turn(ctx, req, stream)
		return err
	})
	if err != nil {
		// A turn dropped from the queue never reached its terminal event
		if closeErr := stream.Close(ctx, events.Error(err.Error())); closeErr != nil {
			s.logger.Warn().Err(closeErr).Msg("Failed to emit error event")
		}
		return resp, err
	}
	return resp, nil
}

func (s *Service) turn(ctx context.Context, req Request, stream *events.Stream) (*Response, error) {
	ctx, span := tracing.StartSpan(ctx, "conflux.chat", "chat.turn",
		attribute.String("conversation_id", req.ConversationID))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	reject := func(err error) (*Response, error) {
		tracing.RecordError(span, err)
		observability.RecordTurn("rejected")
		if emitErr := stream.Close(ctx, events.Error(err.Error())); emitErr != nil {
			logger.Warn().Err(emitErr).Msg("Failed to emit error event")
		}
		return nil, err
	}

	if req.UserID == "" {
		return reject(&ConfigError{Message: "user_id is required"})
	}
	if req.Message == "" {
		return reject(&ConfigError{Message: "message is required"})
	}
	if !s.hasLLM {
		return reject(ErrNoLLM)
	}

	configs, err := credentials.ResolveAll(ctx, s.resolver, req.UserID)
	if err != nil {
		return reject(fmt.Errorf("failed to load integrations: %w", err))
	}
	if len(configs) == 0 {
		return reject(ErrNoTools)
	}

	s.record(ctx, req.ConversationID, "user", req.Message, nil)

	if err := stream.Emit(ctx, events.Planning(PlanningStatus)); err != nil {
		logger.Warn().Err(err).Msg("Failed to emit planning event")
	}

	tools := integrations.BuildTools(configs, s.backend)
	plan := s.planner.PlanTasks(ctx, req.Message, connectedServices(configs))

	if err := stream.Emit(ctx, events.Plan(plan.Snapshot())); err != nil {
		logger.Warn().Err(err).Msg("Failed to emit plan event")
	}

	out := s.executor.Execute(ctx, plan, tools, req.Message, stream)

	s.record(ctx, req.ConversationID, "assistant", out.Message, out.Actions)

	status := "success"
	if out.Err != nil {
		status = "error"
		tracing.RecordError(span, out.Err)
	}
	observability.RecordTurn(status)
	logger.Info().
		Str("status", status).
		Int("tasks", plan.Total).
		Int("completed", plan.Completed).
		Int("failed", plan.Failed).
		Msg("Turn finished")

	actions := out.Actions
	if actions == nil {
		actions = []events.ActionResult{}
	}
	return &Response{
		Message:        out.Message,
		ActionsTaken:   actions,
		ConversationID: req.ConversationID,
		RawResponse: map[string]interface{}{
			"plan": plan.ToDict(),
		},
	}, nil
}

// record persists a message; failures are logged so the turn still answers
func (s *Service) record(ctx context.Context, conversationID, role, content string, actions []events.ActionResult) {
	if err := s.recorder.RecordMessage(ctx, conversationID, role, content, actions); err != nil {
		logger := tracing.LoggerFromContext(ctx, s.logger)
		logger.Error().Err(err).Str("role", role).Msg("Failed to record message")
	}
}

func connectedServices(configs map[string]integrations.ServiceConfig) []string {
	services := make([]string, 0, len(configs))
	for service := range configs {
		services = append(services, service)
	}
	sort.Strings(services)
	return services
}
