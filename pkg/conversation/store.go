package conversation

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harun/conflux/internal/observability"
	"github.com/harun/conflux/internal/tracing"
	"github.com/harun/conflux/pkg/events"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const fileSuffix = ".jsonl"

// Message is one persisted conversation message
type Message struct {
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`

	Actions []events.ActionResult `json:"-"`
}

// Entry is one line of a conversation file
type Entry struct {
	ConversationID string  `json:"conversationId"`
	Message        Message `json:"message"`
}

// Recorder persists chat messages
type Recorder interface {
	RecordMessage(ctx context.Context, conversationID, role, content string, actions []events.ActionResult) error
}

// Store keeps one JSONL file per conversation
type Store struct {
	dir    string
	logger zerolog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewStore creates a store rooted at dir
func NewStore(dir string, logger zerolog.Logger) (*Store, error) {
	observability.EnsureRegistered()

	if dir == "" {
		return nil, fmt.Errorf("conversations directory is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create conversations directory: %w", err)
	}

	logger.Info().Str("dir", dir).Msg("Conversation store initialized")

	return &Store{
		dir:    dir,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// ValidateID rejects ids that could escape the store directory
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("conversation id cannot be empty")
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("conversation id cannot contain '..'")
	}
	if strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("conversation id cannot contain path separators")
	}
	if strings.Contains(id, "\x00") {
		return fmt.Errorf("conversation id cannot contain null bytes")
	}
	return nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+fileSuffix)
}

func (s *Store) lock(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	if l, ok := s.locks[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[id] = l
	return l
}

// RecordMessage implements Recorder. Actions are stored under the
// actions_taken metadata key.
func (s *Store) RecordMessage(ctx context.Context, conversationID, role, content string, actions []events.ActionResult) error {
	msg := Message{Role: role, Content: content, Timestamp: time.Now().UTC()}
	if actions != nil {
		msg.Metadata = map[string]interface{}{"actions_taken": actions}
	}
	return s.Append(ctx, conversationID, msg)
}

// Append writes msg as one line of the conversation file
func (s *Store) Append(ctx context.Context, conversationID string, msg Message) error {
	ctx = tracing.WithConversationID(ctx, conversationID)
	ctx, span := tracing.StartSpan(ctx, "conflux.conversation", "conversation.record",
		attribute.String("conversation_id", conversationID),
		attribute.String("role", msg.Role))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	start := time.Now()
	defer func() {
		observability.RecordConversationWrite(time.Since(start))
	}()

	if err := ValidateID(conversationID); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	if msg.Role == "" {
		return fmt.Errorf("message role cannot be empty")
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if msg.Actions != nil && msg.Metadata == nil {
		msg.Metadata = map[string]interface{}{"actions_taken": msg.Actions}
	}

	data, err := json.Marshal(Entry{ConversationID: conversationID, Message: msg})
	if err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	l := s.lock(conversationID)
	l.Lock()
	defer l.Unlock()

	file, err := os.OpenFile(s.path(conversationID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("failed to open conversation file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(data, '\n')); err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := file.Sync(); err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("failed to sync file: %w", err)
	}

	logger.Debug().Str("role", msg.Role).Msg("Message recorded")
	return nil
}

// Load returns the messages of a conversation in write order. A missing
// conversation is empty; corrupt lines are skipped.
func (s *Store) Load(ctx context.Context, conversationID string) ([]Message, error) {
	ctx = tracing.WithConversationID(ctx, conversationID)
	ctx, span := tracing.StartSpan(ctx, "conflux.conversation", "conversation.load",
		attribute.String("conversation_id", conversationID))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	if err := ValidateID(conversationID); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	file, err := os.Open(s.path(conversationID))
	if errors.Is(err, os.ErrNotExist) {
		return []Message{}, nil
	}
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("failed to open conversation file: %w", err)
	}
	defer file.Close()

	messages := []Message{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			logger.Warn().Int("line", lineNum).Err(err).Msg("Failed to parse line, skipping")
			continue
		}
		if entry.Message.Role == "" {
			logger.Warn().Int("line", lineNum).Msg("Invalid entry, skipping")
			continue
		}

		entry.Message.Actions = decodeActions(entry.Message.Metadata)
		messages = append(messages, entry.Message)
	}

	if err := scanner.Err(); err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("failed to read conversation file: %w", err)
	}

	return messages, nil
}

// List returns the stored conversation ids, sorted
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read conversations directory: %w", err)
	}

	ids := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, fileSuffix))
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes a conversation. Deleting a missing conversation succeeds.
func (s *Store) Delete(ctx context.Context, conversationID string) error {
	if err := ValidateID(conversationID); err != nil {
		return err
	}

	l := s.lock(conversationID)
	l.Lock()
	defer l.Unlock()

	if err := os.Remove(s.path(conversationID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete conversation file: %w", err)
	}

	s.locksMu.Lock()
	delete(s.locks, conversationID)
	s.locksMu.Unlock()

	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Info().Str("conversationId", conversationID).Msg("Conversation deleted")
	return nil
}

// Prune deletes conversations not written to within maxAge and returns
// how many were removed
func (s *Store) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	ids, err := s.List()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, id := range ids {
		info, err := os.Stat(s.path(id))
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := s.Delete(ctx, id); err != nil {
			s.logger.Warn().Err(err).Str("conversationId", id).Msg("Failed to prune conversation")
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info().Int("removed", removed).Dur("maxAge", maxAge).Msg("Pruned idle conversations")
	}
	return removed, nil
}

// decodeActions recovers typed actions from decoded metadata
func decodeActions(metadata map[string]interface{}) []events.ActionResult {
	raw, ok := metadata["actions_taken"]
	if !ok {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var actions []events.ActionResult
	if err := json.Unmarshal(data, &actions); err != nil {
		return nil
	}
	return actions
}
