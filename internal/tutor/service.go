package tutor

import (
	"context"
	"errors"
	"log"
	"sync"

	"gorm.io/gorm"

	"github.com/pytutor/pytutor/internal/ai"
	"github.com/pytutor/pytutor/internal/common"
)

// TurnErrorPrefix marks a caller-visible turn failure. InvokeTurn never
// returns an error past its boundary; the UI displays the string as-is.
const TurnErrorPrefix = "⚠️ Error: "

const (
	defaultProvider = "groq"
	defaultModel    = "llama-3.3-70b-versatile"
)

type Service struct {
	repo     *Repo
	registry *ai.Registry

	mu          sync.Mutex
	threadLocks map[string]*sync.Mutex
}

func NewService(repo *Repo, registry *ai.Registry) *Service {
	return &Service{
		repo:        repo,
		registry:    registry,
		threadLocks: make(map[string]*sync.Mutex),
	}
}

// lockThread serializes turns on one thread. Two simultaneous turns for the
// same thread id would otherwise interleave their appends out of
// conversational order.
func (s *Service) lockThread(threadID string) func() {
	s.mu.Lock()
	l, ok := s.threadLocks[threadID]
	if !ok {
		l = &sync.Mutex{}
		s.threadLocks[threadID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// CreateThread allocates a thread id and seeds the persona system message,
// exactly once, before the first user turn.
func (s *Service) CreateThread(ctx context.Context, userID uint64, provider, model string) (*Thread, error) {
	if provider == "" {
		provider = defaultProvider
	}
	if model == "" {
		model = defaultModel
	}

	tid, err := common.NewULID()
	if err != nil {
		return nil, err
	}

	thread := &Thread{
		ThreadID: tid,
		UserID:   userID,
		Provider: provider,
		Model:    model,
	}
	seed := &Message{
		Role:    RoleSystem,
		Content: SystemPrompt,
	}
	if err := s.repo.CreateThreadWithSeed(ctx, thread, seed); err != nil {
		return nil, err
	}
	return thread, nil
}

func (s *Service) getThreadForUser(ctx context.Context, userID uint64, threadID string) (*Thread, error) {
	thread, err := s.repo.GetThreadByThreadID(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread.UserID != userID {
		// hide existence
		return nil, gorm.ErrRecordNotFound
	}
	return thread, nil
}

func (s *Service) providerForThread(ctx context.Context, t *Thread) (ai.Provider, error) {
	p := t.Provider
	m := t.Model
	if p == "" {
		p = defaultProvider
	}
	if m == "" {
		m = defaultModel
	}
	return s.registry.Get(ctx, p, m)
}

// InvokeTurn runs one full turn and always returns something displayable.
// Faults become a string carrying TurnErrorPrefix; the user message persisted
// in step 1 stays persisted regardless of later failures.
func (s *Service) InvokeTurn(ctx context.Context, userID uint64, threadID string, userText string) string {
	reply, err := s.runTurn(ctx, userID, threadID, userText)
	if err != nil {
		log.Printf("turn failed thread=%s err=%v", threadID, err)
		return TurnErrorPrefix + err.Error()
	}
	return reply
}

// runTurn is the per-turn protocol, strictly sequential, single attempt:
// persist user message, load history, classify, route to one strategy,
// persist the reply, return it.
func (s *Service) runTurn(ctx context.Context, userID uint64, threadID string, userText string) (string, error) {
	unlock := s.lockThread(threadID)
	defer unlock()

	thread, err := s.getThreadForUser(ctx, userID, threadID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", errors.New("thread not found")
		}
		return "", err
	}

	provider, err := s.providerForThread(ctx, thread)
	if err != nil {
		return "", err
	}

	// 1) persist the incoming user message first: it must not be lost even
	// if generation fails below.
	if err := s.repo.AppendMessage(ctx, &Message{
		ThreadID: threadID,
		Role:     RoleUser,
		Content:  userText,
	}); err != nil {
		return "", err
	}

	// 2) load the full ordered history
	msgs, err := s.repo.LoadMessages(ctx, threadID)
	if err != nil {
		return "", err
	}

	// 3) classify, 4) route to exactly one strategy
	label := Classify(ctx, provider, msgs)
	reply, err := routeTurn(label)(ctx, provider, msgs, userText)
	if err != nil {
		return "", err
	}

	// 5) persist the assistant reply
	if err := s.repo.AppendMessage(ctx, &Message{
		ThreadID: threadID,
		Role:     RoleAssistant,
		Content:  reply,
	}); err != nil {
		return "", err
	}

	return reply, nil
}

// GenerateAssistantReplyAndInsert is the worker half of an async turn: the
// user message was persisted when the job was created, so this classifies,
// routes, generates and persists only the assistant reply.
func (s *Service) GenerateAssistantReplyAndInsert(ctx context.Context, userID uint64, threadID string) (string, uint64, error) {
	unlock := s.lockThread(threadID)
	defer unlock()

	thread, err := s.getThreadForUser(ctx, userID, threadID)
	if err != nil {
		return "", 0, err
	}

	provider, err := s.providerForThread(ctx, thread)
	if err != nil {
		return "", 0, err
	}

	msgs, err := s.repo.LoadMessages(ctx, threadID)
	if err != nil {
		return "", 0, err
	}

	userText := latestUserText(msgs)
	label := Classify(ctx, provider, msgs)
	reply, err := routeTurn(label)(ctx, provider, msgs, userText)
	if err != nil {
		return "", 0, err
	}

	assistantMsg := &Message{
		ThreadID: threadID,
		Role:     RoleAssistant,
		Content:  reply,
	}
	if err := s.repo.AppendMessage(ctx, assistantMsg); err != nil {
		return "", 0, err
	}
	return reply, assistantMsg.ID, nil
}

func (s *Service) InsertUserMessage(ctx context.Context, userID uint64, threadID string, content string) error {
	if _, err := s.getThreadForUser(ctx, userID, threadID); err != nil {
		return err
	}
	return s.repo.AppendMessage(ctx, &Message{
		ThreadID: threadID,
		Role:     RoleUser,
		Content:  content,
	})
}

func (s *Service) ListMessages(ctx context.Context, userID uint64, threadID string, limit int, beforeID uint64) ([]Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if _, err := s.getThreadForUser(ctx, userID, threadID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, threadID, limit, beforeID)
}

func (s *Service) ValidateThreadOwner(ctx context.Context, userID uint64, threadID string) error {
	_, err := s.getThreadForUser(ctx, userID, threadID)
	return err
}

func (s *Service) CreateJob(ctx context.Context, job *Job) error {
	return s.repo.CreateJob(ctx, job)
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return s.repo.GetJobByID(ctx, jobID)
}

func (s *Service) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	return s.repo.CreateJobOrGetExisting(ctx, job)
}
