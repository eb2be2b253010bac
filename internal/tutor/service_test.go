package tutor

import (
	"context"
	"errors"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/pytutor/pytutor/internal/ai"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Thread{}, &Message{}, &Job{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, prov ai.Provider) (*Service, *Repo) {
	t.Helper()
	repo := NewRepo(openTestDB(t))

	reg := ai.NewRegistry()
	reg.Register("fake", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		_ = model
		return prov, nil
	})

	return NewService(repo, reg), repo
}

func mustCreateThread(t *testing.T, svc *Service, userID uint64) *Thread {
	t.Helper()
	thread, err := svc.CreateThread(context.Background(), userID, "fake", "default")
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}
	return thread
}

func TestCreateThread_SeedsSystemMessage(t *testing.T) {
	prov := &scriptedProvider{}
	svc, repo := newTestService(t, prov)

	thread := mustCreateThread(t, svc, 1)

	msgs, err := repo.LoadMessages(context.Background(), thread.ThreadID)
	if err != nil {
		t.Fatalf("load messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 seeded message, got %d", len(msgs))
	}
	if msgs[0].Role != RoleSystem || msgs[0].Content != SystemPrompt {
		t.Fatalf("unexpected seed: role=%q", msgs[0].Role)
	}
}

func TestInvokeTurn_GreetingEndToEnd(t *testing.T) {
	prov := &scriptedProvider{replies: []string{
		"greeting",
		"Hello! I'm PyTutor. Ask me anything about PyTorch or Python.",
	}}
	svc, repo := newTestService(t, prov)
	thread := mustCreateThread(t, svc, 1)

	reply := svc.InvokeTurn(context.Background(), 1, thread.ThreadID, "Hi there")

	if reply == "" {
		t.Fatalf("expected non-empty reply")
	}
	if strings.HasPrefix(reply, TurnErrorPrefix) {
		t.Fatalf("unexpected turn error: %q", reply)
	}

	msgs, err := repo.LoadMessages(context.Background(), thread.ThreadID)
	if err != nil {
		t.Fatalf("load messages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected system+user+assistant = 3 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleSystem {
		t.Fatalf("message 0 role = %q, want system", msgs[0].Role)
	}
	if msgs[1].Role != RoleUser || msgs[1].Content != "Hi there" {
		t.Fatalf("message 1 = role %q content %q", msgs[1].Role, msgs[1].Content)
	}
	if msgs[2].Role != RoleAssistant || msgs[2].Content != reply {
		t.Fatalf("message 2 = role %q content %q", msgs[2].Role, msgs[2].Content)
	}
}

func TestInvokeTurn_PersistenceOrdering(t *testing.T) {
	// classify + generate per turn
	prov := &scriptedProvider{replies: []string{
		"explanation", "Tensors are arrays.",
		"explanation", "Autograd records operations.",
		"explanation", "Modules hold parameters.",
	}}
	svc, repo := newTestService(t, prov)
	thread := mustCreateThread(t, svc, 1)

	questions := []string{
		"What is a tensor?",
		"What does autograd do?",
		"What is nn.Module?",
	}
	for _, q := range questions {
		if reply := svc.InvokeTurn(context.Background(), 1, thread.ThreadID, q); strings.HasPrefix(reply, TurnErrorPrefix) {
			t.Fatalf("turn failed: %q", reply)
		}
	}

	msgs, err := repo.LoadMessages(context.Background(), thread.ThreadID)
	if err != nil {
		t.Fatalf("load messages: %v", err)
	}
	if want := 1 + 2*len(questions); len(msgs) != want {
		t.Fatalf("expected %d messages after %d turns, got %d", want, len(questions), len(msgs))
	}
	for i, q := range questions {
		um := msgs[1+2*i]
		am := msgs[2+2*i]
		if um.Role != RoleUser || um.Content != q {
			t.Fatalf("turn %d user message out of order: role=%q content=%q", i, um.Role, um.Content)
		}
		if am.Role != RoleAssistant {
			t.Fatalf("turn %d assistant message out of order: role=%q", i, am.Role)
		}
	}
}

func TestInvokeTurn_IrrelevantRefusesWithoutGenerationCall(t *testing.T) {
	prov := &scriptedProvider{replies: []string{"irrelevant"}}
	svc, repo := newTestService(t, prov)
	thread := mustCreateThread(t, svc, 1)

	reply := svc.InvokeTurn(context.Background(), 1, thread.ThreadID, "What's the capital of France?")

	if reply != RefusalReply {
		t.Fatalf("reply = %q, want fixed refusal sentence", reply)
	}
	// one call total: the classification. The refusal itself is pure.
	if len(prov.calls) != 1 {
		t.Fatalf("expected 1 provider call, got %d", len(prov.calls))
	}

	msgs, err := repo.LoadMessages(context.Background(), thread.ThreadID)
	if err != nil {
		t.Fatalf("load messages: %v", err)
	}
	if msgs[len(msgs)-1].Content != RefusalReply {
		t.Fatalf("refusal was not persisted as the assistant reply")
	}
}

func TestInvokeTurn_UnparsableClassificationRefuses(t *testing.T) {
	prov := &scriptedProvider{replies: []string{"I'd say that's about code, probably"}}
	svc, _ := newTestService(t, prov)
	thread := mustCreateThread(t, svc, 1)

	reply := svc.InvokeTurn(context.Background(), 1, thread.ThreadID, "import torch")

	if reply != RefusalReply {
		t.Fatalf("reply = %q, want refusal on unparsable classification", reply)
	}
	if len(prov.calls) != 1 {
		t.Fatalf("expected no generation call after classification fault, got %d calls", len(prov.calls))
	}
}

func TestInvokeTurn_GenerationFailureKeepsUserMessage(t *testing.T) {
	prov := &scriptedProvider{
		replies: []string{"code"},
		err:     errors.New("model timed out"),
	}
	svc, repo := newTestService(t, prov)
	thread := mustCreateThread(t, svc, 1)

	reply := svc.InvokeTurn(context.Background(), 1, thread.ThreadID, "fix my training loop")

	if !strings.HasPrefix(reply, TurnErrorPrefix) {
		t.Fatalf("reply = %q, want error marker prefix", reply)
	}

	msgs, err := repo.LoadMessages(context.Background(), thread.ThreadID)
	if err != nil {
		t.Fatalf("load messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected system+user after failed generation, got %d messages", len(msgs))
	}
	if msgs[1].Role != RoleUser || msgs[1].Content != "fix my training loop" {
		t.Fatalf("user message lost after generation failure")
	}
}

func TestInvokeTurn_CodeSubRouting(t *testing.T) {
	cases := []struct {
		input        string
		wantFragment string
	}{
		{"please fix this error in my backward pass", "corrected version"},
		{"write a dataloader for MNIST", "Current Question"},
	}

	for _, tc := range cases {
		prov := &scriptedProvider{replies: []string{"code", "here you go"}}
		svc, _ := newTestService(t, prov)
		thread := mustCreateThread(t, svc, 1)

		reply := svc.InvokeTurn(context.Background(), 1, thread.ThreadID, tc.input)
		if strings.HasPrefix(reply, TurnErrorPrefix) {
			t.Fatalf("turn failed: %q", reply)
		}

		if len(prov.calls) != 2 {
			t.Fatalf("expected classify+generate calls, got %d", len(prov.calls))
		}
		genPrompt := prov.calls[1][0].Content
		if !strings.Contains(genPrompt, tc.wantFragment) {
			t.Fatalf("input %q: generation prompt missing %q", tc.input, tc.wantFragment)
		}
		if !strings.Contains(genPrompt, tc.input) {
			t.Fatalf("input %q: generation prompt missing the question", tc.input)
		}
	}
}

func TestInvokeTurn_UnknownThread(t *testing.T) {
	prov := &scriptedProvider{replies: []string{"greeting"}}
	svc, _ := newTestService(t, prov)

	reply := svc.InvokeTurn(context.Background(), 1, "01UNKNOWNTHREAD00000000000", "Hi")
	if !strings.HasPrefix(reply, TurnErrorPrefix) {
		t.Fatalf("reply = %q, want error marker prefix for unknown thread", reply)
	}
	if len(prov.calls) != 0 {
		t.Fatalf("expected no provider calls for unknown thread, got %d", len(prov.calls))
	}
}

func TestInvokeTurn_ThreadOwnershipHidden(t *testing.T) {
	prov := &scriptedProvider{replies: []string{"greeting"}}
	svc, _ := newTestService(t, prov)
	thread := mustCreateThread(t, svc, 1)

	reply := svc.InvokeTurn(context.Background(), 2, thread.ThreadID, "Hi")
	if !strings.HasPrefix(reply, TurnErrorPrefix) {
		t.Fatalf("reply = %q, want error for foreign thread", reply)
	}
}

func TestGenerateAssistantReplyAndInsert(t *testing.T) {
	prov := &scriptedProvider{replies: []string{"explanation", "Backprop computes gradients."}}
	svc, repo := newTestService(t, prov)
	thread := mustCreateThread(t, svc, 7)

	// async flow: the user message is persisted before the job runs
	if err := svc.InsertUserMessage(context.Background(), 7, thread.ThreadID, "What is backpropagation in PyTorch?"); err != nil {
		t.Fatalf("insert user message: %v", err)
	}

	reply, msgID, err := svc.GenerateAssistantReplyAndInsert(context.Background(), 7, thread.ThreadID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if reply != "Backprop computes gradients." {
		t.Fatalf("unexpected reply %q", reply)
	}
	if msgID == 0 {
		t.Fatalf("expected assistant message id")
	}

	msgs, err := repo.LoadMessages(context.Background(), thread.ThreadID)
	if err != nil {
		t.Fatalf("load messages: %v", err)
	}
	if len(msgs) != 3 || msgs[2].ID != msgID {
		t.Fatalf("assistant message not persisted at end of thread")
	}
}

func TestAsyncTurnRetry_DedupKeepsUserMessageAndJob(t *testing.T) {
	prov := &scriptedProvider{}
	svc, repo := newTestService(t, prov)
	thread := mustCreateThread(t, svc, 1)
	key := "retry-key-1"

	// First attempt: the user message is persisted before the job, then the
	// process dies before publishing.
	if err := svc.InsertUserMessage(context.Background(), 1, thread.ThreadID, "fix my loop"); err != nil {
		t.Fatalf("insert user message: %v", err)
	}
	first, created, err := svc.CreateJobOrGetExisting(context.Background(), &Job{
		ID:             "01JOBRETRY0000000000000001",
		UserID:         1,
		ThreadID:       thread.ThreadID,
		Prompt:         "fix my loop",
		IdempotencyKey: &key,
		Status:         JobQueued,
	})
	if err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	if !created {
		t.Fatalf("first attempt should create the job")
	}

	// Retry with the same key: dedup hands back the original job, still
	// queued, so the caller publishes it again instead of abandoning it.
	second, created, err := svc.CreateJobOrGetExisting(context.Background(), &Job{
		ID:             "01JOBRETRY0000000000000002",
		UserID:         1,
		ThreadID:       thread.ThreadID,
		Prompt:         "fix my loop",
		IdempotencyKey: &key,
		Status:         JobQueued,
	})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if created {
		t.Fatalf("retry created a second job")
	}
	if second.ID != first.ID {
		t.Fatalf("retry job id = %q, want %q", second.ID, first.ID)
	}
	if second.Status != JobQueued {
		t.Fatalf("retry job status = %q, want %q", second.Status, JobQueued)
	}

	msgs, err := repo.LoadMessages(context.Background(), thread.ThreadID)
	if err != nil {
		t.Fatalf("load messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected system+user after retry, got %d messages", len(msgs))
	}
	if msgs[1].Role != RoleUser || msgs[1].Content != "fix my loop" {
		t.Fatalf("user message missing from transcript after retry")
	}
}

func TestListMessages_OwnershipAndPagination(t *testing.T) {
	prov := &scriptedProvider{replies: []string{"chitchat", "You're welcome!"}}
	svc, _ := newTestService(t, prov)
	thread := mustCreateThread(t, svc, 1)

	if reply := svc.InvokeTurn(context.Background(), 1, thread.ThreadID, "Thanks!"); strings.HasPrefix(reply, TurnErrorPrefix) {
		t.Fatalf("turn failed: %q", reply)
	}

	msgs, err := svc.ListMessages(context.Background(), 1, thread.ThreadID, 2, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 newest messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleAssistant || msgs[1].Role != RoleUser {
		t.Fatalf("expected DESC order newest first, got %q then %q", msgs[0].Role, msgs[1].Role)
	}

	if _, err := svc.ListMessages(context.Background(), 99, thread.ThreadID, 10, 0); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("foreign user list: err = %v, want record not found", err)
	}
}
