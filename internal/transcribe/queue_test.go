package transcribe

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmnotes/vmt-engine/internal/platform"
)

// gateProvider blocks its first invocation until released, so tests can pin
// the worker on one job while more are submitted.
type gateProvider struct {
	firstStarted chan struct{}
	release      chan struct{}
	calls        atomic.Int32
}

func newGateProvider() *gateProvider {
	return &gateProvider{
		firstStarted: make(chan struct{}),
		release:      make(chan struct{}),
	}
}

func (g *gateProvider) Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error) {
	if g.calls.Add(1) == 1 {
		close(g.firstStarted)
		<-g.release
	}
	return &Response{Text: "ok", Language: "en", Duration: 1}, nil
}

func (g *gateProvider) Name() string  { return "gate" }
func (g *gateProvider) Model() string { return "gate" }

func newTestQueue(fc *fakeClient, p Provider) *Queue {
	engine := NewEngine(p, fc, EngineOptions{}, zerolog.Nop())
	return NewQueue(QueueOptions{Client: fc, Engine: engine, QueueSize: 8, Log: zerolog.Nop()})
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestQueue_DuplicateSubmissionIsNoOp(t *testing.T) {
	fc := newFakeClient()
	q := newTestQueue(fc, &fakeProvider{resp: &Response{Text: "ok"}})

	job := Job{Source: SourceAutomatic, Message: voiceMsg(1)}
	if _, err := q.Enqueue(job); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	before := q.Stats().Pending

	_, err := q.Enqueue(job)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second enqueue should be a duplicate, got %v", err)
	}
	if got := q.Stats().Pending; got != before {
		t.Errorf("queue length changed on duplicate: %d -> %d", before, got)
	}
}

func TestQueue_DuplicateWhileProcessing(t *testing.T) {
	fc := newFakeClient()
	gate := newGateProvider()
	q := newTestQueue(fc, gate)
	q.Start()
	defer func() { close(gate.release); q.Stop() }()

	msg := voiceMsg(1)
	if _, err := q.Enqueue(Job{Source: SourceAutomatic, Message: msg}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	<-gate.firstStarted // worker is now busy on the job, queue itself empty

	_, err := q.Enqueue(Job{Source: SourceAutomatic, Message: msg})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("in-flight message must stay deduplicated, got %v", err)
	}
}

func TestQueue_FIFOAcrossSources(t *testing.T) {
	fc := newFakeClient()
	fc.messages[2] = voiceMsg(2)
	gate := newGateProvider()
	q := newTestQueue(fc, gate)
	q.Start()
	defer q.Stop()

	ctx := context.Background()

	// M1 automatic; wait until the worker is pinned on it.
	q.SubmitAutomatic(ctx, voiceMsg(1))
	<-gate.firstStarted

	// M2 via slash command (bare id), M3 via context action, while busy.
	resp2 := &fakeResponder{}
	q.SubmitFromCommand(ctx, Invocation{ChannelID: 10}, "2", &platform.Author{ID: 7, Name: "kai"}, resp2)
	resp3 := &fakeResponder{}
	q.SubmitFromContextAction(ctx, voiceMsg(3), &platform.Author{ID: 8, Name: "rin"}, resp3)

	close(gate.release)
	waitFor(t, func() bool { return fc.replyCount() == 3 }, "three deliveries")

	var order []int64
	for i := 0; i < 3; i++ {
		order = append(order, fc.replyAt(i).msgID)
	}
	if order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("delivery order = %v, want [1 2 3]", order)
	}

	// Interactive submitters got a queue position at submission time.
	if len(resp2.followups) == 0 || !strings.Contains(resp2.followups[0], "position") {
		t.Errorf("command submitter should see a queue position, got %v", resp2.followups)
	}
}

func TestQueue_InFlightReleasedAfterCompletion(t *testing.T) {
	fc := newFakeClient()
	q := newTestQueue(fc, &fakeProvider{resp: &Response{Text: "ok"}})
	q.Start()
	defer q.Stop()

	msg := voiceMsg(1)
	if _, err := q.Enqueue(Job{Source: SourceAutomatic, Message: msg}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(t, func() bool { return q.Stats().Completed == 1 }, "first job completion")
	waitFor(t, func() bool {
		_, err := q.Enqueue(Job{Source: SourceAutomatic, Message: msg})
		return err == nil
	}, "resubmission after release")
}

func TestQueue_FailureIsolatesAndNotifies(t *testing.T) {
	fc := newFakeClient()
	fp := &fakeProvider{err: errors.New("gpu on fire")}
	q := newTestQueue(fc, fp)
	q.Start()

	bad := voiceMsg(1)
	if _, err := q.Enqueue(Job{Source: SourceAutomatic, Message: bad, RemoveReaction: true}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(t, func() bool { return q.Stats().Failed == 1 }, "failure count")

	// Worker survives: flip the provider to success and process another job.
	fp.err = nil
	fp.resp = &Response{Text: "recovered"}
	if _, err := q.Enqueue(Job{Source: SourceAutomatic, Message: voiceMsg(2)}); err != nil {
		t.Fatalf("enqueue after failure: %v", err)
	}
	waitFor(t, func() bool { return q.Stats().Completed == 1 }, "completion after failure")
	q.Stop()

	// Failure notice was a plain reply (no responder on automatic jobs), and
	// the processing reaction was cleared despite the failure.
	found := false
	for i := 0; i < fc.replyCount(); i++ {
		if strings.Contains(fc.replyAt(i).content, "Could not transcribe") {
			found = true
		}
	}
	if !found {
		t.Error("automatic job failure should produce a tolerant plain-reply notice")
	}
	fc.mu.Lock()
	removed := len(fc.removedReactions)
	fc.mu.Unlock()
	if removed != 1 {
		t.Errorf("processing reaction should be cleared exactly once, got %d", removed)
	}
}

func TestQueue_FailureNoticePrefersResponder(t *testing.T) {
	fc := newFakeClient()
	q := newTestQueue(fc, &fakeProvider{err: errors.New("boom")})
	q.Start()
	defer q.Stop()

	resp := &fakeResponder{}
	if _, err := q.Enqueue(Job{Source: SourceCommand, Message: voiceMsg(1), Responder: resp}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(t, func() bool { return q.Stats().Failed == 1 }, "failure")
	waitFor(t, func() bool {
		resp.mu.Lock()
		defer resp.mu.Unlock()
		return len(resp.ephemerals) == 1
	}, "ephemeral failure notice")
	if fc.replyCount() != 0 {
		t.Error("failure notice should use the responder, not a plain reply")
	}
}

func TestQueue_ForbiddenReplyFallsBackToResponder(t *testing.T) {
	fc := newFakeClient()
	fc.replyErr = platform.ErrForbidden
	q := newTestQueue(fc, &fakeProvider{resp: &Response{Text: "fallback text"}})
	q.Start()
	defer q.Stop()

	resp := &fakeResponder{}
	if _, err := q.Enqueue(Job{Source: SourceContextAction, Message: voiceMsg(1), Responder: resp}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(t, func() bool { return q.Stats().Completed == 1 }, "completion via fallback")

	resp.mu.Lock()
	defer resp.mu.Unlock()
	if len(resp.followups) != 1 || !strings.Contains(resp.followups[0], "fallback text") {
		t.Errorf("transcript should be delivered through the responder, got %v", resp.followups)
	}
}

func TestQueue_ForbiddenReplyWithoutResponderFails(t *testing.T) {
	fc := newFakeClient()
	fc.replyErr = platform.ErrForbidden
	q := newTestQueue(fc, &fakeProvider{resp: &Response{Text: "ok"}})
	q.Start()
	defer q.Stop()

	if _, err := q.Enqueue(Job{Source: SourceAutomatic, Message: voiceMsg(1)}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	// Automatic jobs have no fallback channel; the failure is only logged.
	waitFor(t, func() bool { return q.Stats().Failed == 1 }, "logged-only failure")
}

func TestQueue_SubmitAutomaticGates(t *testing.T) {
	fc := newFakeClient()
	q := newTestQueue(fc, &fakeProvider{resp: &Response{Text: "ok"}})

	// Not transcribable.
	q.SubmitAutomatic(context.Background(), &platform.Message{ID: 1})
	// Bot-authored.
	botMsg := voiceMsg(2)
	botMsg.Author.Bot = true
	q.SubmitAutomatic(context.Background(), botMsg)
	// The bot's own message.
	own := voiceMsg(3)
	own.Author.ID = fc.SelfID()
	q.SubmitAutomatic(context.Background(), own)

	if got := q.Stats().Pending; got != 0 {
		t.Errorf("no job should be enqueued, pending = %d", got)
	}

	// A real voice note is accepted and gets the processing reaction.
	q.SubmitAutomatic(context.Background(), voiceMsg(4))
	if got := q.Stats().Pending; got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}
	fc.mu.Lock()
	added := len(fc.addedReactions)
	fc.mu.Unlock()
	if added != 1 {
		t.Errorf("processing reaction count = %d, want 1", added)
	}
}

func TestQueue_SubmitFromCommandMisses(t *testing.T) {
	fc := newFakeClient()
	q := newTestQueue(fc, &fakeProvider{resp: &Response{Text: "ok"}})
	ctx := context.Background()

	resp := &fakeResponder{}
	q.SubmitFromCommand(ctx, Invocation{ChannelID: 10}, "12345", nil, resp)
	if len(resp.followups) != 1 || !strings.Contains(resp.followups[0], "No voice message found") {
		t.Errorf("miss should produce guidance, got %v", resp.followups)
	}

	fc.canHistory = false
	resp = &fakeResponder{}
	q.SubmitFromCommand(ctx, Invocation{ChannelID: 10}, "", nil, resp)
	if len(resp.followups) != 1 || !strings.Contains(resp.followups[0], "Read Message History") {
		t.Errorf("permission miss should mention the history permission, got %v", resp.followups)
	}

	fc.messages[55] = &platform.Message{ID: 55, Attachments: []platform.Attachment{{Filename: "x.pdf"}}}
	resp = &fakeResponder{}
	q.SubmitFromCommand(ctx, Invocation{ChannelID: 10}, "55", nil, resp)
	if len(resp.followups) != 1 || !strings.Contains(resp.followups[0], "not a voice message") {
		t.Errorf("non-audio target should be rejected, got %v", resp.followups)
	}

	if q.Stats().Pending != 0 {
		t.Error("no miss should enqueue a job")
	}
}

func TestQueue_EnqueueAfterStop(t *testing.T) {
	fc := newFakeClient()
	q := newTestQueue(fc, &fakeProvider{resp: &Response{Text: "ok"}})
	q.Start()
	q.Stop()

	_, err := q.Enqueue(Job{Source: SourceAutomatic, Message: voiceMsg(1)})
	if !errors.Is(err, ErrStopped) {
		t.Errorf("enqueue after stop should report ErrStopped, got %v", err)
	}
}

func TestQueue_QueueFull(t *testing.T) {
	fc := newFakeClient()
	engine := NewEngine(&fakeProvider{resp: &Response{Text: "ok"}}, fc, EngineOptions{}, zerolog.Nop())
	q := NewQueue(QueueOptions{Client: fc, Engine: engine, QueueSize: 1, Log: zerolog.Nop()})
	// No worker: nothing drains.
	if _, err := q.Enqueue(Job{Source: SourceAutomatic, Message: voiceMsg(1)}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	_, err := q.Enqueue(Job{Source: SourceAutomatic, Message: voiceMsg(2)})
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}
