package transcribe

import (
	"context"
	"sync"

	"github.com/vmnotes/vmt-engine/internal/platform"
)

// fakeClient is an in-memory platform.Client for tests.
type fakeClient struct {
	mu sync.Mutex

	selfID     int64
	messages   map[int64]*platform.Message
	history    []*platform.Message
	historyErr error
	canHistory bool
	fetchErr   error
	attachData []byte
	attachErr  error
	replyErr   error

	replies          []fakeReply
	addedReactions   []int64
	removedReactions []int64
}

type fakeReply struct {
	msgID   int64
	content string
	file    *platform.File
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		selfID:     999,
		messages:   make(map[int64]*platform.Message),
		canHistory: true,
		attachData: []byte("audio-bytes"),
	}
}

func (fc *fakeClient) FetchMessage(ctx context.Context, channelID, messageID int64) (*platform.Message, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.fetchErr != nil {
		return nil, fc.fetchErr
	}
	msg, ok := fc.messages[messageID]
	if !ok {
		return nil, platform.ErrNotFound
	}
	return msg, nil
}

func (fc *fakeClient) RecentMessages(ctx context.Context, channelID int64, limit int) ([]*platform.Message, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.historyErr != nil {
		return nil, fc.historyErr
	}
	if len(fc.history) > limit {
		return fc.history[:limit], nil
	}
	return fc.history, nil
}

func (fc *fakeClient) ReadAttachment(ctx context.Context, att platform.Attachment) ([]byte, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.attachData, fc.attachErr
}

func (fc *fakeClient) Reply(ctx context.Context, msg *platform.Message, content string, file *platform.File) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.replyErr != nil {
		return fc.replyErr
	}
	fc.replies = append(fc.replies, fakeReply{msgID: msg.ID, content: content, file: file})
	return nil
}

func (fc *fakeClient) AddReaction(ctx context.Context, msg *platform.Message, emoji string) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.addedReactions = append(fc.addedReactions, msg.ID)
	return nil
}

func (fc *fakeClient) RemoveReaction(ctx context.Context, msg *platform.Message, emoji string) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.removedReactions = append(fc.removedReactions, msg.ID)
	return nil
}

func (fc *fakeClient) CanReadHistory(ctx context.Context, channelID int64) bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.canHistory
}

func (fc *fakeClient) SelfID() int64 { return fc.selfID }

func (fc *fakeClient) replyCount() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return len(fc.replies)
}

func (fc *fakeClient) replyAt(i int) fakeReply {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.replies[i]
}

// fakeResponder records deferred follow-ups.
type fakeResponder struct {
	mu         sync.Mutex
	followups  []string
	files      []*platform.File
	ephemerals []string
	err        error
}

func (fr *fakeResponder) Followup(ctx context.Context, content string, file *platform.File) error {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if fr.err != nil {
		return fr.err
	}
	fr.followups = append(fr.followups, content)
	fr.files = append(fr.files, file)
	return nil
}

func (fr *fakeResponder) FollowupEphemeral(ctx context.Context, content string) error {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if fr.err != nil {
		return fr.err
	}
	fr.ephemerals = append(fr.ephemerals, content)
	return nil
}
