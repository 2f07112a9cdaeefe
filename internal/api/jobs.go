package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/vmnotes/vmt-engine/internal/platform"
	"github.com/vmnotes/vmt-engine/internal/transcribe"
)

// JobRequest identifies a message to transcribe. Ids are decimal strings so
// snowflakes survive JSON number precision.
type JobRequest struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

type JobResponse struct {
	Queued   bool `json:"queued"`
	Position int  `json:"position,omitempty"`
}

// JobsHandler accepts out-of-band transcription submissions over HTTP. Jobs
// submitted here behave like command jobs without a deferred response
// channel: the transcript is posted under the source message.
type JobsHandler struct {
	queue  *transcribe.Queue
	client platform.Client
}

func NewJobsHandler(queue *transcribe.Queue, client platform.Client) *JobsHandler {
	return &JobsHandler{queue: queue, client: client}
}

func (h *JobsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	channelID, err1 := strconv.ParseInt(req.ChannelID, 10, 64)
	messageID, err2 := strconv.ParseInt(req.MessageID, 10, 64)
	if err1 != nil || err2 != nil || channelID == 0 || messageID == 0 {
		WriteError(w, http.StatusBadRequest, "channel_id and message_id must be decimal ids")
		return
	}

	msg, err := h.client.FetchMessage(r.Context(), channelID, messageID)
	if err != nil {
		switch {
		case errors.Is(err, platform.ErrNotFound), errors.Is(err, platform.ErrForbidden):
			WriteError(w, http.StatusNotFound, "message not found")
		default:
			WriteError(w, http.StatusBadGateway, "message fetch failed")
		}
		return
	}
	if !platform.IsTranscribable(msg) {
		WriteError(w, http.StatusUnprocessableEntity, "message is not a voice message or audio attachment")
		return
	}

	pos, err := h.queue.Enqueue(transcribe.Job{
		Source:  transcribe.SourceCommand,
		Message: msg,
	})
	switch {
	case errors.Is(err, transcribe.ErrDuplicate):
		WriteError(w, http.StatusConflict, "message is already being transcribed")
	case errors.Is(err, transcribe.ErrQueueFull):
		WriteError(w, http.StatusServiceUnavailable, "transcription queue is full")
	case err != nil:
		WriteError(w, http.StatusServiceUnavailable, "transcription unavailable")
	default:
		WriteJSON(w, http.StatusAccepted, JobResponse{Queued: true, Position: pos})
	}
}
