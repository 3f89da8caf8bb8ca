package diagnosis

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/mrsinham/selfdiag/internal/logger"
	"github.com/mrsinham/selfdiag/internal/metrics"
)

// Messages appended after a saga settles.
const (
	msgImageUploaded      = "图片上传成功并已进行AI分析！"
	msgImageResultPrefix  = "AI诊断结果：\n"
	msgImageFailedPrefix  = "图片上传或AI分析失败: "
	msgImageFailedGeneric = "图片上传或AI分析失败，请稍后再试。"
	msgSaved              = "您的自诊信息已保存成功！"
	msgFinalResultPrefix  = "\n最终AI诊断结果：\n"
	msgAnalysisFailed     = "数据已保存，但AI分析出现错误。"
	msgSaveFailed         = "保存数据时出现错误，请稍后再试。"
)

// Session is one self-diagnosis conversation. It owns the cursor, the
// draft, the transcript and the remote refs. All methods are safe for
// concurrent use; at most one saga runs at a time.
type Session struct {
	id      string
	orch    *Orchestrator
	phone   string
	log     *logger.Logger
	metrics *metrics.Metrics

	listener func(Message)
	notifyMu sync.Mutex

	mu       sync.Mutex
	cursor   Cursor
	draft    Draft
	messages MessageLog
	refs     RemoteEntityRefs
	inFlight bool
	pending  []Message
}

// NewSession returns a session talking to b. Call Start to emit the first
// question.
func NewSession(b Backend, opts ...Option) *Session {
	o := applyOptions(opts)
	log := o.log.WithSessionID(o.sessionID)
	o.log = log

	return &Session{
		id:       o.sessionID,
		orch:     newOrchestrator(b, o),
		phone:    o.phone,
		log:      log,
		metrics:  o.metrics,
		listener: o.listener,
		draft:    newDraft(o.phone),
	}
}

// ID returns the session id used in logs.
func (s *Session) ID() string { return s.id }

// Start resets the conversation and emits the first question.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return ErrSagaInFlight
	}

	s.cursor = Cursor{Phase: PhaseInit}
	s.draft = newDraft(s.phone)
	s.messages.Reset()
	s.refs = RemoteEntityRefs{}
	out := []Message{s.messages.Append(SenderSystem, openingPrompt(PhaseInit))}
	s.metrics.RecordSessionStart()
	s.log.Info("session_started")

	s.unlockAndNotify(out)
	return nil
}

// SubmitAnswer records a text answer to the current question and advances
// the conversation. Answering the last question runs the finalization saga
// before returning; its error is returned after the transcript is updated.
func (s *Session) SubmitAnswer(ctx context.Context, text string) error {
	answer := strings.TrimSpace(text)
	if answer == "" {
		return ErrEmptyAnswer
	}

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return ErrSagaInFlight
	}
	if !s.cursor.Phase.AcceptsText() {
		s.mu.Unlock()
		return ErrWrongPhase
	}

	out := []Message{s.messages.Append(SenderUser, answer)}
	answered := s.cursor.Phase
	draft, cursor, entered := advance(s.cursor, s.draft, answer)
	s.draft, s.cursor = draft, cursor
	s.metrics.RecordAnswer(answered.String())

	if !entered {
		out = append(out, s.messages.Append(SenderSystem, question(cursor.Phase, cursor.Index)))
		s.unlockAndNotify(out)
		return nil
	}

	s.log.Debug("phase_entered", "phase", cursor.Phase.String())
	if cursor.Phase != PhaseCompleted {
		out = append(out, s.messages.Append(SenderSystem, openingPrompt(cursor.Phase)))
		s.unlockAndNotify(out)
		return nil
	}

	out = append(out, s.messages.Append(SenderSystem, AnalyzingNotice))
	s.inFlight = true
	snapshot, refs := s.draft.clone(), s.refs
	s.unlockAndNotify(out)

	refs, outcome, err := s.orch.Finalize(ctx, snapshot, refs)

	s.mu.Lock()
	s.refs = refs
	s.inFlight = false
	out = s.appendFinalization(outcome, err)
	s.unlockAndNotify(out)
	return err
}

// SubmitImage stores img in the draft and runs the image submission saga.
// On success the conversation moves to the additional-symptoms question; on
// failure it stays in ImageUpload so the caller can retry.
func (s *Session) SubmitImage(ctx context.Context, img *PendingImage) error {
	if img == nil || len(img.Data) == 0 {
		return ErrMissingImage
	}

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return ErrSagaInFlight
	}
	if s.cursor.Phase != PhaseImageUpload {
		s.mu.Unlock()
		return ErrWrongPhase
	}

	image := *img
	if image.Type == "" {
		image.Type = ImageTypeTongue
	}
	s.draft.Image = &image
	s.inFlight = true
	snapshot, refs := s.draft.clone(), s.refs
	s.mu.Unlock()

	refs, outcome, err := s.orch.SubmitImage(ctx, snapshot, refs)

	s.mu.Lock()
	s.refs = refs
	s.inFlight = false
	var out []Message
	if err != nil {
		out = append(out, s.messages.Append(SenderSystem, imageFailureText(err)))
		s.unlockAndNotify(out)
		return err
	}

	out = append(out, s.messages.Append(SenderSystem, msgImageUploaded))
	if outcome.Result != nil {
		out = append(out, s.messages.Append(SenderSystem, msgImageResultPrefix+ExtractResult(outcome.Result)))
	}
	s.cursor = Cursor{Phase: PhaseAdditional}
	out = append(out, s.messages.Append(SenderSystem, openingPrompt(PhaseAdditional)))
	s.unlockAndNotify(out)
	return nil
}

// appendFinalization writes the outcome of the finalization saga. s.mu must
// be held.
func (s *Session) appendFinalization(outcome FinalOutcome, err error) []Message {
	if err != nil {
		var se *SagaError
		if errors.As(err, &se) && se.Step == StepComplete {
			return []Message{s.messages.Append(SenderSystem, msgAnalysisFailed)}
		}
		return []Message{s.messages.Append(SenderSystem, msgSaveFailed)}
	}

	out := []Message{s.messages.Append(SenderSystem, msgSaved)}
	if outcome.Result != nil {
		out = append(out, s.messages.Append(SenderSystem, msgFinalResultPrefix+ExtractResult(outcome.Result)))
	}
	return out
}

func imageFailureText(err error) string {
	if msg, ok := ServerMessage(err); ok {
		return msgImageFailedPrefix + msg
	}
	return msgImageFailedGeneric
}

// unlockAndNotify queues out for the listener, releases s.mu and drains the
// queue. Only one goroutine drains at a time, so deliveries keep append order.
func (s *Session) unlockAndNotify(out []Message) {
	if s.listener == nil {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, out...)
	s.mu.Unlock()

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	for {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, msg := range batch {
			s.listener(msg)
		}
	}
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor.Phase
}

// Cursor returns the current question position.
func (s *Session) Cursor() Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Draft returns a copy of the draft.
func (s *Session) Draft() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.clone()
}

// Refs returns the ids created on the backend so far.
func (s *Session) Refs() RemoteEntityRefs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages.Messages()
}

// Busy reports whether a saga is running.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// CurrentPrompt returns the text the user is expected to respond to, or ""
// once the conversation is completed.
func (s *Session) CurrentPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor.Phase == PhaseImageUpload {
		return ImageUploadInstruction
	}
	return question(s.cursor.Phase, s.cursor.Index)
}
