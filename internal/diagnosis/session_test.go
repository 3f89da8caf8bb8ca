package diagnosis

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

var fixedNow = time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)

var symptomAnswers = []string{
	"没有", "有点怕冷", "不出汗", "凉",
	"咳嗽", "有痰", "偏白", "不疼",
	"一般", "正常",
	"想喝热水", "有点疼",
}

func newTestSession(t *testing.T, b Backend, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	s := NewSession(b, opts...)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return s
}

func answerAll(t *testing.T, s *Session, answers ...string) {
	t.Helper()
	for _, a := range answers {
		if err := s.SubmitAnswer(context.Background(), a); err != nil {
			t.Fatalf("SubmitAnswer(%q) failed: %v", a, err)
		}
	}
}

func lastMessage(s *Session) Message {
	msgs := s.Messages()
	return msgs[len(msgs)-1]
}

func tongueImage() *PendingImage {
	return &PendingImage{Data: []byte{0x89, 'P', 'N', 'G'}, Filename: "tongue.png", ContentType: "image/png"}
}

func TestStartEmitsFirstQuestion(t *testing.T) {
	s := newTestSession(t, &fakeBackend{})

	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Sender != SenderSystem || msgs[0].Text != PromptsFor(PhaseInit)[0] {
		t.Errorf("Expected first Init question, got %+v", msgs[0])
	}
	if s.Phase() != PhaseInit || s.Cursor().Index != 0 {
		t.Errorf("Expected Init/0, got %+v", s.Cursor())
	}
}

func TestStartTwiceEqualsFreshSession(t *testing.T) {
	fresh := newTestSession(t, &fakeBackend{})

	s := newTestSession(t, &fakeBackend{})
	answerAll(t, s, "张三", "女", "28", "咳嗽", "有")
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if !reflect.DeepEqual(s.Messages(), fresh.Messages()) {
		t.Errorf("Expected messages %+v, got %+v", fresh.Messages(), s.Messages())
	}
	if !reflect.DeepEqual(s.Draft(), fresh.Draft()) {
		t.Errorf("Expected draft %+v, got %+v", fresh.Draft(), s.Draft())
	}
	if s.Refs() != (RemoteEntityRefs{}) {
		t.Errorf("Expected refs reset, got %+v", s.Refs())
	}
}

func TestEachPhaseEndsWithNextFirstPrompt(t *testing.T) {
	s := newTestSession(t, &fakeBackend{})

	answerAll(t, s, "张三", "男", "34", "头痛")
	if s.Phase() != PhaseSymptomsGeneral {
		t.Fatalf("Expected SymptomsGeneral, got %s", s.Phase())
	}
	if got := lastMessage(s).Text; got != "您有没有发烧？" {
		t.Errorf("Expected 您有没有发烧？, got %q", got)
	}

	idx := 0
	for _, p := range []Phase{PhaseSymptomsGeneral, PhaseSymptomsRespiratory, PhaseSymptomsDigestive, PhaseSymptomsOther} {
		n := QuestionCount(p)
		answerAll(t, s, symptomAnswers[idx:idx+n]...)
		idx += n

		next := p.Next()
		if s.Phase() != next {
			t.Fatalf("Expected %s after %s, got %s", next, p, s.Phase())
		}
		if got, want := lastMessage(s).Text, openingPrompt(next); got != want {
			t.Errorf("Expected %q after %s, got %q", want, p, got)
		}
	}
	if s.CurrentPrompt() != ImageUploadInstruction {
		t.Errorf("Expected upload instruction as current prompt, got %q", s.CurrentPrompt())
	}
}

func TestEndToEndConversation(t *testing.T) {
	b := &fakeBackend{
		uploadResult:   map[string]any{"最终结果": map[string]any{"处方组成": "桂枝汤"}},
		completeResult: map[string]any{"处方组成": "桂枝汤加减"},
	}
	s := newTestSession(t, b)

	answerAll(t, s, "张三", "男", "34", "头痛")
	answerAll(t, s, symptomAnswers...)
	if s.Phase() != PhaseImageUpload {
		t.Fatalf("Expected ImageUpload, got %s", s.Phase())
	}

	if err := s.SubmitImage(context.Background(), tongueImage()); err != nil {
		t.Fatalf("SubmitImage failed: %v", err)
	}
	if s.Phase() != PhaseAdditional {
		t.Fatalf("Expected Additional, got %s", s.Phase())
	}

	msgs := s.Messages()
	tail := msgs[len(msgs)-3:]
	want := []string{msgImageUploaded, "AI诊断结果：\n桂枝汤", "您还有其他症状吗？"}
	for i, w := range want {
		if tail[i].Text != w {
			t.Errorf("Expected message %q, got %q", w, tail[i].Text)
		}
	}

	if b.patients[0].Name != "张三" || b.patients[0].Gender != GenderMale || b.patients[0].Age != 34 {
		t.Errorf("Unexpected patient sent: %+v", b.patients[0])
	}
	if b.visits[0].Visit.ChiefComplaint != "头痛" || b.visits[0].PatientID != 101 {
		t.Errorf("Unexpected visit sent: %+v", b.visits[0])
	}
	if b.images[0].Type != ImageTypeTongue {
		t.Errorf("Expected image type tongue, got %q", b.images[0].Type)
	}

	answerAll(t, s, "没有了")
	if s.Phase() != PhaseCompleted {
		t.Fatalf("Expected Completed, got %s", s.Phase())
	}

	msgs = s.Messages()
	tail = msgs[len(msgs)-4:]
	want = []string{"没有了", AnalyzingNotice, msgSaved, "\n最终AI诊断结果：\n桂枝汤加减"}
	for i, w := range want {
		if tail[i].Text != w {
			t.Errorf("Expected message %q, got %q", w, tail[i].Text)
		}
	}

	patients, visits, uploads, finals := b.counts()
	if patients != 1 || visits != 1 || uploads != 1 || finals != 1 {
		t.Errorf("Expected 1/1/1/1 backend calls, got %d/%d/%d/%d", patients, visits, uploads, finals)
	}
	if b.finals[0] != 201 {
		t.Errorf("Expected finalization of visit 201, got %d", b.finals[0])
	}
	if s.Busy() {
		t.Error("Expected session to be idle")
	}
	if s.CurrentPrompt() != "" {
		t.Errorf("Expected no prompt once completed, got %q", s.CurrentPrompt())
	}
	if err := s.SubmitAnswer(context.Background(), "还有"); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("Expected ErrWrongPhase after completion, got %v", err)
	}
}

func TestPreconditionsEmitNothing(t *testing.T) {
	s := newTestSession(t, &fakeBackend{})
	before := s.Messages()

	if err := s.SubmitAnswer(context.Background(), "   "); !errors.Is(err, ErrEmptyAnswer) {
		t.Errorf("Expected ErrEmptyAnswer, got %v", err)
	}
	if err := s.SubmitImage(context.Background(), tongueImage()); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("Expected ErrWrongPhase, got %v", err)
	}
	if err := s.SubmitImage(context.Background(), nil); !errors.Is(err, ErrMissingImage) {
		t.Errorf("Expected ErrMissingImage, got %v", err)
	}
	if err := s.SubmitImage(context.Background(), &PendingImage{}); !errors.Is(err, ErrMissingImage) {
		t.Errorf("Expected ErrMissingImage for empty data, got %v", err)
	}

	if !reflect.DeepEqual(before, s.Messages()) {
		t.Errorf("Expected no messages, got %+v", s.Messages())
	}

	answerAll(t, s, "张三", "男", "34", "头痛")
	answerAll(t, s, symptomAnswers...)
	n := len(s.Messages())
	if err := s.SubmitAnswer(context.Background(), "text"); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("Expected ErrWrongPhase in ImageUpload, got %v", err)
	}
	if len(s.Messages()) != n {
		t.Errorf("Expected no new message, got %d", len(s.Messages())-n)
	}
}

func TestImageFailureKeepsRefsAndRetries(t *testing.T) {
	b := &fakeBackend{uploadErr: &serverError{msg: "模型超时"}}
	s := newTestSession(t, b)
	answerAll(t, s, "张三", "男", "34", "头痛")
	answerAll(t, s, symptomAnswers...)

	err := s.SubmitImage(context.Background(), tongueImage())
	var se *SagaError
	if !errors.As(err, &se) || se.Step != StepUploadImage {
		t.Fatalf("Expected upload SagaError, got %v", err)
	}
	if got := lastMessage(s).Text; got != "图片上传或AI分析失败: 模型超时" {
		t.Errorf("Expected server message, got %q", got)
	}
	if s.Phase() != PhaseImageUpload {
		t.Errorf("Expected to stay in ImageUpload, got %s", s.Phase())
	}
	refs := s.Refs()
	if refs.PatientID != 101 || refs.VisitID != 201 {
		t.Errorf("Expected refs 101/201 kept, got %+v", refs)
	}

	b.mu.Lock()
	b.uploadErr = nil
	b.mu.Unlock()
	if err := s.SubmitImage(context.Background(), tongueImage()); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}

	patients, visits, uploads, _ := b.counts()
	if patients != 1 || visits != 1 || uploads != 2 {
		t.Errorf("Expected 1 patient, 1 visit, 2 uploads, got %d/%d/%d", patients, visits, uploads)
	}
	if b.uploads[1] != 201 {
		t.Errorf("Expected retry on visit 201, got %d", b.uploads[1])
	}
	if s.Phase() != PhaseAdditional {
		t.Errorf("Expected Additional after retry, got %s", s.Phase())
	}
}

func TestImageTransportFailureMessage(t *testing.T) {
	b := &fakeBackend{patientErr: errNetwork}
	s := newTestSession(t, b)
	answerAll(t, s, "张三", "男", "34", "头痛")
	answerAll(t, s, symptomAnswers...)

	err := s.SubmitImage(context.Background(), tongueImage())
	if !errors.Is(err, errNetwork) {
		t.Fatalf("Expected wrapped network error, got %v", err)
	}
	if got := lastMessage(s).Text; got != msgImageFailedGeneric {
		t.Errorf("Expected generic failure, got %q", got)
	}
	if s.Refs() != (RemoteEntityRefs{}) {
		t.Errorf("Expected no refs, got %+v", s.Refs())
	}
}

func TestConcurrentSubmitImageCreatesOnce(t *testing.T) {
	b := &fakeBackend{
		uploadStarted: make(chan struct{}, 1),
		release:       make(chan struct{}),
	}
	s := newTestSession(t, b)
	answerAll(t, s, "张三", "男", "34", "头痛")
	answerAll(t, s, symptomAnswers...)

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstErr = s.SubmitImage(context.Background(), tongueImage())
	}()
	<-b.uploadStarted

	if !s.Busy() {
		t.Error("Expected session to be busy")
	}
	if err := s.SubmitImage(context.Background(), tongueImage()); !errors.Is(err, ErrSagaInFlight) {
		t.Errorf("Expected ErrSagaInFlight, got %v", err)
	}
	if err := s.SubmitAnswer(context.Background(), "hello"); !errors.Is(err, ErrSagaInFlight) {
		t.Errorf("Expected ErrSagaInFlight for answer, got %v", err)
	}
	if err := s.Start(); !errors.Is(err, ErrSagaInFlight) {
		t.Errorf("Expected ErrSagaInFlight for Start, got %v", err)
	}

	close(b.release)
	wg.Wait()

	if firstErr != nil {
		t.Fatalf("First submit failed: %v", firstErr)
	}
	patients, visits, uploads, _ := b.counts()
	if patients != 1 || visits != 1 || uploads != 1 {
		t.Errorf("Expected exactly one of each call, got %d/%d/%d", patients, visits, uploads)
	}
}

func TestFinalizeAnalysisFailureIsPartialSuccess(t *testing.T) {
	b := &fakeBackend{completeErr: &serverError{msg: "AI down"}}
	s := newTestSession(t, b)
	answerAll(t, s, "张三", "男", "34", "头痛")
	answerAll(t, s, symptomAnswers...)
	if err := s.SubmitImage(context.Background(), tongueImage()); err != nil {
		t.Fatalf("SubmitImage failed: %v", err)
	}

	err := s.SubmitAnswer(context.Background(), "没有")
	var se *SagaError
	if !errors.As(err, &se) || se.Saga != SagaFinalization || se.Step != StepComplete {
		t.Fatalf("Expected finalization SagaError at complete step, got %v", err)
	}
	if got := lastMessage(s).Text; got != msgAnalysisFailed {
		t.Errorf("Expected partial success message, got %q", got)
	}
	if s.Phase() != PhaseCompleted || s.Busy() {
		t.Errorf("Expected idle Completed session, got %s busy=%v", s.Phase(), s.Busy())
	}
}

func TestFinalizeWithoutResultShowsSavedOnly(t *testing.T) {
	b := &fakeBackend{}
	s := newTestSession(t, b)
	answerAll(t, s, "张三", "男", "34", "头痛")
	answerAll(t, s, symptomAnswers...)
	if err := s.SubmitImage(context.Background(), tongueImage()); err != nil {
		t.Fatalf("SubmitImage failed: %v", err)
	}
	answerAll(t, s, "没有")

	msgs := s.Messages()
	if msgs[len(msgs)-1].Text != msgSaved || msgs[len(msgs)-2].Text != AnalyzingNotice {
		t.Errorf("Expected analyzing then saved, got %q / %q", msgs[len(msgs)-2].Text, msgs[len(msgs)-1].Text)
	}
}

func TestListenerSeesEveryMessageInOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []Message
	b := &fakeBackend{uploadResult: map[string]any{"处方组成": "方"}}
	s := newTestSession(t, b, WithListener(func(m Message) {
		mu.Lock()
		seen = append(seen, m)
		mu.Unlock()
	}))
	answerAll(t, s, "张三", "男", "34", "头痛")
	answerAll(t, s, symptomAnswers...)
	if err := s.SubmitImage(context.Background(), tongueImage()); err != nil {
		t.Fatalf("SubmitImage failed: %v", err)
	}
	answerAll(t, s, "没有")

	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(seen, s.Messages()) {
		t.Errorf("Expected listener to see the transcript, got %d of %d messages", len(seen), len(s.Messages()))
	}
}

func TestDeterministicDrafts(t *testing.T) {
	run := func() (Draft, []Message) {
		s := newTestSession(t, &fakeBackend{})
		answerAll(t, s, "李四", "female", "３０岁", "失眠")
		answerAll(t, s, symptomAnswers...)
		return s.Draft(), s.Messages()
	}
	d1, m1 := run()
	d2, m2 := run()

	if !reflect.DeepEqual(d1, d2) || !reflect.DeepEqual(m1, m2) {
		t.Error("Expected identical drafts and transcripts for identical input")
	}
	if d1.Patient.Gender != GenderFemale || d1.Patient.Age != 30 {
		t.Errorf("Expected female/30, got %s/%d", d1.Patient.Gender, d1.Patient.Age)
	}
}

func TestPhoneSeed(t *testing.T) {
	s := newTestSession(t, &fakeBackend{}, WithPhone("+8613800138000"))
	if got := s.Draft().Patient.Phone; got != "+8613800138000" {
		t.Errorf("Expected seeded phone, got %q", got)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if got := s.Draft().Patient.Phone; got != "+8613800138000" {
		t.Errorf("Expected phone kept across Start, got %q", got)
	}
}

func TestDraftIsACopy(t *testing.T) {
	b := &fakeBackend{uploadErr: errNetwork}
	s := newTestSession(t, b)
	answerAll(t, s, "张三", "男", "34", "头痛")
	answerAll(t, s, symptomAnswers...)
	_ = s.SubmitImage(context.Background(), tongueImage())

	d := s.Draft()
	d.Image.Data[0] = 0
	d.Patient.Name = "changed"

	again := s.Draft()
	if again.Image.Data[0] != 0x89 || again.Patient.Name != "张三" {
		t.Error("Expected Draft to return an independent copy")
	}
}
