package tutor_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/scai/internal/chat"
	"github.com/p-n-ai/scai/internal/curriculum"
	"github.com/p-n-ai/scai/internal/scai"
	"github.com/p-n-ai/scai/internal/tutor"
)

const testCurriculum = `
subject: physics
chapters:
  - id: "1"
    title: "fluids"
    lessons:
      - number: "1"
        title: "properties"
        goals:
          - points: ["p1", "p2"]
          - points: ["q1"]
`

type staticCurricula struct{ table *curriculum.Table }

func (c staticCurricula) Table(subject string) (*curriculum.Table, bool) {
	return c.table, subject == c.table.Subject
}

type fixture struct {
	coord      *tutor.Coordinator
	backend    *scai.MockBackend
	events     *tutor.MemoryEventLogger
	selections *tutor.MemorySelectionStore
}

func newFixture(t *testing.T, backend *scai.MockBackend) fixture {
	t.Helper()
	f := newBackendFixture(t, backend)
	f.backend = backend
	return f
}

func newBackendFixture(t *testing.T, backend tutor.Backend) fixture {
	t.Helper()
	table, err := curriculum.Decode(strings.NewReader(testCurriculum))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	f := fixture{
		events:     tutor.NewMemoryEventLogger(),
		selections: tutor.NewMemorySelectionStore(),
	}
	f.coord = tutor.NewCoordinator(tutor.CoordinatorConfig{
		Backend:    backend,
		Curricula:  staticCurricula{table: table},
		Events:     f.events,
		Selections: f.selections,
		Timeout:    time.Second,
	})
	return f
}

func question(id, goal, point string) scai.QuestionResponse {
	return scai.QuestionResponse{
		Status:   "success",
		Question: []string{"Q" + id},
		Response: []string{"intro " + id, "  "},
		ID:       scai.QuestionID(id),
		Goal:     goal,
		Point:    point,
	}
}

func start(t *testing.T, f fixture) tutor.Session {
	t.Helper()
	reply, err := f.coord.Start(context.Background(), tutor.StartRequest{
		UserName: "ali",
		Chapter:  "1",
		Lesson:   "1-1",
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return reply.Session
}

// mustReply fails the test on a coordinator error:
// mustReply(t)(f.coord.SelectLevel(ctx, id, 1)).
func mustReply(t *testing.T) func(tutor.Reply, error) tutor.Reply {
	t.Helper()
	return func(reply tutor.Reply, err error) tutor.Reply {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error = %v", err)
		}
		return reply
	}
}

func TestCoordinator_Start(t *testing.T) {
	f := newFixture(t, &scai.MockBackend{})

	reply, err := f.coord.Start(context.Background(), tutor.StartRequest{
		UserName: "ali",
		Chapter:  "1",
		Lesson:   "1-1",
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	sess := reply.Session
	if sess.ID == "" {
		t.Fatal("session id should be set")
	}
	if sess.State != tutor.StateAwaitingLevel {
		t.Errorf("State = %q, want awaiting_level", sess.State)
	}
	if sess.Subject != "physics" {
		t.Errorf("Subject = %q, want default physics", sess.Subject)
	}
	if sess.Progress.Lesson != "1" || sess.Progress.Goal != 1 {
		t.Errorf("Progress = %+v, want lesson 1 goal1", sess.Progress)
	}

	if len(reply.Messages) != 1 {
		t.Fatalf("messages = %d, want level prompt only", len(reply.Messages))
	}
	prompt := reply.Messages[0]
	if !prompt.FromAI || len(prompt.Buttons) != 3 {
		t.Errorf("level prompt = %+v, want 3 buttons", prompt)
	}
	for i, b := range prompt.Buttons {
		if b.Action != chat.ActionLevel || b.Value != string(rune('1'+i)) {
			t.Errorf("button %d = %+v", i, b)
		}
	}

	sel, ok, err := f.selections.LoadSelection(context.Background(), "ali")
	if err != nil || !ok {
		t.Fatalf("LoadSelection() = %v, %v", ok, err)
	}
	if sel.Chapter != "1" || sel.Lesson != "1-1" || sel.Goal != "goal1" {
		t.Errorf("selection = %+v", sel)
	}
	if got := f.events.OfType(tutor.EventSessionStarted); len(got) != 1 {
		t.Errorf("session_started events = %d, want 1", len(got))
	}
}

func TestCoordinator_StartValidation(t *testing.T) {
	f := newFixture(t, &scai.MockBackend{})

	tests := []struct {
		name string
		req  tutor.StartRequest
	}{
		{"missing user", tutor.StartRequest{Chapter: "1", Lesson: "1"}},
		{"blank user", tutor.StartRequest{UserName: "  ", Chapter: "1", Lesson: "1"}},
		{"missing lesson", tutor.StartRequest{UserName: "ali", Chapter: "1"}},
		{"unknown subject", tutor.StartRequest{UserName: "ali", Subject: "chemistry", Chapter: "1", Lesson: "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.coord.Start(context.Background(), tt.req)
			if !errors.Is(err, tutor.ErrInvalidRequest) {
				t.Errorf("Start() error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestCoordinator_StartEndsPreviousSession(t *testing.T) {
	f := newFixture(t, &scai.MockBackend{})

	first := start(t, f)
	second := start(t, f)
	if first.ID == second.ID {
		t.Fatal("second Start() should create a new session")
	}

	got, err := f.coord.Get(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.Ended() {
		t.Error("previous session should be ended")
	}
	if _, err := f.coord.SelectLevel(context.Background(), first.ID, 1); !errors.Is(err, tutor.ErrSessionEnded) {
		t.Errorf("SelectLevel() on ended session error = %v, want ErrSessionEnded", err)
	}
}

func TestCoordinator_QuestionFlow(t *testing.T) {
	backend := &scai.MockBackend{
		Questions: []scai.QuestionResponse{
			question("11", "goal1", "p1"),
			question("12", "goal1", "p2"),
			question("13", "goal2", "q1"),
		},
		Explanation: []string{"good", "job"},
		Explain:     []string{"detail"},
	}
	f := newFixture(t, backend)
	ctx := context.Background()
	id := start(t, f).ID

	// Level choice acknowledges and asks the first question.
	reply := mustReply(t)(f.coord.SelectLevel(ctx, id, 2))
	texts := messageTexts(reply.Messages)
	want := []string{"2", "جيد، سنراجع المفاهيم الأساسية ثم نتعمق في التفاصيل.", "intro 11", "Q11"}
	if strings.Join(texts, "|") != strings.Join(want, "|") {
		t.Fatalf("messages = %q, want %q", texts, want)
	}
	if reply.Messages[0].FromAI {
		t.Error("level echo should be a learner message")
	}
	if !reply.Messages[3].IsQuestion {
		t.Error("question part should be flagged as a question")
	}
	if reply.Session.State != tutor.StateAwaitingAnswer || reply.Session.QuestionID != "11" {
		t.Errorf("session = %+v", reply.Session)
	}
	if reply.Session.Progress.CurrentPoint != "p1" {
		t.Errorf("CurrentPoint = %q, want p1", reply.Session.Progress.CurrentPoint)
	}
	if reply.Preview == nil || reply.Preview.Pending {
		t.Errorf("Preview = %+v, want no pending change on p1", reply.Preview)
	}
	if got := backend.QuestionRequests[0]; got != (scai.QuestionRequest{
		UserName: "ali", Subject: "physics", Chapter: "1", Lesson: "1", Level: 2, Goal: "goal1",
	}) {
		t.Errorf("question request = %+v", got)
	}

	// Answer is checked and the explanation offers two follow-ups.
	reply = mustReply(t)(f.coord.SubmitAnswer(ctx, id, "  42 "))
	last := reply.Messages[len(reply.Messages)-1]
	if last.Text != "good\n\njob" || len(last.Buttons) != 2 {
		t.Errorf("explanation = %+v", last)
	}
	if last.Buttons[0].Action != chat.ActionExplain || last.Buttons[1].Action != chat.ActionNextQuestion {
		t.Errorf("explanation buttons = %+v", last.Buttons)
	}
	if got := backend.AnswerRequests[0]; got.QuestionID != "11" || got.Answer != "42" {
		t.Errorf("answer request = %+v", got)
	}
	if reply.Session.State != tutor.StateAnswered {
		t.Errorf("State = %q, want answered", reply.Session.State)
	}

	// Detailed explanation uses the last question and answer.
	reply = mustReply(t)(f.coord.Explain(ctx, id))
	if len(reply.Messages) != 1 || reply.Messages[0].Text != "detail" {
		t.Errorf("explain messages = %+v", reply.Messages)
	}
	if got := backend.ExplainRequests[0]; got.Question != "Q11" || got.Answer != "42" {
		t.Errorf("explain request = %+v", got)
	}

	// Second question lands on the last point of goal1.
	reply = mustReply(t)(f.coord.NextQuestion(ctx, id))
	if reply.Session.Progress.PointsCompleted != 1 || reply.Session.Progress.CurrentPoint != "p2" {
		t.Errorf("Progress = %+v", reply.Session.Progress)
	}
	if reply.Preview == nil || !reply.Preview.Pending || reply.Preview.NextGoal != 2 || reply.Preview.NextGoalTitle != "q1" {
		t.Errorf("Preview = %+v, want pending goal2 q1", reply.Preview)
	}

	// Completing goal1 asks about the level before moving on.
	mustReply(t)(f.coord.SubmitAnswer(ctx, id, "x"))
	reply = mustReply(t)(f.coord.NextQuestion(ctx, id))
	if reply.Session.State != tutor.StateAwaitingGoalChoice {
		t.Fatalf("State = %q, want awaiting_goal_choice", reply.Session.State)
	}
	prompt := reply.Messages[0]
	if !strings.Contains(prompt.Text, "q1") || !strings.Contains(prompt.Text, "متوسط") {
		t.Errorf("goal change prompt = %q", prompt.Text)
	}
	if len(prompt.Buttons) != 2 || prompt.Buttons[0].Action != chat.ActionKeepLevel || prompt.Buttons[1].Action != chat.ActionChangeLevel {
		t.Errorf("goal change buttons = %+v", prompt.Buttons)
	}
	if reply.Session.Progress.Goal != 2 || reply.Session.Progress.PointsCompleted != 0 {
		t.Errorf("Progress = %+v, want goal2 reset", reply.Session.Progress)
	}
	if len(backend.QuestionRequests) != 2 {
		t.Errorf("question requests = %d, goal change should not generate", len(backend.QuestionRequests))
	}

	ev := f.events.OfType(tutor.EventGoalChanged)
	if len(ev) != 1 || ev[0].Data["prev_goal"] != "goal1" || ev[0].Data["new_goal"] != "goal2" {
		t.Errorf("goal_changed events = %+v", ev)
	}
	sel, _, _ := f.selections.LoadSelection(ctx, "ali")
	if sel.Goal != "goal2" {
		t.Errorf("selection goal = %q, want goal2", sel.Goal)
	}

	// Keeping the level asks for a goal2 question.
	reply = mustReply(t)(f.coord.KeepLevel(ctx, id))
	if reply.Messages[0].Text != "الإبقاء على نفس المستوى" || reply.Messages[0].FromAI {
		t.Errorf("keep level echo = %+v", reply.Messages[0])
	}
	if got := backend.QuestionRequests[2]; got.Goal != "goal2" || got.Level != 2 {
		t.Errorf("question request = %+v", got)
	}
	if reply.Session.State != tutor.StateAwaitingAnswer {
		t.Errorf("State = %q, want awaiting_answer", reply.Session.State)
	}
	if n := len(f.events.OfType(tutor.EventQuestionGenerated)); n != 3 {
		t.Errorf("question_generated events = %d, want 3", n)
	}
}

func TestCoordinator_ChangeLevelOnGoalChange(t *testing.T) {
	backend := &scai.MockBackend{
		Questions: []scai.QuestionResponse{
			question("1", "goal1", "p2"),
			question("2", "goal2", "q1"),
		},
		Explanation: []string{"ok"},
	}
	f := newFixture(t, backend)
	ctx := context.Background()
	id := start(t, f).ID

	mustReply(t)(f.coord.SelectLevel(ctx, id, 1))
	mustReply(t)(f.coord.SubmitAnswer(ctx, id, "a"))
	reply := mustReply(t)(f.coord.NextQuestion(ctx, id))
	if reply.Session.State != tutor.StateAwaitingGoalChoice {
		t.Fatalf("State = %q, want awaiting_goal_choice", reply.Session.State)
	}
	if !strings.Contains(reply.Messages[0].Text, "مبتدئ") {
		t.Errorf("prompt should name the current level: %q", reply.Messages[0].Text)
	}

	reply = mustReply(t)(f.coord.ChangeLevel(ctx, id))
	if reply.Session.State != tutor.StateAwaitingLevel {
		t.Fatalf("State = %q, want awaiting_level", reply.Session.State)
	}
	if len(reply.Messages) != 2 || len(reply.Messages[1].Buttons) != 3 {
		t.Errorf("change level messages = %+v", reply.Messages)
	}

	reply = mustReply(t)(f.coord.SelectLevel(ctx, id, 3))
	if got := backend.QuestionRequests[1]; got.Level != 3 || got.Goal != "goal2" {
		t.Errorf("question request = %+v", got)
	}
	if reply.Session.Level != 3 {
		t.Errorf("Level = %d, want 3", reply.Session.Level)
	}
}

func TestCoordinator_BackendFailureLeavesSessionUnchanged(t *testing.T) {
	backend := &scai.MockBackend{Questions: []scai.QuestionResponse{question("1", "goal1", "p1")}}
	f := newFixture(t, backend)
	ctx := context.Background()
	id := start(t, f).ID

	backend.Err = errors.New("backend down")
	reply, err := f.coord.SelectLevel(ctx, id, 1)
	if err != nil {
		t.Fatalf("SelectLevel() error = %v, remote failures should not fail", err)
	}
	last := reply.Messages[len(reply.Messages)-1]
	if last.Text != "عذراً، حدث خطأ في توليد السؤال. الرجاء المحاولة مرة أخرى." {
		t.Errorf("apology = %q", last.Text)
	}
	got, _ := f.coord.Get(ctx, id)
	if got.State != tutor.StateAwaitingLevel || got.Level != 0 {
		t.Errorf("session = %+v, want unchanged", got)
	}

	// Retry succeeds, then a failed next question keeps goal progress.
	backend.Err = nil
	mustReply(t)(f.coord.SelectLevel(ctx, id, 1))
	mustReply(t)(f.coord.SubmitAnswer(ctx, id, "a"))

	backend.Err = errors.New("backend down")
	reply, err = f.coord.NextQuestion(ctx, id)
	if err != nil {
		t.Fatalf("NextQuestion() error = %v", err)
	}
	if reply.Session.State != tutor.StateAnswered {
		t.Errorf("State = %q, want answered", reply.Session.State)
	}
	got, _ = f.coord.Get(ctx, id)
	if got.Progress.PointsCompleted != 0 {
		t.Errorf("PointsCompleted = %d, failed turn should not consume a point", got.Progress.PointsCompleted)
	}

	reply, _ = f.coord.SubmitAnswer(ctx, id, "b")
	if last := reply.Messages[len(reply.Messages)-1]; last.Text != "عذراً، حدث خطأ في تقييم الإجابة. الرجاء المحاولة مرة أخرى." {
		t.Errorf("answer apology = %q", last.Text)
	}
	reply, _ = f.coord.Explain(ctx, id)
	if last := reply.Messages[len(reply.Messages)-1]; last.Text != "عذراً، حدث خطأ في طلب الشرح. الرجاء المحاولة مرة أخرى." {
		t.Errorf("explain apology = %q", last.Text)
	}
}

func TestCoordinator_UnsuccessfulStatusIsAFailure(t *testing.T) {
	backend := &scai.MockBackend{Questions: []scai.QuestionResponse{{Status: "error"}}}
	f := newFixture(t, backend)
	id := start(t, f).ID

	reply := mustReply(t)(f.coord.SelectLevel(context.Background(), id, 2))
	if !strings.HasPrefix(reply.Messages[len(reply.Messages)-1].Text, "عذراً") {
		t.Errorf("messages = %q, want apology", messageTexts(reply.Messages))
	}
	if reply.Session.State != tutor.StateAwaitingLevel {
		t.Errorf("State = %q, want awaiting_level", reply.Session.State)
	}
}

func TestCoordinator_DriftEvents(t *testing.T) {
	backend := &scai.MockBackend{Questions: []scai.QuestionResponse{
		question("1", "goal1", "not-in-table"),
		question("2", "goal9", ""),
	}, Explanation: []string{"ok"}}
	f := newFixture(t, backend)
	ctx := context.Background()
	id := start(t, f).ID

	mustReply(t)(f.coord.SelectLevel(ctx, id, 1))
	mustReply(t)(f.coord.SubmitAnswer(ctx, id, "a"))
	reply := mustReply(t)(f.coord.NextQuestion(ctx, id))

	if reply.Session.Progress.Goal != 9 {
		t.Errorf("Goal = %d, backend goal should be adopted", reply.Session.Progress.Goal)
	}

	drifts := f.events.OfType(tutor.EventCurriculumDrift)
	kinds := make([]string, 0, len(drifts))
	for _, d := range drifts {
		kinds = append(kinds, d.Data["kind"].(string))
	}
	if strings.Join(kinds, ",") != "point_not_found,goal_not_found" {
		t.Errorf("drift kinds = %v", kinds)
	}
}

func TestCoordinator_Errors(t *testing.T) {
	f := newFixture(t, &scai.MockBackend{})
	ctx := context.Background()
	id := start(t, f).ID

	tests := []struct {
		name    string
		action  string
		value   string
		id      string
		wantErr error
	}{
		{"unknown session", chat.ActionLevel, "1", "missing", tutor.ErrSessionNotFound},
		{"level out of range", chat.ActionLevel, "5", id, tutor.ErrInvalidLevel},
		{"level not a number", chat.ActionLevel, "one", id, tutor.ErrInvalidLevel},
		{"answer before question", chat.ActionAnswer, "42", id, tutor.ErrUnexpectedAction},
		{"explain before answer", chat.ActionExplain, "", id, tutor.ErrUnexpectedAction},
		{"keep level without goal change", chat.ActionKeepLevel, "", id, tutor.ErrUnexpectedAction},
		{"unknown action", "dance", "", id, tutor.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.coord.Act(ctx, tt.id, tt.action, tt.value)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Act() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	mustReply(t)(f.coord.SelectLevel(ctx, id, 1))
	if _, err := f.coord.SubmitAnswer(ctx, id, "   "); !errors.Is(err, tutor.ErrInvalidRequest) {
		t.Errorf("SubmitAnswer(blank) error = %v, want ErrInvalidRequest", err)
	}
}

func TestCoordinator_End(t *testing.T) {
	f := newFixture(t, &scai.MockBackend{})
	ctx := context.Background()
	id := start(t, f).ID

	reply := mustReply(t)(f.coord.End(ctx, id))
	if !reply.Session.Ended() || reply.Session.State != tutor.StateEnded {
		t.Errorf("session = %+v, want ended", reply.Session)
	}
	if _, err := f.coord.End(ctx, id); !errors.Is(err, tutor.ErrSessionEnded) {
		t.Errorf("second End() error = %v, want ErrSessionEnded", err)
	}
}

func TestCoordinator_Handle(t *testing.T) {
	f := newFixture(t, &scai.MockBackend{})
	id := start(t, f).ID

	var handler chat.Handler = f.coord.Handle
	msgs, err := handler(context.Background(), chat.InboundMessage{SessionID: id, Action: chat.ActionLevel, Value: "3"})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if texts := messageTexts(msgs); texts[len(texts)-1] != "mock question" {
		t.Errorf("messages = %q", texts)
	}
}

func TestCoordinator_SerializesSessionActions(t *testing.T) {
	backend := &scai.MockBackend{Explanation: []string{"ok"}}
	f := newFixture(t, backend)
	ctx := context.Background()
	id := start(t, f).ID
	mustReply(t)(f.coord.SelectLevel(ctx, id, 1))

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.coord.SubmitAnswer(ctx, id, "a"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("SubmitAnswer() error = %v", err)
	}
	if got := len(f.events.OfType(tutor.EventAnswerSubmitted)); got != n {
		t.Errorf("answer_submitted events = %d, want %d", got, n)
	}
}

func TestCoordinator_ExpireIdle(t *testing.T) {
	f := newFixture(t, &scai.MockBackend{})
	ctx := context.Background()
	id := start(t, f).ID

	n, err := f.coord.ExpireIdle(time.Now().Add(-time.Hour))
	if err != nil || n != 0 {
		t.Fatalf("ExpireIdle(past) = %d, %v; want 0", n, err)
	}

	n, err = f.coord.ExpireIdle(time.Now().Add(time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("ExpireIdle(future) = %d, %v; want 1", n, err)
	}
	got, _ := f.coord.Get(ctx, id)
	if !got.Ended() {
		t.Error("idle session should be ended")
	}
}

// blockingBackend holds GenerateQuestion until release is closed.
type blockingBackend struct {
	*scai.MockBackend
	started chan struct{}
	release chan struct{}
}

func newBlockingBackend() *blockingBackend {
	return &blockingBackend{
		MockBackend: &scai.MockBackend{},
		started:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
}

func (b *blockingBackend) GenerateQuestion(ctx context.Context, req scai.QuestionRequest) (scai.QuestionResponse, error) {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-b.release
	return b.MockBackend.GenerateQuestion(ctx, req)
}

func TestCoordinator_StartEndsSessionWithActionInFlight(t *testing.T) {
	backend := newBlockingBackend()
	f := newBackendFixture(t, backend)
	ctx := context.Background()
	old := start(t, f).ID

	actErr := make(chan error, 1)
	go func() {
		_, err := f.coord.SelectLevel(ctx, old, 2)
		actErr <- err
	}()
	<-backend.started

	started := make(chan tutor.Reply, 1)
	startErr := make(chan error, 1)
	go func() {
		reply, err := f.coord.Start(ctx, tutor.StartRequest{UserName: "ali", Chapter: "1", Lesson: "1-1"})
		startErr <- err
		started <- reply
	}()
	time.Sleep(20 * time.Millisecond)
	close(backend.release)

	if err := <-actErr; err != nil && !errors.Is(err, tutor.ErrSessionEnded) {
		t.Errorf("in-flight SelectLevel() error = %v", err)
	}
	if err := <-startErr; err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	next := (<-started).Session

	got, err := f.coord.Get(ctx, old)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.Ended() || got.State != tutor.StateEnded {
		t.Errorf("previous session = state %q ended %v, want ended", got.State, got.Ended())
	}
	if next.ID == old || next.Ended() {
		t.Errorf("new session = %+v, want a fresh active session", next)
	}
}

func TestCoordinator_ExpireIdleWithActionInFlight(t *testing.T) {
	backend := newBlockingBackend()
	f := newBackendFixture(t, backend)
	ctx := context.Background()
	id := start(t, f).ID

	actErr := make(chan error, 1)
	go func() {
		_, err := f.coord.SelectLevel(ctx, id, 1)
		actErr <- err
	}()
	<-backend.started

	if n, err := f.coord.ExpireIdle(time.Now().Add(time.Minute)); err != nil || n != 1 {
		t.Fatalf("ExpireIdle() = %d, %v; want 1", n, err)
	}
	close(backend.release)

	if err := <-actErr; !errors.Is(err, tutor.ErrSessionEnded) {
		t.Errorf("in-flight SelectLevel() error = %v, want ErrSessionEnded", err)
	}
	got, _ := f.coord.Get(ctx, id)
	if !got.Ended() || got.State != tutor.StateEnded {
		t.Errorf("expired session = state %q, want ended", got.State)
	}
}

func TestCoordinator_ReleasesLocks(t *testing.T) {
	f := newFixture(t, &scai.MockBackend{})
	ctx := context.Background()

	for range 50 {
		if _, err := f.coord.Act(ctx, "no-such-session", chat.ActionLevel, "1"); !errors.Is(err, tutor.ErrSessionNotFound) {
			t.Fatalf("Act() error = %v, want ErrSessionNotFound", err)
		}
	}
	if n := f.coord.LockCount(); n != 0 {
		t.Errorf("locks after unknown sessions = %d, want 0", n)
	}

	id := start(t, f).ID
	mustReply(t)(f.coord.SelectLevel(ctx, id, 1))
	mustReply(t)(f.coord.End(ctx, id))
	if _, err := f.coord.Explain(ctx, id); !errors.Is(err, tutor.ErrSessionEnded) {
		t.Fatalf("Explain() on ended session error = %v", err)
	}
	if n := f.coord.LockCount(); n != 0 {
		t.Errorf("locks after ended session = %d, want 0", n)
	}
}

func messageTexts(msgs []chat.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Text)
	}
	return out
}
