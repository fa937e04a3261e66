package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/p-n-ai/scai/internal/chat"
	"github.com/p-n-ai/scai/internal/curriculum"
	"github.com/p-n-ai/scai/internal/progress"
	"github.com/p-n-ai/scai/internal/scai"
)

const (
	defaultSubject        = "physics"
	defaultBackendTimeout = 60 * time.Second
)

// Backend generates questions and checks answers. *scai.Client and
// *scai.MockBackend satisfy it.
type Backend interface {
	GenerateQuestion(ctx context.Context, req scai.QuestionRequest) (scai.QuestionResponse, error)
	SubmitAnswer(ctx context.Context, req scai.AnswerRequest) (scai.AnswerResponse, error)
	ExplainAnswer(ctx context.Context, req scai.ExplainRequest) (scai.ExplainResponse, error)
}

// Curricula resolves a subject to its curriculum table. *curriculum.Loader
// satisfies it.
type Curricula interface {
	Table(subject string) (*curriculum.Table, bool)
}

// CoordinatorConfig holds dependencies for the coordinator.
type CoordinatorConfig struct {
	Backend        Backend
	Curricula      Curricula      // default: the embedded physics table
	Store          SessionStore   // default: in-memory
	Events         EventLogger    // default: discard
	Selections     SelectionStore // default: in-memory
	DefaultSubject string         // default: physics
	Timeout        time.Duration  // per backend call, default 60s
}

// Coordinator drives every session through the question flow. Operations on
// the same session are serialized; different sessions run concurrently.
type Coordinator struct {
	backend        Backend
	curricula      Curricula
	store          SessionStore
	events         EventLogger
	selections     SelectionStore
	defaultSubject string
	timeout        time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// StartRequest opens a session on a chapter and lesson. Lesson may be a bare
// number or a "chapter-lesson" key; Goal ("goal2" or "2") is optional.
type StartRequest struct {
	UserName string `json:"user_name"`
	Subject  string `json:"subject,omitempty"`
	Chapter  string `json:"chapter"`
	Lesson   string `json:"lesson"`
	Goal     string `json:"goal,omitempty"`
}

// Reply is the outcome of one operation: the session after it and the
// messages to show.
type Reply struct {
	Session  Session           `json:"session"`
	Messages []chat.Message    `json:"messages"`
	Preview  *progress.Preview `json:"preview,omitempty"`
}

// NewCoordinator creates a coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	c := &Coordinator{
		backend:        cfg.Backend,
		curricula:      cfg.Curricula,
		store:          cfg.Store,
		events:         cfg.Events,
		selections:     cfg.Selections,
		defaultSubject: cfg.DefaultSubject,
		timeout:        cfg.Timeout,
		locks:          make(map[string]*sync.Mutex),
	}
	if c.curricula == nil {
		c.curricula = embeddedCurricula{}
	}
	if c.store == nil {
		c.store = NewMemoryStore()
	}
	if c.events == nil {
		c.events = NopEventLogger{}
	}
	if c.selections == nil {
		c.selections = NewMemorySelectionStore()
	}
	if c.defaultSubject == "" {
		c.defaultSubject = defaultSubject
	}
	if c.timeout == 0 {
		c.timeout = defaultBackendTimeout
	}
	return c
}

// Start creates a session, ending the learner's previous active session,
// and asks for a difficulty level.
func (c *Coordinator) Start(ctx context.Context, req StartRequest) (Reply, error) {
	req.UserName = strings.TrimSpace(req.UserName)
	if req.UserName == "" {
		return Reply{}, fmt.Errorf("%w: user_name is required", ErrInvalidRequest)
	}
	if req.Chapter == "" || req.Lesson == "" {
		return Reply{}, fmt.Errorf("%w: chapter and lesson are required", ErrInvalidRequest)
	}
	subject := req.Subject
	if subject == "" {
		subject = c.defaultSubject
	}
	table, ok := c.curricula.Table(subject)
	if !ok {
		return Reply{}, fmt.Errorf("%w: unknown subject %q", ErrInvalidRequest, subject)
	}

	if prev, found := c.store.GetActiveSession(req.UserName); found {
		c.endPrevious(prev.ID)
	}

	goal, _ := progress.ParseGoalID(req.Goal)
	drifts := &driftLog{}
	tracker := progress.New(table, progress.WithObserver(drifts))
	tracker.Initialize(req.Chapter, req.Lesson, goal)

	sess := Session{
		UserName:  req.UserName,
		Subject:   subject,
		Chapter:   req.Chapter,
		LessonKey: req.Lesson,
		State:     StateAwaitingLevel,
		Progress:  tracker.Snapshot(),
	}
	id, err := c.store.CreateSession(sess)
	if err != nil {
		return Reply{}, fmt.Errorf("create session: %w", err)
	}
	stored, err := c.store.GetSession(id)
	if err != nil {
		return Reply{}, err
	}

	c.logEvent(stored, EventSessionStarted, map[string]any{
		"subject": subject,
		"chapter": tracker.Chapter(),
		"lesson":  tracker.Lesson(),
		"goal":    tracker.Goal().String(),
	})
	c.logDrifts(stored, drifts)
	c.saveSelection(ctx, stored)

	slog.Info("session started",
		"session_id", stored.ID,
		"user_name", stored.UserName,
		"chapter", stored.Chapter,
		"lesson", stored.LessonKey,
	)
	return Reply{Session: *stored, Messages: []chat.Message{levelPromptMessage()}}, nil
}

// Get returns a session by id.
func (c *Coordinator) Get(_ context.Context, id string) (Session, error) {
	sess, err := c.store.GetSession(id)
	if err != nil {
		return Session{}, err
	}
	return *sess, nil
}

// Selection returns the learner's last curriculum choice.
func (c *Coordinator) Selection(ctx context.Context, userName string) (Selection, bool, error) {
	return c.selections.LoadSelection(ctx, userName)
}

// ClearSelection forgets the learner's saved curriculum choice.
func (c *Coordinator) ClearSelection(ctx context.Context, userName string) error {
	return c.selections.ClearSelection(ctx, userName)
}

func (c *Coordinator) SelectLevel(ctx context.Context, id string, level int) (Reply, error) {
	return c.Act(ctx, id, chat.ActionLevel, strconv.Itoa(level))
}

func (c *Coordinator) SubmitAnswer(ctx context.Context, id, answer string) (Reply, error) {
	return c.Act(ctx, id, chat.ActionAnswer, answer)
}

func (c *Coordinator) Explain(ctx context.Context, id string) (Reply, error) {
	return c.Act(ctx, id, chat.ActionExplain, "")
}

func (c *Coordinator) NextQuestion(ctx context.Context, id string) (Reply, error) {
	return c.Act(ctx, id, chat.ActionNextQuestion, "")
}

func (c *Coordinator) KeepLevel(ctx context.Context, id string) (Reply, error) {
	return c.Act(ctx, id, chat.ActionKeepLevel, "")
}

func (c *Coordinator) ChangeLevel(ctx context.Context, id string) (Reply, error) {
	return c.Act(ctx, id, chat.ActionChangeLevel, "")
}

// End closes a session.
func (c *Coordinator) End(ctx context.Context, id string) (Reply, error) {
	return c.Act(ctx, id, chat.ActionEnd, "")
}

// Handle adapts the coordinator to a chat.Handler.
func (c *Coordinator) Handle(ctx context.Context, msg chat.InboundMessage) ([]chat.Message, error) {
	reply, err := c.Act(ctx, msg.SessionID, msg.Action, msg.Value)
	if err != nil {
		return nil, err
	}
	return reply.Messages, nil
}

// Act applies one learner action to a session. A failed backend call is not
// an error: the reply carries an apology and the session is left unchanged.
func (c *Coordinator) Act(ctx context.Context, id, action, value string) (Reply, error) {
	unlock := c.lock(id)
	defer unlock()

	sess, err := c.store.GetSession(id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			c.forget(id)
		}
		return Reply{}, err
	}
	if sess.Ended() {
		c.forget(id)
		return Reply{}, fmt.Errorf("%w: %s", ErrSessionEnded, id)
	}

	if action == chat.ActionEnd {
		return c.end(sess)
	}

	t := c.newTurn(sess)
	switch action {
	case chat.ActionLevel:
		err = c.selectLevel(ctx, t, value)
	case chat.ActionAnswer:
		err = c.submitAnswer(ctx, t, value)
	case chat.ActionExplain:
		err = c.explain(ctx, t)
	case chat.ActionNextQuestion:
		err = c.nextQuestion(ctx, t)
	case chat.ActionKeepLevel:
		err = c.keepLevel(ctx, t)
	case chat.ActionChangeLevel:
		err = c.changeLevel(t)
	default:
		err = fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, action)
	}
	if err != nil {
		return Reply{}, err
	}
	return c.commit(ctx, t)
}

// ExpireIdle ends every active session not updated since before.
func (c *Coordinator) ExpireIdle(before time.Time) (int, error) {
	ids, err := c.store.EndIdleSessions(before)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		c.forget(id)
	}
	return len(ids), nil
}

func (c *Coordinator) selectLevel(ctx context.Context, t *turn, value string) error {
	if err := t.expect(chat.ActionLevel, StateAwaitingLevel); err != nil {
		return err
	}
	level, err := ParseLevel(value)
	if err != nil {
		return err
	}
	t.sess.Level = level
	t.say(learnerMessage(strconv.Itoa(level)), aiMessage(levelAcks[level]))
	c.generate(ctx, t)
	return nil
}

func (c *Coordinator) submitAnswer(ctx context.Context, t *turn, value string) error {
	if err := t.expect(chat.ActionAnswer, StateAwaitingAnswer, StateAnswered); err != nil {
		return err
	}
	answer := strings.TrimSpace(value)
	if answer == "" {
		return fmt.Errorf("%w: answer is empty", ErrInvalidRequest)
	}
	t.say(learnerMessage(answer))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.backend.SubmitAnswer(ctx, scai.AnswerRequest{
		UserName:   t.sess.UserName,
		QuestionID: t.sess.QuestionID,
		Answer:     answer,
	})
	if err != nil {
		slog.Error("answer submission failed", "session_id", t.sess.ID, "error", err)
		t.fail(aiMessage(errAnswerText))
		return nil
	}

	t.say(explanationMessage(strings.Join(resp.Explanation, "\n\n")))
	t.sess.LastAnswer = answer
	t.sess.State = StateAnswered
	t.record(EventAnswerSubmitted, map[string]any{
		"question_id":   string(t.sess.QuestionID),
		"answer_length": len([]rune(answer)),
		"goal":          t.tracker.Goal().String(),
		"point":         t.tracker.CurrentPoint(),
	})
	return nil
}

func (c *Coordinator) explain(ctx context.Context, t *turn) error {
	if err := t.expect(chat.ActionExplain, StateAnswered); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.backend.ExplainAnswer(ctx, scai.ExplainRequest{
		Question: t.sess.QuestionText,
		Answer:   t.sess.LastAnswer,
	})
	if err != nil {
		slog.Error("explanation failed", "session_id", t.sess.ID, "error", err)
		t.fail(aiMessage(errExplainText))
		return nil
	}
	t.say(detailedExplanationMessage(resp.Explain.String()))
	return nil
}

func (c *Coordinator) nextQuestion(ctx context.Context, t *turn) error {
	if err := t.expect(chat.ActionNextQuestion, StateAnswered); err != nil {
		return err
	}

	tr := t.tracker.CompleteQuestion()
	if tr.GoalChanged {
		title := tr.GoalTitle
		if title == "" {
			title = tr.NewGoal.Label()
		}
		t.say(goalChangeMessage(title, t.sess.Level))
		t.sess.State = StateAwaitingGoalChoice
		t.record(EventGoalChanged, map[string]any{
			"prev_goal":  tr.PrevGoal.String(),
			"new_goal":   tr.NewGoal.String(),
			"goal_title": tr.GoalTitle,
		})
		return nil
	}
	c.generate(ctx, t)
	return nil
}

func (c *Coordinator) keepLevel(ctx context.Context, t *turn) error {
	if err := t.expect(chat.ActionKeepLevel, StateAwaitingGoalChoice); err != nil {
		return err
	}
	t.say(learnerMessage(labelKeepLevel))
	c.generate(ctx, t)
	return nil
}

func (c *Coordinator) changeLevel(t *turn) error {
	if err := t.expect(chat.ActionChangeLevel, StateAwaitingGoalChoice); err != nil {
		return err
	}
	t.say(learnerMessage(labelChangeLevel), levelPromptMessage())
	t.sess.State = StateAwaitingLevel
	return nil
}

// generate asks the backend for the next question of the tracker's goal and
// lets the backend's goal and point placement override local progress.
func (c *Coordinator) generate(ctx context.Context, t *turn) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.backend.GenerateQuestion(ctx, scai.QuestionRequest{
		UserName: t.sess.UserName,
		Subject:  t.sess.Subject,
		Chapter:  t.tracker.Chapter(),
		Lesson:   t.tracker.Lesson(),
		Level:    t.sess.Level,
		Goal:     t.tracker.Goal().String(),
	})
	if err == nil && !resp.OK() {
		err = fmt.Errorf("%w: status %q", scai.ErrInvalidResponse, resp.Status)
	}
	if err != nil {
		slog.Error("question generation failed", "session_id", t.sess.ID, "error", err)
		t.fail(aiMessage(errGenerateText))
		return
	}

	if g, ok := progress.ParseGoalID(resp.Goal); ok {
		t.tracker.SyncGoal(g)
	}
	if resp.Point != "" {
		t.tracker.SetCurrentPoint(resp.Point)
	}

	for _, part := range nonBlank(resp.Response) {
		t.say(aiMessage(part))
	}
	for _, q := range nonBlank(resp.Question) {
		t.say(questionMessage(q))
	}

	t.sess.QuestionID = resp.ID
	t.sess.QuestionText = strings.Join(resp.Question, "\n\n")
	t.sess.LastAnswer = ""
	t.sess.State = StateAwaitingAnswer

	preview := t.tracker.PotentialGoalChange()
	t.preview = &preview
	t.record(EventQuestionGenerated, map[string]any{
		"question_id": string(resp.ID),
		"level":       t.sess.Level,
		"goal":        t.tracker.Goal().String(),
		"point":       t.tracker.CurrentPoint(),
	})
}

func (c *Coordinator) end(sess *Session) (Reply, error) {
	if err := c.store.EndSession(sess.ID); err != nil {
		return Reply{}, fmt.Errorf("end session: %w", err)
	}
	c.forget(sess.ID)

	ended, err := c.store.GetSession(sess.ID)
	if err != nil {
		return Reply{}, err
	}
	slog.Info("session ended", "session_id", sess.ID, "user_name", sess.UserName)
	return Reply{Session: *ended, Messages: []chat.Message{}}, nil
}

// commit persists a successful turn. A failed turn only returns its
// messages.
func (c *Coordinator) commit(ctx context.Context, t *turn) (Reply, error) {
	if t.failed {
		return Reply{Session: t.orig, Messages: t.messages}, nil
	}

	t.sess.Progress = t.tracker.Snapshot()
	if err := c.store.SaveSession(t.sess); err != nil {
		return Reply{}, fmt.Errorf("save session: %w", err)
	}
	t.sess.UpdatedAt = time.Now()

	for _, e := range t.events {
		c.logEvent(&t.sess, e.EventType, e.Data)
	}
	c.logDrifts(&t.sess, t.drifts)
	if t.sess.Progress.Goal != t.orig.Progress.Goal {
		c.saveSelection(ctx, &t.sess)
	}

	return Reply{Session: t.sess, Messages: t.messages, Preview: t.preview}, nil
}

func (c *Coordinator) newTurn(sess *Session) *turn {
	table, ok := c.curricula.Table(sess.Subject)
	if !ok {
		table = &curriculum.Table{Subject: sess.Subject}
	}
	drifts := &driftLog{}
	tracker := progress.New(table, progress.WithObserver(drifts))
	tracker.Restore(sess.Progress)
	return &turn{
		sess:    *sess,
		orig:    *sess,
		tracker: tracker,
		drifts:  drifts,
	}
}

func (c *Coordinator) logEvent(sess *Session, eventType string, data map[string]any) {
	if err := c.events.LogEvent(Event{
		SessionID: sess.ID,
		UserName:  sess.UserName,
		EventType: eventType,
		Data:      data,
	}); err != nil {
		slog.Warn("failed to log event", "type", eventType, "session_id", sess.ID, "error", err)
	}
}

func (c *Coordinator) logDrifts(sess *Session, drifts *driftLog) {
	for _, d := range drifts.drifts {
		c.logEvent(sess, EventCurriculumDrift, map[string]any{
			"kind":    string(d.Kind),
			"chapter": d.Chapter,
			"lesson":  d.Lesson,
			"goal":    d.Goal.String(),
			"point":   d.Point,
		})
	}
}

func (c *Coordinator) saveSelection(ctx context.Context, sess *Session) {
	sel := Selection{
		Subject: sess.Subject,
		Chapter: sess.Chapter,
		Lesson:  sess.LessonKey,
		Goal:    sess.Progress.Goal.String(),
	}
	if err := c.selections.SaveSelection(ctx, sess.UserName, sel); err != nil {
		slog.Warn("failed to save selection", "user_name", sess.UserName, "error", err)
	}
}

// endPrevious ends a superseded session once any action in flight on it has
// committed.
func (c *Coordinator) endPrevious(id string) {
	unlock := c.lock(id)
	defer unlock()
	if err := c.store.EndSession(id); err != nil {
		slog.Error("failed to end previous session", "session_id", id, "error", err)
	}
	c.forget(id)
}

func (c *Coordinator) lock(id string) func() {
	c.mu.Lock()
	l, ok := c.locks[id]
	if !ok {
		l = &sync.Mutex{}
		c.locks[id] = l
	}
	c.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (c *Coordinator) forget(id string) {
	c.mu.Lock()
	delete(c.locks, id)
	c.mu.Unlock()
}

// turn accumulates the effects of one action until commit.
type turn struct {
	sess     Session
	orig     Session
	tracker  *progress.Tracker
	drifts   *driftLog
	messages []chat.Message
	events   []Event
	preview  *progress.Preview
	failed   bool
}

func (t *turn) say(msgs ...chat.Message) {
	t.messages = append(t.messages, msgs...)
}

func (t *turn) fail(msg chat.Message) {
	t.say(msg)
	t.failed = true
}

func (t *turn) record(eventType string, data map[string]any) {
	t.events = append(t.events, Event{EventType: eventType, Data: data})
}

func (t *turn) expect(action string, states ...State) error {
	for _, s := range states {
		if t.sess.State == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s in %s", ErrUnexpectedAction, action, t.sess.State)
}

type driftLog struct {
	drifts []progress.Drift
}

func (d *driftLog) ObserveDrift(dr progress.Drift) {
	d.drifts = append(d.drifts, dr)
}

type embeddedCurricula struct{}

func (embeddedCurricula) Table(subject string) (*curriculum.Table, bool) {
	t := curriculum.Default()
	return t, subject == t.Subject
}
