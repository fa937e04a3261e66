// Package progress tracks a learner's position within a lesson: which goal
// is active, which point of that goal is being taught, and when to move on
// to the next goal.
//
// Every lookup fails soft. Missing curriculum data yields empty results and
// unknown points yield a -1 sentinel; neither interrupts the lesson. Such
// mismatches are reported as Drift diagnostics instead.
package progress

import (
	"log/slog"
	"slices"

	"github.com/p-n-ai/scai/internal/curriculum"
)

// NextGoalFallbackTitle is shown when the next goal has no title.
const NextGoalFallbackTitle = "الهدف التالي"

// Curriculum provides the point labels of a goal. *curriculum.Table
// satisfies it.
type Curriculum interface {
	Points(chapter, lesson string, goal int) []string
}

// Transition describes the result of CompleteQuestion.
type Transition struct {
	GoalChanged bool   `json:"goal_changed"`
	PrevGoal    GoalID `json:"prev_goal,omitempty"`
	NewGoal     GoalID `json:"new_goal,omitempty"`
	GoalTitle   string `json:"goal_title,omitempty"`
}

// Preview describes a goal change that would happen once the current
// question is completed.
type Preview struct {
	Pending       bool   `json:"pending"`
	NextGoal      GoalID `json:"next_goal,omitempty"`
	NextGoalTitle string `json:"next_goal_title,omitempty"`
}

// State is a value copy of the tracker's position, used for persistence.
type State struct {
	Chapter         string `json:"chapter"`
	Lesson          string `json:"lesson"`
	Goal            GoalID `json:"goal"`
	PointsCompleted int    `json:"points_completed"`
	CurrentPoint    string `json:"current_point,omitempty"`
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithObserver forwards drift diagnostics to o in addition to the log.
func WithObserver(o Observer) Option {
	return func(t *Tracker) {
		t.observer = o
	}
}

// Tracker follows one learner session through a lesson. It is not safe for
// concurrent use; callers serialize access per session.
type Tracker struct {
	table    Curriculum
	observer Observer

	chapter         string
	lesson          string
	goal            GoalID
	pointsCompleted int
	currentPoint    string
	totalPoints     int
}

// New creates an unbound tracker over the given curriculum.
func New(table Curriculum, opts ...Option) *Tracker {
	t := &Tracker{table: table}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Initialize binds the tracker to a chapter and lesson. The lesson may be a
// bare number or a compound "chapter-lesson" key. A zero goal selects goal1.
// Progress resets unless the call names the exact position already held.
// It returns the effective goal.
func (t *Tracker) Initialize(chapter, lesson string, goal GoalID) GoalID {
	lesson = curriculum.LessonNumber(lesson)
	resume := goal > 0 && chapter == t.chapter && lesson == t.lesson && goal == t.goal
	if goal < 1 {
		goal = 1
	}

	t.chapter = chapter
	t.lesson = lesson
	t.goal = goal
	if !resume {
		t.pointsCompleted = 0
		t.currentPoint = ""
	}
	t.recount()

	if t.totalPoints == 0 {
		t.drift(DriftMissingData, "")
	}

	slog.Info("progress tracker initialized",
		"chapter", t.chapter,
		"lesson", t.lesson,
		"goal", t.goal.String(),
		"total_points", t.totalPoints,
		"resumed", resume,
	)
	return t.goal
}

// GoalPoints returns a copy of the active goal's points, or an empty slice.
func (t *Tracker) GoalPoints() []string {
	return append([]string{}, t.points()...)
}

// SetCurrentPoint records the point being taught and moves pointsCompleted
// to its index. It returns that index, or -1 when point is empty or not part
// of the active goal; in the latter case pointsCompleted is unchanged.
func (t *Tracker) SetCurrentPoint(point string) int {
	point = curriculum.NormalizeLabel(point)
	if point == "" {
		slog.Warn("ignoring empty current point", "goal", t.goal.String())
		return -1
	}

	t.currentPoint = point

	points := t.points()
	if len(points) == 0 {
		t.drift(DriftMissingData, point)
		return -1
	}

	idx := slices.Index(points, point)
	if idx < 0 {
		t.drift(DriftPointNotFound, point)
		return -1
	}

	t.pointsCompleted = idx
	slog.Debug("current point set",
		"point", point,
		"index", idx,
		"total_points", len(points),
	)
	return idx
}

// IsLastQuestionInGoal reports whether the point being taught is the last
// one of the active goal. A goal without points is never on its last question.
func (t *Tracker) IsLastQuestionInGoal() bool {
	points := t.points()
	if len(points) == 0 {
		return false
	}
	if t.currentPoint != "" {
		return slices.Index(points, t.currentPoint) == len(points)-1
	}
	return t.pointsCompleted >= len(points)-1
}

// CompleteQuestion consumes one point. When all points of the goal are
// consumed and a next goal with content exists, the tracker moves to it.
// The last goal of a lesson never advances past itself.
func (t *Tracker) CompleteQuestion() Transition {
	n := len(t.points())
	if n == 0 {
		slog.Warn("no goal points, staying on current goal",
			"chapter", t.chapter, "lesson", t.lesson, "goal", t.goal.String())
		return Transition{}
	}

	t.pointsCompleted = min(t.pointsCompleted+1, n)
	if t.pointsCompleted < n {
		return Transition{}
	}

	next := t.NextGoal()
	if next == t.goal {
		return Transition{}
	}

	prev := t.goal
	t.goal = next
	t.pointsCompleted = 0
	t.currentPoint = ""
	t.recount()

	slog.Info("goal advanced",
		"chapter", t.chapter,
		"lesson", t.lesson,
		"prev_goal", prev.String(),
		"new_goal", next.String(),
	)
	return Transition{
		GoalChanged: true,
		PrevGoal:    prev,
		NewGoal:     next,
		GoalTitle:   t.CurrentGoalTitle(),
	}
}

// NextGoal returns the goal after the active one when it has at least one
// point, otherwise the active goal.
func (t *Tracker) NextGoal() GoalID {
	if t.goal < 1 {
		return t.goal
	}
	next := t.goal + 1
	if len(t.pointsOf(next)) > 0 {
		return next
	}
	return t.goal
}

// PotentialGoalChange previews the goal change that completing the current
// question would cause, without changing any state.
func (t *Tracker) PotentialGoalChange() Preview {
	if !t.IsLastQuestionInGoal() {
		return Preview{}
	}
	next := t.NextGoal()
	if next == t.goal {
		return Preview{}
	}
	title := NextGoalFallbackTitle
	if points := t.pointsOf(next); len(points) > 0 && points[0] != "" {
		title = points[0]
	}
	return Preview{Pending: true, NextGoal: next, NextGoalTitle: title}
}

// SyncGoal adopts a goal reported by the backend, which is authoritative.
// Progress resets when the goal changes. A goal with no local content is
// still adopted and reported as drift. It reports whether the goal changed.
func (t *Tracker) SyncGoal(goal GoalID) bool {
	if goal < 1 || goal == t.goal {
		return false
	}
	prev := t.goal
	t.goal = goal
	t.pointsCompleted = 0
	t.currentPoint = ""
	t.recount()

	if t.totalPoints == 0 {
		t.drift(DriftGoalNotFound, "")
	}
	slog.Info("goal synced from backend", "prev_goal", prev.String(), "goal", goal.String())
	return true
}

// CurrentGoalTitle is the first point of the active goal, or its generic
// label when it has none. It is empty for an unbound tracker.
func (t *Tracker) CurrentGoalTitle() string {
	if t.chapter == "" || t.lesson == "" || t.goal < 1 {
		return ""
	}
	if points := t.points(); len(points) > 0 {
		return points[0]
	}
	return t.goal.Label()
}

// Snapshot returns the tracker's position.
func (t *Tracker) Snapshot() State {
	return State{
		Chapter:         t.chapter,
		Lesson:          t.lesson,
		Goal:            t.goal,
		PointsCompleted: t.pointsCompleted,
		CurrentPoint:    t.currentPoint,
	}
}

// Restore replaces the tracker's position with s. pointsCompleted is clamped
// to the goal's point count.
func (t *Tracker) Restore(s State) {
	t.chapter = s.Chapter
	t.lesson = curriculum.LessonNumber(s.Lesson)
	t.goal = s.Goal
	t.currentPoint = s.CurrentPoint
	t.recount()
	t.pointsCompleted = max(0, min(s.PointsCompleted, t.totalPoints))
}

func (t *Tracker) Chapter() string      { return t.chapter }
func (t *Tracker) Lesson() string       { return t.lesson }
func (t *Tracker) Goal() GoalID         { return t.goal }
func (t *Tracker) PointsCompleted() int { return t.pointsCompleted }
func (t *Tracker) CurrentPoint() string { return t.currentPoint }
func (t *Tracker) TotalPoints() int     { return t.totalPoints }

func (t *Tracker) points() []string {
	return t.pointsOf(t.goal)
}

func (t *Tracker) pointsOf(goal GoalID) []string {
	if t.table == nil || t.chapter == "" || t.lesson == "" || goal < 1 {
		return nil
	}
	return t.table.Points(t.chapter, t.lesson, int(goal))
}

func (t *Tracker) recount() {
	t.totalPoints = len(t.points())
}

func (t *Tracker) drift(kind DriftKind, point string) {
	d := Drift{
		Kind:    kind,
		Chapter: t.chapter,
		Lesson:  t.lesson,
		Goal:    t.goal,
		Point:   point,
	}
	slog.Warn("curriculum drift",
		"kind", string(kind),
		"chapter", d.Chapter,
		"lesson", d.Lesson,
		"goal", d.Goal.String(),
		"point", d.Point,
	)
	if t.observer != nil {
		t.observer.ObserveDrift(d)
	}
}
