package progress

// DriftKind classifies a mismatch between the local curriculum and the
// position the tracker was asked to hold.
type DriftKind string

const (
	// DriftMissingData: the chapter, lesson or goal has no points locally.
	DriftMissingData DriftKind = "missing_data"
	// DriftPointNotFound: a reported point is not part of the active goal.
	DriftPointNotFound DriftKind = "point_not_found"
	// DriftGoalNotFound: the backend moved the session to a goal with no
	// local content.
	DriftGoalNotFound DriftKind = "goal_not_found"
)

// Drift is a data-integrity diagnostic. It never affects control flow.
type Drift struct {
	Kind    DriftKind
	Chapter string
	Lesson  string
	Goal    GoalID
	Point   string
}

// Observer receives drift diagnostics.
type Observer interface {
	ObserveDrift(Drift)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Drift)

func (f ObserverFunc) ObserveDrift(d Drift) { f(d) }
