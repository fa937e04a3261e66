package progress

import (
	"strconv"
	"strings"

	"github.com/p-n-ai/scai/internal/curriculum"
)

// GoalID is the 1-based number of a goal within a lesson. The zero value
// means "no goal chosen".
type GoalID int

// String formats the goal as the backend's key, e.g. "goal2".
func (g GoalID) String() string {
	if g < 1 {
		return ""
	}
	return curriculum.GoalKey(int(g))
}

// Label is the generic display label, e.g. "الهدف 2".
func (g GoalID) Label() string {
	return curriculum.GoalLabel(int(g))
}

// ParseGoalID accepts "goal3" or "3". It returns false for anything that
// is not a positive goal number.
func ParseGoalID(s string) (GoalID, bool) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), curriculum.GoalPrefix)
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, false
	}
	return GoalID(n), true
}
