// Package curriculum holds the static chapter → lesson → goal → point table
// the tutor teaches from, and loads it from YAML or XLSX sources.
package curriculum

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// GoalPrefix is the prefix of the goal keys exchanged with the backend.
const GoalPrefix = "goal"

// Chapter returns the chapter with the given id.
func (t *Table) Chapter(id string) (Chapter, bool) {
	if t == nil {
		return Chapter{}, false
	}
	for _, c := range t.Chapters {
		if c.ID == id {
			return c, true
		}
	}
	return Chapter{}, false
}

// Lesson returns a lesson by chapter id and lesson number. A compound
// "chapter-lesson" key is accepted in place of the bare number.
func (t *Table) Lesson(chapter, lesson string) (Lesson, bool) {
	c, ok := t.Chapter(chapter)
	if !ok {
		return Lesson{}, false
	}
	number := LessonNumber(lesson)
	for _, l := range c.Lessons {
		if l.Number == number {
			return l, true
		}
	}
	return Lesson{}, false
}

// Points returns the ordered point labels of goal n (1-based) in the given
// lesson, or nil when any part of the path is missing.
func (t *Table) Points(chapter, lesson string, n int) []string {
	l, ok := t.Lesson(chapter, lesson)
	if !ok || n < 1 || n > len(l.Goals) {
		return nil
	}
	return l.Goals[n-1].Points
}

// Goals lists the goals of a lesson that have content, in order.
func (t *Table) Goals(chapter, lesson string) []GoalSummary {
	l, ok := t.Lesson(chapter, lesson)
	if !ok {
		return []GoalSummary{}
	}
	goals := make([]GoalSummary, 0, len(l.Goals))
	for i, g := range l.Goals {
		if len(g.Points) == 0 {
			continue
		}
		n := i + 1
		goals = append(goals, GoalSummary{
			Number:     n,
			Key:        GoalKey(n),
			Title:      g.Points[0],
			Points:     append([]string(nil), g.Points...),
			PointCount: len(g.Points),
		})
	}
	return goals
}

// GoalDisplayName formats a goal for the learner, e.g. "الهدف 2: قوة الطفو".
func (t *Table) GoalDisplayName(chapter, lesson string, n int) string {
	points := t.Points(chapter, lesson, n)
	if len(points) == 0 {
		return GoalLabel(n)
	}
	return fmt.Sprintf("%s: %s", GoalLabel(n), points[0])
}

// Summary lists chapters with their lessons for selection menus.
func (t *Table) Summary() []ChapterSummary {
	if t == nil {
		return []ChapterSummary{}
	}
	out := make([]ChapterSummary, 0, len(t.Chapters))
	for _, c := range t.Chapters {
		cs := ChapterSummary{ID: c.ID, Title: c.Title, Lessons: make([]LessonSummary, 0, len(c.Lessons))}
		for _, l := range c.Lessons {
			cs.Lessons = append(cs.Lessons, LessonSummary{
				Key:    c.ID + "-" + l.Number,
				Number: l.Number,
				Title:  l.Title,
			})
		}
		out = append(out, cs)
	}
	return out
}

// Validate checks structural integrity: ids present and unique.
func (t *Table) Validate() error {
	if t.Subject == "" {
		return fmt.Errorf("subject is required")
	}
	seenChapters := make(map[string]bool, len(t.Chapters))
	for _, c := range t.Chapters {
		if c.ID == "" {
			return fmt.Errorf("chapter with empty id")
		}
		if seenChapters[c.ID] {
			return fmt.Errorf("duplicate chapter %q", c.ID)
		}
		seenChapters[c.ID] = true

		seenLessons := make(map[string]bool, len(c.Lessons))
		for _, l := range c.Lessons {
			if l.Number == "" {
				return fmt.Errorf("chapter %q: lesson with empty number", c.ID)
			}
			if seenLessons[l.Number] {
				return fmt.Errorf("chapter %q: duplicate lesson %q", c.ID, l.Number)
			}
			seenLessons[l.Number] = true
		}
	}
	return nil
}

// normalize trims and NFC-normalizes every label in place.
func (t *Table) normalize() {
	t.Subject = strings.TrimSpace(t.Subject)
	for ci := range t.Chapters {
		c := &t.Chapters[ci]
		c.ID = strings.TrimSpace(c.ID)
		c.Title = NormalizeLabel(c.Title)
		for li := range c.Lessons {
			l := &c.Lessons[li]
			l.Number = strings.TrimSpace(l.Number)
			l.Title = NormalizeLabel(l.Title)
			for gi := range l.Goals {
				for pi, p := range l.Goals[gi].Points {
					l.Goals[gi].Points[pi] = NormalizeLabel(p)
				}
			}
		}
	}
}

// NormalizeLabel trims surrounding space and applies Unicode NFC so labels
// reported by the backend compare equal to the table's.
func NormalizeLabel(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// LessonNumber reduces a compound "chapter-lesson" key to the lesson number.
// Bare numbers are returned unchanged.
func LessonNumber(key string) string {
	if _, after, ok := strings.Cut(key, "-"); ok && after != "" {
		return after
	}
	return key
}

// GoalKey formats goal n as the backend's key, e.g. "goal3".
func GoalKey(n int) string {
	return fmt.Sprintf("%s%d", GoalPrefix, n)
}

// GoalLabel is the generic Arabic label for goal n ("الهدف n").
func GoalLabel(n int) string {
	return fmt.Sprintf("الهدف %d", n)
}
