package curriculum

// Table is the curriculum of one subject: chapters, their lessons, and the
// ordered goals of each lesson.
type Table struct {
	Subject  string    `yaml:"subject"`
	Chapters []Chapter `yaml:"chapters"`
}

// Chapter is a top-level curriculum unit (e.g., "حالات المادة").
type Chapter struct {
	ID      string   `yaml:"id"`
	Title   string   `yaml:"title"`
	Lessons []Lesson `yaml:"lessons"`
}

// Lesson is a subdivision of a chapter, identified by its bare number.
type Lesson struct {
	Number string `yaml:"number"`
	Title  string `yaml:"title"`
	Goals  []Goal `yaml:"goals"`
}

// Goal is an instructional objective. Goal N of a lesson is Goals[N-1].
// An empty Points list marks a goal with no content.
type Goal struct {
	Points []string `yaml:"points"`
}

// GoalSummary describes a goal for selection menus.
type GoalSummary struct {
	Number     int      `json:"number"`
	Key        string   `json:"key"`
	Title      string   `json:"title"`
	Points     []string `json:"points"`
	PointCount int      `json:"point_count"`
}

// LessonSummary describes a lesson for selection menus.
type LessonSummary struct {
	Key    string `json:"key"` // compound "chapter-lesson" key
	Number string `json:"number"`
	Title  string `json:"title"`
}

// ChapterSummary describes a chapter and its lessons.
type ChapterSummary struct {
	ID      string          `json:"id"`
	Title   string          `json:"title"`
	Lessons []LessonSummary `json:"lessons"`
}
