package curriculum

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

//go:embed data/physics.yaml
var defaultPhysics []byte

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the embedded physics curriculum. It panics if the
// embedded document is invalid, which is caught by the package tests.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := Decode(bytes.NewReader(defaultPhysics))
		if err != nil {
			panic(fmt.Sprintf("embedded curriculum: %v", err))
		}
		defaultTable = t
	})
	return defaultTable
}

// Decode reads a YAML curriculum document.
func Decode(r io.Reader) (*Table, error) {
	var t Table
	if err := yaml.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("decode curriculum yaml: %w", err)
	}
	t.normalize()
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid curriculum: %w", err)
	}
	return &t, nil
}

// Workbook column order, shared by DecodeXLSX and ExportXLSX.
var xlsxHeader = []string{"chapter", "chapter_title", "lesson", "lesson_title", "goal", "point"}

// DecodeXLSX reads a curriculum workbook. The first sheet holds one row per
// point in teaching order; the first row is a header.
func DecodeXLSX(r io.Reader, subject string) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	t := &Table{Subject: subject}
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		cell := func(col int) string {
			if col < len(row) {
				return strings.TrimSpace(row[col])
			}
			return ""
		}
		chapterID, lessonNum, point := cell(0), cell(2), cell(5)
		if chapterID == "" && lessonNum == "" && point == "" {
			continue
		}
		goal, err := parseGoalCell(cell(4))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		if chapterID == "" || lessonNum == "" {
			return nil, fmt.Errorf("row %d: chapter and lesson are required", i+1)
		}

		c := t.chapterRef(chapterID, cell(1))
		l := c.lessonRef(lessonNum, cell(3))
		for len(l.Goals) < goal {
			l.Goals = append(l.Goals, Goal{})
		}
		if point != "" {
			l.Goals[goal-1].Points = append(l.Goals[goal-1].Points, point)
		}
	}

	t.normalize()
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid curriculum: %w", err)
	}
	return t, nil
}

// MaxGoalNumber bounds goal numbers read from workbooks.
const MaxGoalNumber = 1000

// parseGoalCell accepts "3" or "goal3".
func parseGoalCell(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(s), GoalPrefix))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid goal %q", s)
	}
	if n > MaxGoalNumber {
		return 0, fmt.Errorf("goal %q exceeds %d", s, MaxGoalNumber)
	}
	return n, nil
}

func (t *Table) chapterRef(id, title string) *Chapter {
	for i := range t.Chapters {
		if t.Chapters[i].ID == id {
			return &t.Chapters[i]
		}
	}
	t.Chapters = append(t.Chapters, Chapter{ID: id, Title: title})
	return &t.Chapters[len(t.Chapters)-1]
}

func (c *Chapter) lessonRef(number, title string) *Lesson {
	for i := range c.Lessons {
		if c.Lessons[i].Number == number {
			return &c.Lessons[i]
		}
	}
	c.Lessons = append(c.Lessons, Lesson{Number: number, Title: title})
	return &c.Lessons[len(c.Lessons)-1]
}

// ExportXLSX writes the table as a workbook readable by DecodeXLSX. Empty
// goals are written as a row without a point so numbering survives.
func ExportXLSX(w io.Writer, t *Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := t.Subject
	if sheet == "" {
		sheet = "curriculum"
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	header := make([]any, len(xlsxHeader))
	for i, h := range xlsxHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := 2
	write := func(values []any) error {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		row++
		return f.SetSheetRow(sheet, cell, &values)
	}

	for _, c := range t.Chapters {
		for _, l := range c.Lessons {
			for gi, g := range l.Goals {
				if len(g.Points) == 0 {
					if err := write([]any{c.ID, c.Title, l.Number, l.Title, gi + 1, ""}); err != nil {
						return fmt.Errorf("write row %d: %w", row, err)
					}
					continue
				}
				for _, p := range g.Points {
					if err := write([]any{c.ID, c.Title, l.Number, l.Title, gi + 1, p}); err != nil {
						return fmt.Errorf("write row %d: %w", row, err)
					}
				}
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
