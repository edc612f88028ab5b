package progress

import (
	"strconv"
	"strings"
)

// Column names of the progress table, in store order.
const (
	ColOwner              = "userId"
	ColCourse             = "courseId"
	ColChapter            = "chapterId"
	ColLesson             = "lessonId"
	ColQuizScore          = "quizScore"
	ColSimulationUnlocked = "simulationUnlocked"
	ColTask               = "taskId"
	ColTaskCompleted      = "taskCompleted"
	ColLessonCompleted    = "lessonCompleted"
)

// Header is the fixed 9-column schema every row is serialized with.
var Header = []string{
	ColOwner,
	ColCourse,
	ColChapter,
	ColLesson,
	ColQuizScore,
	ColSimulationUnlocked,
	ColTask,
	ColTaskCompleted,
	ColLessonCompleted,
}

// Record is one learner's state for one task.
// Optional fields are pointers: nil means absent, and absent fields are stored empty.
type Record struct {
	OwnerID            string `json:"ownerId" validate:"required,notblank"`
	CourseID           string `json:"courseId" validate:"required,notblank"`
	ChapterID          string `json:"chapterId" validate:"required,notblank"`
	LessonID           string `json:"lessonId,omitempty"`
	QuizScore          *int   `json:"quizScore,omitempty" validate:"omitempty,min=0,max=100"`
	SimulationUnlocked *bool  `json:"simulationUnlocked,omitempty"`
	TaskID             string `json:"taskId" validate:"required,notblank"`
	TaskCompleted      *bool  `json:"taskCompleted,omitempty"`
	LessonCompleted    *bool  `json:"lessonCompleted,omitempty"`
}

// Key is the natural key of a stored record: at most one row exists per Key.
type Key struct {
	OwnerID string
	TaskID  string
}

func (k Key) String() string {
	return k.OwnerID + "/" + k.TaskID
}

func (r Record) Key() Key {
	return Key{OwnerID: r.OwnerID, TaskID: r.TaskID}
}

// ClientKey is the key client-side mutations are coalesced under.
func (r Record) ClientKey() string {
	return r.CourseID + r.ChapterID + r.TaskID
}

// Clean trims all identifiers.
func (r *Record) Clean() {
	r.OwnerID = strings.TrimSpace(r.OwnerID)
	r.CourseID = strings.TrimSpace(r.CourseID)
	r.ChapterID = strings.TrimSpace(r.ChapterID)
	r.LessonID = strings.TrimSpace(r.LessonID)
	r.TaskID = strings.TrimSpace(r.TaskID)
}

// MissingFields lists the required identifiers that are blank.
func (r Record) MissingFields() []string {
	var missing []string
	for _, f := range []struct{ name, val string }{
		{ColOwner, r.OwnerID},
		{ColCourse, r.CourseID},
		{ColChapter, r.ChapterID},
		{ColTask, r.TaskID},
	} {
		if strings.TrimSpace(f.val) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Merge applies the fields set in delta on top of r and returns the result.
func (r Record) Merge(delta Record) Record {
	if delta.LessonID != "" {
		r.LessonID = delta.LessonID
	}
	if delta.QuizScore != nil {
		r.QuizScore = delta.QuizScore
	}
	if delta.SimulationUnlocked != nil {
		r.SimulationUnlocked = delta.SimulationUnlocked
	}
	if delta.TaskCompleted != nil {
		r.TaskCompleted = delta.TaskCompleted
	}
	if delta.LessonCompleted != nil {
		r.LessonCompleted = delta.LessonCompleted
	}
	return r
}

// Row serializes the record in Header order.
func (r Record) Row() []string {
	return []string{
		r.OwnerID,
		r.CourseID,
		r.ChapterID,
		r.LessonID,
		formatInt(r.QuizScore),
		formatBool(r.SimulationUnlocked),
		r.TaskID,
		formatBool(r.TaskCompleted),
		formatBool(r.LessonCompleted),
	}
}

// columns maps column names to their index in a header row.
type columns map[string]int

// newColumns indexes the known column names of the given header row; the first occurrence of a name wins.
// A header without any known name is read positionally, in Header order.
func newColumns(header []string) columns {
	cols := make(columns, len(Header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if !isColumn(name) {
			continue
		}
		if _, seen := cols[name]; !seen {
			cols[name] = i
		}
	}
	if len(cols) == 0 {
		for i, name := range Header {
			cols[name] = i
		}
	}
	return cols
}

func isColumn(name string) bool {
	for _, col := range Header {
		if col == name {
			return true
		}
	}
	return false
}

// missing returns the Header columns the header row does not have, in Header order.
func (c columns) missing() []string {
	var names []string
	for _, name := range Header {
		if _, ok := c[name]; !ok {
			names = append(names, name)
		}
	}
	return names
}

// row serializes rec into the column layout of c. Cells of unknown columns are left empty.
func (c columns) row(rec Record) []string {
	width := 0
	for _, idx := range c {
		if idx >= width {
			width = idx + 1
		}
	}
	row := make([]string, width)
	cells := rec.Row()
	for i, name := range Header {
		if idx, ok := c[name]; ok {
			row[idx] = cells[i]
		}
	}
	return row
}

func (c columns) cell(row []string, name string) string {
	idx, ok := c[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// record maps a store row into a Record.
func (c columns) record(row []string) Record {
	return Record{
		OwnerID:            c.cell(row, ColOwner),
		CourseID:           c.cell(row, ColCourse),
		ChapterID:          c.cell(row, ColChapter),
		LessonID:           c.cell(row, ColLesson),
		QuizScore:          parseInt(c.cell(row, ColQuizScore)),
		SimulationUnlocked: parseBool(c.cell(row, ColSimulationUnlocked)),
		TaskID:             c.cell(row, ColTask),
		TaskCompleted:      parseBool(c.cell(row, ColTaskCompleted)),
		LessonCompleted:    parseBool(c.cell(row, ColLessonCompleted)),
	}
}

// RecordFromRow maps a store row into a Record using the given header row.
func RecordFromRow(header, row []string) Record {
	return newColumns(header).record(row)
}

func formatInt(i *int) string {
	if i == nil {
		return ""
	}
	return strconv.Itoa(*i)
}

func formatBool(b *bool) string {
	if b == nil {
		return ""
	}
	return strconv.FormatBool(*b)
}

func parseInt(s string) *int {
	if s == "" {
		return nil
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		f, fErr := strconv.ParseFloat(s, 64) // sheets may render numbers as "85.0"
		if fErr != nil {
			return nil
		}
		i = int(f)
	}
	return &i
}

func parseBool(s string) *bool {
	if s == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.ToLower(s))
	if err != nil {
		return nil
	}
	return &b
}

// BatchItem is one entry of a batch update, carrying its own owner.
type BatchItem = Record

// BatchResult reports the outcome of one BatchItem.
type BatchResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Item    Record `json:"item"`
}
