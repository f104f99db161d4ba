package render

import (
	"html/template"
	"strings"

	"github.com/studtime/studtime/internal/models"
)

// MarkupBuilder turns a finished timetable into the HTML document handed to
// the renderer. The root element exposes data-ready="true" so the capture
// can wait for layout.
type MarkupBuilder struct {
	tmpl *template.Template
}

// NewMarkupBuilder compiles the built-in week template.
func NewMarkupBuilder() (*MarkupBuilder, error) {
	tmpl, err := template.New("week").Funcs(template.FuncMap{
		"clock": func(l models.TimetableLesson) string {
			return l.BeginTime.Format("15:04") + "–" + l.EndTime.Format("15:04")
		},
	}).Parse(weekTemplate)
	if err != nil {
		return nil, err
	}
	return &MarkupBuilder{tmpl: tmpl}, nil
}

type markupData struct {
	Style string
	Week  int
	Group string
	Days  []models.TimetableDay
}

// Build renders the document for one timetable and style.
func (b *MarkupBuilder) Build(tt *models.Timetable, styleName string) (string, error) {
	days := make([]models.TimetableDay, 0, models.ClassDays)
	for _, day := range tt.Days {
		days = append(days, day)
	}

	var sb strings.Builder
	err := b.tmpl.Execute(&sb, markupData{
		Style: styleName,
		Week:  tt.WeekNumber,
		Group: tt.GroupID,
		Days:  days,
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

const weekTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><style>
body{font-family:sans-serif;margin:0;padding:16px}
.day{margin-bottom:12px}
.day h3{margin:0 0 4px}
.lesson{padding:4px 8px;border-left:3px solid #888}
.lesson.hidden{opacity:.4;text-decoration:line-through}
.lesson.added{border-left-color:#2a2}
.lesson.modified{border-left-color:#fa0}
.style-compact .lesson{padding:2px 4px}
</style></head>
<body class="style-{{.Style}}" data-ready="true">
<h2>{{.Group}} — week {{.Week}}</h2>
{{range .Days}}<div class="day">
<h3>Day {{.Weekday}}</h3>
{{if .Lessons}}{{range .Lessons}}<div class="lesson{{if .Hidden}} hidden{{end}}{{if .Customization}} {{.Customization}}{{end}}">
<span>{{clock .}}</span> <b>{{.Discipline}}</b> {{.Kind}}
{{if .Online}}online{{else}}{{.Building}} {{.Room}}{{end}}
{{if .TeacherName}}<i>{{.TeacherName}}</i>{{end}}
{{range .Alternates}}<div class="alt">{{.Discipline}} ({{.Kind}})</div>{{end}}
</div>{{end}}{{else}}<div class="empty">no lessons</div>{{end}}
</div>{{end}}
</body>
</html>`
