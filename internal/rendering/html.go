package rendering

import (
	"bytes"
	"embed"
	"encoding/base64"
	"html/template"
	"strings"

	"github.com/jonathan/cv-tailor/internal/types"
)

//go:embed templates/cv.html.tmpl
var templateFS embed.FS

// headings holds section titles per language. Unknown languages use English.
var headings = map[string]map[string]string{
	"en": {
		types.SectionProfile: "Profile", types.SectionWorkExperience: "Work Experience",
		types.SectionEducation: "Education", types.SectionFurtherExperience: "Further Experience",
		types.SectionSkills: "Skills", types.SectionLanguages: "Languages",
		types.SectionInterests: "Interests", types.SectionReferences: "References",
	},
	"de": {
		types.SectionProfile: "Profil", types.SectionWorkExperience: "Berufserfahrung",
		types.SectionEducation: "Ausbildung", types.SectionFurtherExperience: "Weitere Erfahrung",
		types.SectionSkills: "Kenntnisse", types.SectionLanguages: "Sprachen",
		types.SectionInterests: "Interessen", types.SectionReferences: "Referenzen",
	},
	"fr": {
		types.SectionProfile: "Profil", types.SectionWorkExperience: "Expérience professionnelle",
		types.SectionEducation: "Formation", types.SectionFurtherExperience: "Autres expériences",
		types.SectionSkills: "Compétences", types.SectionLanguages: "Langues",
		types.SectionInterests: "Centres d'intérêt", types.SectionReferences: "Références",
	},
}

type templateData struct {
	CV       *types.CV
	Language string
	Labels   map[string]string
	Photo    template.URL
}

var cvTemplate = template.Must(template.New("cv.html.tmpl").Funcs(template.FuncMap{
	"join":   strings.Join,
	"period": formatPeriod,
}).ParseFS(templateFS, "templates/cv.html.tmpl"))

// RenderHTML renders the CV as a standalone HTML document.
func RenderHTML(cv *types.CV, language string) (string, error) {
	if cv == nil {
		return "", &RenderError{Message: "cv is required"}
	}
	lang := strings.ToLower(strings.TrimSpace(language))
	if i := strings.IndexByte(lang, '-'); i > 0 {
		lang = lang[:i]
	}
	labels, ok := headings[lang]
	if !ok {
		labels = headings["en"]
	}
	if lang == "" {
		lang = "en"
	}

	data := templateData{CV: cv, Language: lang, Labels: labels, Photo: photoURL(cv.Photo)}

	var buf bytes.Buffer
	if err := cvTemplate.Execute(&buf, data); err != nil {
		return "", &TemplateError{Message: "failed to execute template", Cause: err}
	}
	return buf.String(), nil
}

// photoURL returns a padded base64 data URI for the photo, or "" when the
// payload does not decode. Only image data URIs are passed through.
func photoURL(photo string) template.URL {
	if strings.TrimSpace(photo) == "" {
		return ""
	}
	mime, data, err := types.DecodePhoto(photo)
	if err != nil {
		return ""
	}
	return template.URL("data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data))
}

func formatPeriod(p types.DateRange) string {
	switch {
	case p.Start != "" && p.End != "":
		return p.Start + " – " + p.End
	case p.Start != "":
		return p.Start
	default:
		return p.End
	}
}
