package mail

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/mikey/maccafe-matcher/internal/core"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	defaultRecipientName = "there"
	defaultMatchName     = "Your Match"
)

var genderLabels = map[core.Gender]string{
	core.GenderMale:   "Male",
	core.GenderFemale: "Female",
	core.GenderOther:  "Other",
}

var ageRangeLabels = map[core.AgeRange]string{
	core.AgeRange14to16: "14-16",
	core.AgeRange17to18: "17-18",
	core.AgeRange19to21: "19-21",
	core.AgeRange22Plus: "22+",
}

// GenderLabel returns the display label of a gender, or the raw value if unknown
func GenderLabel(g core.Gender) string {
	if label, ok := genderLabels[g]; ok {
		return label
	}
	return string(g)
}

// AgeRangeLabel returns the display label of an age range, or the raw value if unknown
func AgeRangeLabel(r core.AgeRange) string {
	if label, ok := ageRangeLabels[r]; ok {
		return label
	}
	return string(r)
}

// FormatInterests title-cases interest tags and joins them with commas
func FormatInterests(interests []core.Interest) string {
	// Casers keep state and cannot be shared between goroutines
	caser := cases.Title(language.English)
	out := make([]string, len(interests))
	for i, interest := range interests {
		out[i] = caser.String(string(interest))
	}
	return strings.Join(out, ", ")
}

// Content is a rendered notification
type Content struct {
	Subject string
	Text    string
	HTML    string
}

// view is what the templates see
type view struct {
	RecipientName string
	MatchName     string
	AvatarURL     string
	Gender        string
	AgeRange      string
	Interests     string
	Intro         string
}

var textTemplate = texttemplate.Must(texttemplate.New("text").Parse(`Hey {{.RecipientName}}!

We found someone who matches your preferences!
{{if .Intro}}
{{.Intro}}
{{end}}
{{.MatchName}}
Gender: {{.Gender}}
Age Range: {{.AgeRange}}
Interests: {{.Interests}}
{{if .AvatarURL}}Photo: {{.AvatarURL}}
{{end}}
This email was sent by MacCafe matching system.
`))

var htmlTemplate = htmltemplate.Must(htmltemplate.New("html").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h1 style="color: #333; text-align: center;">Hey {{.RecipientName}}! &#127881;</h1>
  <p style="color: #666; font-size: 16px; text-align: center;">We found someone who matches your preferences!</p>
  {{- if .Intro}}
  <p style="color: #444; font-size: 15px; font-style: italic; text-align: center;">{{.Intro}}</p>
  {{- end}}
  <div style="background: #f9f9f9; border-radius: 12px; padding: 24px; margin: 24px 0;">
    {{- if .AvatarURL}}
    <img src="{{.AvatarURL}}" alt="{{.MatchName}}" style="width: 100px; height: 100px; border-radius: 50%; object-fit: cover; display: block; margin: 0 auto 16px;" />
    {{- end}}
    <h2 style="color: #333; text-align: center; margin: 0 0 16px;">{{.MatchName}}</h2>
    <div style="color: #666; font-size: 14px;">
      <p><strong>Gender:</strong> {{.Gender}}</p>
      <p><strong>Age Range:</strong> {{.AgeRange}}</p>
      <p><strong>Interests:</strong> {{.Interests}}</p>
    </div>
  </div>
  <p style="color: #999; font-size: 12px; text-align: center;">This email was sent by MacCafe matching system.</p>
</div>
`))

// Renderer turns notifications into subject and bodies
type Renderer struct {
	avatarBaseURL string
}

// NewRenderer creates a renderer; avatar paths are resolved against avatarBaseURL
func NewRenderer(avatarBaseURL string) *Renderer {
	return &Renderer{avatarBaseURL: strings.TrimSuffix(avatarBaseURL, "/")}
}

// AvatarURL returns the public URL of an avatar, or "" when there is none
func (r *Renderer) AvatarURL(avatarPath string) string {
	if avatarPath == "" || r.avatarBaseURL == "" {
		return ""
	}
	return r.avatarBaseURL + "/" + strings.TrimPrefix(avatarPath, "/")
}

// Render produces the subject, plain text and HTML of a notification
func (r *Renderer) Render(n *core.Notification) (*Content, error) {
	v := view{
		RecipientName: n.RecipientName,
		MatchName:     n.Match.Name,
		AvatarURL:     r.AvatarURL(n.Match.AvatarPath),
		Gender:        GenderLabel(n.Match.Gender),
		AgeRange:      AgeRangeLabel(n.Match.AgeRange),
		Interests:     FormatInterests(n.Match.Interests),
		Intro:         strings.TrimSpace(n.Intro),
	}
	if v.RecipientName == "" {
		v.RecipientName = defaultRecipientName
	}
	if v.MatchName == "" {
		v.MatchName = defaultMatchName
	}

	var text, html bytes.Buffer
	if err := textTemplate.Execute(&text, v); err != nil {
		return nil, fmt.Errorf("failed to render text body: %w", err)
	}
	if err := htmlTemplate.Execute(&html, v); err != nil {
		return nil, fmt.Errorf("failed to render html body: %w", err)
	}

	return &Content{
		Subject: fmt.Sprintf("You have a new match: %s!", v.MatchName),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
