package mailer

import (
	"bytes"
	"html/template"

	accounts "github.com/goliatone/go-accounts"
	"golang.org/x/text/language"
)

// Template is one localized verification email.
type Template struct {
	Subject string
	Body    string
}

type compiled struct {
	subject string
	body    *template.Template
}

// Catalog picks a verification template by language tag. It implements
// accounts.VerificationComposer.
type Catalog struct {
	tags      []language.Tag
	templates []compiled
	matcher   language.Matcher
}

// DefaultTemplates ships English (the fallback) and Spanish.
func DefaultTemplates() map[language.Tag]Template {
	return map[language.Tag]Template{
		language.English: {
			Subject: "Account Verification",
			Body: `<p>Hello {{.Username}},</p>` +
				`<p>Please confirm your email address by following this link: ` +
				`<a href="{{.Link}}">{{.Link}}</a></p>`,
		},
		language.Spanish: {
			Subject: "Verificación de cuenta",
			Body: `<p>Hola {{.Username}},</p>` +
				`<p>Confirma tu correo electrónico con el siguiente enlace: ` +
				`<a href="{{.Link}}">{{.Link}}</a></p>`,
		},
	}
}

// NewCatalog compiles templates. fallback is used for unmatched tags and
// must be one of the keys.
func NewCatalog(fallback language.Tag, templates map[language.Tag]Template) (*Catalog, error) {
	if _, ok := templates[fallback]; !ok {
		clone := accounts.ErrConfiguration.Clone()
		clone.Message = "fallback language has no template"
		clone.Source = accounts.ErrConfiguration
		return nil, clone.WithMetadata(map[string]any{"language": fallback.String()})
	}

	c := &Catalog{}
	add := func(tag language.Tag, t Template) error {
		body, err := template.New(tag.String()).Parse(t.Body)
		if err != nil {
			clone := accounts.ErrConfiguration.Clone()
			clone.Message = "invalid email template: " + err.Error()
			clone.Source = accounts.ErrConfiguration
			return clone.WithMetadata(map[string]any{"language": tag.String()})
		}
		c.tags = append(c.tags, tag)
		c.templates = append(c.templates, compiled{subject: t.Subject, body: body})
		return nil
	}

	// the matcher treats the first tag as the default
	if err := add(fallback, templates[fallback]); err != nil {
		return nil, err
	}
	for tag, t := range templates {
		if tag == fallback {
			continue
		}
		if err := add(tag, t); err != nil {
			return nil, err
		}
	}

	c.matcher = language.NewMatcher(c.tags)
	return c, nil
}

// MustCatalog is NewCatalog with DefaultTemplates and English fallback.
func MustCatalog() *Catalog {
	c, err := NewCatalog(language.English, DefaultTemplates())
	if err != nil {
		panic(err)
	}
	return c
}

// Match returns the supported tag closest to lang. lang may be a single
// tag or an Accept-Language value.
func (c *Catalog) Match(lang string) language.Tag {
	_, idx := c.match(lang)
	return c.tags[idx]
}

func (c *Catalog) match(lang string) (language.Tag, int) {
	if lang == "" {
		return c.tags[0], 0
	}
	desired, _, err := language.ParseAcceptLanguage(lang)
	if err != nil || len(desired) == 0 {
		return c.tags[0], 0
	}
	tag, idx, _ := c.matcher.Match(desired...)
	return tag, idx
}

// VerificationMessage implements accounts.VerificationComposer.
func (c *Catalog) VerificationMessage(lang string, user *accounts.User, link string) accounts.Message {
	_, idx := c.match(lang)
	tmpl := c.templates[idx]

	var body bytes.Buffer
	data := struct {
		Username string
		Link     string
	}{user.Username, link}

	if err := tmpl.body.Execute(&body, data); err != nil {
		// templates are validated on load; only fall back on data errors
		body.Reset()
		body.WriteString(link)
	}

	return accounts.Message{
		To:       user.Email,
		Subject:  tmpl.subject,
		Body:     body.String(),
		HTML:     true,
		Language: c.tags[idx].String(),
	}
}
