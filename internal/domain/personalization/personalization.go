// Package personalization fills template text with per-child tokens.
//
// Tokens are written in braces. Name tokens ({childName}, {motherName} and
// their aliases) take values from the Context; a token with a slash such as
// {ele/ela} is a gendered pair and picks the first form for boys, the second
// for girls, and keeps both ("ele/ela") otherwise. Tokens that cannot be
// resolved are left in the output untouched.
package personalization

import (
	"regexp"
	"strings"
	"time"

	"github.com/titinauta/journey-engine/internal/domain/catalog"
	"github.com/titinauta/journey-engine/internal/domain/child"
	"github.com/titinauta/journey-engine/pkg/timeutil"
)

// DefaultCaregiverLabel is used when the caller does not name the caregiver.
const DefaultCaregiverLabel = "mamãe"

// Context is built per request and never persisted.
type Context struct {
	ChildName     string
	CaregiverName string
	Gender        child.Gender
	// Extra holds additional named values, e.g. "greeting".
	Extra map[string]string
}

// NewContext builds a Context from a child profile and a caregiver label.
func NewContext(c child.Child, caregiver string) Context {
	if strings.TrimSpace(caregiver) == "" {
		caregiver = DefaultCaregiverLabel
	}
	return Context{
		ChildName:     c.DisplayName,
		CaregiverName: caregiver,
		Gender:        c.Gender,
	}
}

// With returns a copy of ctx with an extra value set.
func (ctx Context) With(key, value string) Context {
	extra := make(map[string]string, len(ctx.Extra)+1)
	for k, v := range ctx.Extra {
		extra[k] = v
	}
	extra[key] = value
	ctx.Extra = extra
	return ctx
}

var tokenPattern = regexp.MustCompile(`\{([^{}\s][^{}]*)\}`)

// Default aliases. Keys are matched case-insensitively.
var (
	childNameTokens = []string{"childName", "nome", "nomeBebe", "bebe", "criança", "crianca"}
	caregiverTokens = []string{"motherName", "caregiverName", "mae", "mãe", "nomeMae"}
)

// Engine resolves tokens. The zero value is not usable; use NewEngine.
type Engine struct {
	childAliases     map[string]struct{}
	caregiverAliases map[string]struct{}
}

// NewEngine returns an engine with the default token aliases.
func NewEngine() *Engine {
	e := &Engine{
		childAliases:     make(map[string]struct{}),
		caregiverAliases: make(map[string]struct{}),
	}
	for _, t := range childNameTokens {
		e.childAliases[strings.ToLower(t)] = struct{}{}
	}
	for _, t := range caregiverTokens {
		e.caregiverAliases[strings.ToLower(t)] = struct{}{}
	}
	return e
}

var defaultEngine = NewEngine()

// Personalize applies the default engine.
func Personalize(template string, ctx Context) string {
	return defaultEngine.Personalize(template, ctx)
}

// Personalize replaces every resolvable token in template. It never fails.
func (e *Engine) Personalize(template string, ctx Context) string {
	if !strings.Contains(template, "{") {
		return template
	}
	return tokenPattern.ReplaceAllStringFunc(template, func(token string) string {
		if v, ok := e.resolve(token[1:len(token)-1], ctx); ok {
			return v
		}
		return token
	})
}

func (e *Engine) resolve(name string, ctx Context) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))

	if _, ok := e.childAliases[key]; ok {
		return ctx.ChildName, ctx.ChildName != ""
	}
	if _, ok := e.caregiverAliases[key]; ok {
		return ctx.CaregiverName, ctx.CaregiverName != ""
	}
	if v, ok := ctx.Extra[name]; ok {
		return v, true
	}

	if first, second, ok := strings.Cut(name, "/"); ok && !strings.Contains(second, "/") {
		switch ctx.Gender {
		case child.GenderMale:
			return first, true
		case child.GenderFemale:
			return second, true
		default:
			return first + "/" + second, true
		}
	}
	return "", false
}

// PersonalizeOptions maps Personalize over option texts, keeping ids and order.
func (e *Engine) PersonalizeOptions(options []catalog.Option, ctx Context) []catalog.Option {
	out := make([]catalog.Option, len(options))
	for i, o := range options {
		out[i] = catalog.Option{ID: o.ID, Text: e.Personalize(o.Text, ctx)}
	}
	return out
}

// PersonalizeFeedback maps Personalize over feedback values, keeping keys.
func (e *Engine) PersonalizeFeedback(feedback map[string]string, ctx Context) map[string]string {
	if feedback == nil {
		return nil
	}
	out := make(map[string]string, len(feedback))
	for k, v := range feedback {
		out[k] = e.Personalize(v, ctx)
	}
	return out
}

// PersonalizeQuestion renders a question's prompt, options and feedback.
func (e *Engine) PersonalizeQuestion(q catalog.Question, ctx Context) catalog.Question {
	q.Prompt = e.Personalize(q.Prompt, ctx)
	q.Options = e.PersonalizeOptions(q.Options, ctx)
	q.FeedbackByOptionID = e.PersonalizeFeedback(q.FeedbackByOptionID, ctx)
	return q
}

// TimeBasedGreeting returns "Bom dia", "Boa tarde" or "Boa noite" for the
// Brasília wall-clock hour of now.
func TimeBasedGreeting(now time.Time) string {
	switch timeutil.PeriodOf(timeutil.ToBrasilia(now).Hour()) {
	case timeutil.Morning:
		return "Bom dia"
	case timeutil.Afternoon:
		return "Boa tarde"
	default:
		return "Boa noite"
	}
}
