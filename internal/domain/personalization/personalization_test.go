package personalization

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/titinauta/journey-engine/internal/domain/catalog"
	"github.com/titinauta/journey-engine/internal/domain/child"
	"github.com/titinauta/journey-engine/pkg/timeutil"
)

func TestPersonalize(t *testing.T) {
	ana := Context{ChildName: "Ana", CaregiverName: "mãe", Gender: child.GenderFemale}
	leo := Context{ChildName: "Léo", CaregiverName: "Carla", Gender: child.GenderMale}
	sam := Context{ChildName: "Sam", CaregiverName: "Rô"}

	tests := []struct {
		name     string
		template string
		ctx      Context
		want     string
	}{
		{"child name", "Olá {childName}!", ana, "Olá Ana!"},
		{"portuguese alias", "{nome} {ele/ela} sorriu", Context{ChildName: "Ana", Gender: child.GenderFemale}, "Ana ela sorriu"},
		{"male form", "{nome} {ele/ela} sorriu", leo, "Léo ele sorriu"},
		{"unset gender keeps both", "{o/a} {childName}", sam, "o/a Sam"},
		{"other gender keeps both", "{dele/dela}", Context{Gender: child.GenderOther}, "dele/dela"},
		{"caregiver aliases", "{motherName}, {caregiverName}, {mae}", leo, "Carla, Carla, Carla"},
		{"unknown token stays", "Oi {apelido}!", ana, "Oi {apelido}!"},
		{"missing value stays", "Oi {childName}", Context{}, "Oi {childName}"},
		{"no tokens", "Sem marcadores", ana, "Sem marcadores"},
		{"empty braces untouched", "{} e { }", ana, "{} e { }"},
		{"three-way slash stays", "{a/b/c}", ana, "{a/b/c}"},
		{"extra value", "{greeting}, {motherName}!", leo.With("greeting", "Bom dia"), "Bom dia, Carla!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Personalize(tt.template, tt.ctx))
		})
	}
}

func TestPersonalize_IsDeterministic(t *testing.T) {
	ctx := Context{ChildName: "Ana", CaregiverName: "Bia", Gender: child.GenderFemale}
	tpl := "{childName} e {motherName}: {ele/ela} cresceu"
	assert.Equal(t, Personalize(tpl, ctx), Personalize(tpl, ctx))
	assert.NotContains(t, Personalize(tpl, ctx), "{")
}

func TestPersonalizeOptionsAndFeedback(t *testing.T) {
	e := NewEngine()
	ctx := Context{ChildName: "Ana", Gender: child.GenderFemale}

	opts := e.PersonalizeOptions([]catalog.Option{{ID: "a", Text: "{childName} sim"}, {ID: "b", Text: "não"}}, ctx)
	assert.Equal(t, []catalog.Option{{ID: "a", Text: "Ana sim"}, {ID: "b", Text: "não"}}, opts)

	fb := e.PersonalizeFeedback(map[string]string{"a": "{ele/ela} gostou"}, ctx)
	assert.Equal(t, map[string]string{"a": "ela gostou"}, fb)
	assert.Nil(t, e.PersonalizeFeedback(nil, ctx))
}

func TestPersonalizeQuestion_DoesNotMutateInput(t *testing.T) {
	q := catalog.Question{
		ID:                 "q1",
		Prompt:             "{childName}?",
		Options:            []catalog.Option{{ID: "a", Text: "{o/a} bebê"}},
		FeedbackByOptionID: map[string]string{"a": "{childName}!"},
	}
	ctx := Context{ChildName: "Leo", Gender: child.GenderMale}

	got := NewEngine().PersonalizeQuestion(q, ctx)
	assert.Equal(t, "Leo?", got.Prompt)
	assert.Equal(t, "o bebê", got.Options[0].Text)
	assert.Equal(t, "Leo!", got.FeedbackByOptionID["a"])
	assert.Equal(t, "{o/a} bebê", q.Options[0].Text)
	assert.Equal(t, "{childName}!", q.FeedbackByOptionID["a"])
}

func TestNewContext_DefaultsCaregiver(t *testing.T) {
	ctx := NewContext(child.Child{DisplayName: "Ana", Gender: child.GenderFemale}, " ")
	assert.Equal(t, DefaultCaregiverLabel, ctx.CaregiverName)
	assert.Equal(t, "Ana", ctx.ChildName)
}

func TestTimeBasedGreeting(t *testing.T) {
	at := func(hour int) time.Time {
		return time.Date(2024, 5, 1, hour, 0, 0, 0, timeutil.BrasiliaTZ)
	}
	assert.Equal(t, "Boa noite", TimeBasedGreeting(at(4)))
	assert.Equal(t, "Bom dia", TimeBasedGreeting(at(5)))
	assert.Equal(t, "Bom dia", TimeBasedGreeting(at(11)))
	assert.Equal(t, "Boa tarde", TimeBasedGreeting(at(12)))
	assert.Equal(t, "Boa noite", TimeBasedGreeting(at(18)))
	// 14:00 UTC is 11:00 in Brasília.
	assert.Equal(t, "Bom dia", TimeBasedGreeting(time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)))
}
