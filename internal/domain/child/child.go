// Package child models the slice of the child profile the journey engine reads,
// and derives age and content windows from it. Profiles are owned by an external
// service; this package only declares the ports used to reach it.
package child

import (
	"context"
	"strings"
	"time"

	"github.com/titinauta/journey-engine/internal/domain/catalog"
	"github.com/titinauta/journey-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Gender drives gendered token resolution. The zero value means unset.
type Gender string

const (
	GenderUnset  Gender = ""
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// ParseGender accepts the English and Portuguese labels used by profile data.
// Anything unrecognized maps to GenderUnset.
func ParseGender(s string) Gender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "m", "masculino", "menino":
		return GenderMale
	case "female", "f", "feminino", "menina":
		return GenderFemale
	case "other", "outro":
		return GenderOther
	default:
		return GenderUnset
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Child is the read-only view of a profile.
type Child struct {
	ID string
	// Birthdate is a calendar date; the zero value means the profile has none.
	Birthdate   time.Time
	Gender      Gender
	DisplayName string
}

// HasBirthdate reports whether the profile carries a birthdate.
func (c Child) HasBirthdate() bool {
	return !c.Birthdate.IsZero()
}

// AgeMonths returns the child's age in whole months on asOf.
func (c Child) AgeMonths(asOf time.Time) (int, error) {
	if !c.HasBirthdate() {
		return 0, shared.ErrBirthdateMissing
	}
	return ComputeAgeMonths(c.Birthdate, asOf)
}

// ══════════════════════════════════════════════════════════════════════════════
// AGE & WINDOW
// ══════════════════════════════════════════════════════════════════════════════

// ComputeAgeMonths returns whole elapsed months between birthdate and asOf.
// Only calendar fields are compared; asOf should already be in the product's zone.
func ComputeAgeMonths(birthdate, asOf time.Time) (int, error) {
	if birthdate.IsZero() {
		return 0, shared.ErrBirthdateMissing
	}

	by, bm, bd := birthdate.Date()
	ay, am, ad := asOf.Date()

	if ay < by || (ay == by && (am < bm || (am == bm && ad < bd))) {
		return 0, shared.ErrBirthdateFuture
	}

	months := (ay-by)*12 + int(am-bm)
	if ad < bd {
		months--
	}
	return max(months, 0), nil
}

// Default buffers around the child's age.
const (
	DefaultBufferBefore = 1
	DefaultBufferAfter  = 2
)

// ResolveWindow returns [max(0, age-before), age+after].
func ResolveWindow(ageMonths, bufferBefore, bufferAfter int) catalog.AgeWindow {
	return catalog.AgeWindow{
		Min: max(0, ageMonths-bufferBefore),
		Max: ageMonths + bufferAfter,
	}
}

// WindowResolver binds configured buffers to ResolveWindow.
type WindowResolver struct {
	BufferBefore int
	BufferAfter  int
}

// NewWindowResolver returns a resolver with the default buffers.
func NewWindowResolver() WindowResolver {
	return WindowResolver{BufferBefore: DefaultBufferBefore, BufferAfter: DefaultBufferAfter}
}

// Resolve returns the content window for ageMonths.
func (r WindowResolver) Resolve(ageMonths int) catalog.AgeWindow {
	return ResolveWindow(ageMonths, r.BufferBefore, r.BufferAfter)
}

// ForChild computes the child's age on asOf and resolves its window.
func (r WindowResolver) ForChild(c Child, asOf time.Time) (int, catalog.AgeWindow, error) {
	age, err := c.AgeMonths(asOf)
	if err != nil {
		return 0, catalog.AgeWindow{}, err
	}
	return age, r.Resolve(age), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// ProfileProvider reads child profiles from the profile service.
type ProfileProvider interface {
	// GetChild returns shared.ErrChildNotFound for unknown ids and an
	// ExternalService error when the service is unreachable.
	GetChild(ctx context.Context, childID string) (*Child, error)
}

// Authorizer decides whether a caller may read or write a child's journey.
type Authorizer interface {
	CanAccess(ctx context.Context, userID, childID string) (bool, error)
}

// AllowAll is an Authorizer for single-tenant deployments and tests.
type AllowAll struct{}

func (AllowAll) CanAccess(context.Context, string, string) (bool, error) { return true, nil }

// Authorize turns a CanAccess decision into shared.ErrAccessDenied.
func Authorize(ctx context.Context, a Authorizer, userID, childID string) error {
	ok, err := a.CanAccess(ctx, userID, childID)
	if err != nil {
		return shared.External("child", "Authorize", err)
	}
	if !ok {
		return shared.ErrAccessDenied
	}
	return nil
}
