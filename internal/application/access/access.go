// Package access resolves "who is asking about which child" for every command
// and query: it authorizes the caller, fetches the child profile and derives the
// child's age and content window.
package access

import (
	"context"
	"time"

	"github.com/titinauta/journey-engine/internal/domain/catalog"
	"github.com/titinauta/journey-engine/internal/domain/child"
	"github.com/titinauta/journey-engine/internal/domain/journey"
	"github.com/titinauta/journey-engine/internal/domain/shared"
	"github.com/titinauta/journey-engine/pkg/logger"
	"github.com/titinauta/journey-engine/pkg/retry"
	"github.com/titinauta/journey-engine/pkg/timeutil"
)

// ChildView is a child profile together with values derived for asOf.
type ChildView struct {
	Child     child.Child
	AgeMonths int
	Window    catalog.AgeWindow
	AsOf      time.Time
}

// Loader authorizes callers and loads child profiles.
type Loader struct {
	profiles   child.ProfileProvider
	authorizer child.Authorizer
	resolver   child.WindowResolver
	clock      timeutil.Clock
	log        *logger.Logger
}

// NewLoader creates a Loader. A nil authorizer allows every caller.
func NewLoader(
	profiles child.ProfileProvider,
	authorizer child.Authorizer,
	resolver child.WindowResolver,
	clock timeutil.Clock,
	log *logger.Logger,
) *Loader {
	if authorizer == nil {
		authorizer = child.AllowAll{}
	}
	if clock == nil {
		clock = timeutil.SystemClock
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{
		profiles:   profiles,
		authorizer: authorizer,
		resolver:   resolver,
		clock:      clock,
		log:        log.With(logger.Component("access")),
	}
}

// Now returns the loader clock's time in Brasília.
func (l *Loader) Now() time.Time {
	return timeutil.ToBrasilia(l.clock())
}

// Authorize checks that userID may access childID.
func (l *Loader) Authorize(ctx context.Context, userID, childID string) error {
	if childID == "" {
		return shared.Validation("access", "Authorize", "child id is required")
	}
	if err := child.Authorize(ctx, l.authorizer, userID, childID); err != nil {
		if shared.IsForbidden(err) {
			l.log.Warn("access denied", logger.UserID(userID), logger.ChildID(childID))
		}
		return err
	}
	return nil
}

// Profile fetches the child without authorization or age checks. r may be nil
// for a single attempt.
func (l *Loader) Profile(ctx context.Context, r *retry.Retrier, childID string) (*child.Child, error) {
	get := func(ctx context.Context) (*child.Child, error) {
		return l.profiles.GetChild(ctx, childID)
	}
	if r == nil {
		return get(ctx)
	}
	return retry.DoWithData(ctx, r, get)
}

// View derives age and window for c as of now.
func (l *Loader) View(c child.Child) (*ChildView, error) {
	now := l.Now()
	age, window, err := l.resolver.ForChild(c, now)
	if err != nil {
		return nil, err
	}
	return &ChildView{Child: c, AgeMonths: age, Window: window, AsOf: now}, nil
}

// Load authorizes, fetches and derives in one call.
func (l *Loader) Load(ctx context.Context, r *retry.Retrier, userID, childID string) (*ChildView, error) {
	c, err := l.authorizedProfile(ctx, r, userID, childID)
	if err != nil {
		return nil, err
	}
	return l.View(*c)
}

// LoadAgeOptional is Load for paths that work without an age. A child with no
// birthdate yields AgeMonths = journey.AgeUnknown and an empty window; a
// birthdate in the future is still rejected.
func (l *Loader) LoadAgeOptional(ctx context.Context, r *retry.Retrier, userID, childID string) (*ChildView, error) {
	c, err := l.authorizedProfile(ctx, r, userID, childID)
	if err != nil {
		return nil, err
	}
	if !c.HasBirthdate() {
		return &ChildView{Child: *c, AgeMonths: journey.AgeUnknown, AsOf: l.Now()}, nil
	}
	return l.View(*c)
}

func (l *Loader) authorizedProfile(ctx context.Context, r *retry.Retrier, userID, childID string) (*child.Child, error) {
	if err := l.Authorize(ctx, userID, childID); err != nil {
		return nil, err
	}
	return l.Profile(ctx, r, childID)
}
