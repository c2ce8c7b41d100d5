package profile

import (
	"fmt"
	"strings"

	"github.com/titinauta/journey-engine/internal/domain/child"
	"github.com/titinauta/journey-engine/pkg/timeutil"
)

// ChildDTO is the profile service's child representation.
type ChildDTO struct {
	ID          string `json:"id" yaml:"id"`
	Birthdate   string `json:"birthdate,omitempty" yaml:"birthdate"`
	Gender      string `json:"gender,omitempty" yaml:"gender"`
	DisplayName string `json:"display_name" yaml:"display_name"`
}

// AccessDTO answers an access check.
type AccessDTO struct {
	Allowed bool `json:"allowed"`
}

// APIErrorDTO is the error body returned by the profile service.
type APIErrorDTO struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIErrorDTO) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("profile api error: status %d", e.Status)
	}
	return fmt.Sprintf("profile api error: status %d: %s", e.Status, e.Message)
}

// ToDomain maps the DTO to a child profile. An empty birthdate maps to the
// zero time; a malformed one is an error.
func (d ChildDTO) ToDomain() (*child.Child, error) {
	c := &child.Child{
		ID:          d.ID,
		Gender:      child.ParseGender(d.Gender),
		DisplayName: strings.TrimSpace(d.DisplayName),
	}
	if strings.TrimSpace(d.Birthdate) != "" {
		birth, err := timeutil.ParseDate(strings.TrimSpace(d.Birthdate))
		if err != nil {
			return nil, fmt.Errorf("invalid birthdate %q: %w", d.Birthdate, err)
		}
		c.Birthdate = birth
	}
	return c, nil
}
