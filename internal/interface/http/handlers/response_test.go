package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/titinauta/journey-engine/internal/domain/shared"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", shared.Validation("answer", "Save", "bad option"), http.StatusBadRequest, "validation_error"},
		{"forbidden", shared.ErrAccessDenied, http.StatusForbidden, "forbidden"},
		{"not found", shared.ErrChildNotFound, http.StatusNotFound, "not_found"},
		{"external", shared.External("profile", "GetChild", errors.New("dial tcp: refused")), http.StatusServiceUnavailable, "service_unavailable"},
		{"wrapped external", fmt.Errorf("load: %w", shared.External("answer", "History", errors.New("timeout"))), http.StatusServiceUnavailable, "service_unavailable"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "internal_server_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := StatusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestPublicMessage_HidesExternalDetails(t *testing.T) {
	msg := shared.PublicMessage(shared.External("profile", "GetChild", errors.New("dial tcp 10.0.0.7:443: refused")))
	assert.NotContains(t, msg, "10.0.0.7")
	assert.Contains(t, msg, "try again")
}
