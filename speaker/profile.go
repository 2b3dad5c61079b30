package speaker

import (
	"errors"
	"fmt"
	"strings"
)

// RoleID tags one conversational party. The two shipping roles are
// dispatcher and driver, but any non-empty tag is accepted so
// conversations can grow past two parties.
type RoleID string

const (
	RoleDispatcher RoleID = "dispatcher"
	RoleDriver     RoleID = "driver"
)

var (
	// ErrMissingRoleID is returned by Validate for an empty role tag.
	ErrMissingRoleID = errors.New("role id is required")

	// ErrMissingInstructions is returned by Validate when a profile has
	// no base instructions.
	ErrMissingInstructions = errors.New("base instructions are required")
)

// Fact is one labeled scenario line, e.g. {"Load ID", "HDX-2478"}.
// Facts are ordered; rendering preserves the configured order so every
// role sees the identical scenario block.
type Fact struct {
	Label string `json:"label" yaml:"label"`
	Value string `json:"value" yaml:"value"`
}

// Profile is the static, externally supplied configuration for one
// conversational party. It is read-only for the conversation's
// duration; only the rendered Definition changes between turns.
type Profile struct {
	RoleID           RoleID `json:"role_id" yaml:"role_id"`
	DisplayName      string `json:"display_name" yaml:"display_name"`
	BaseInstructions string `json:"base_instructions" yaml:"base_instructions"`
	Facts            []Fact `json:"facts,omitempty" yaml:"facts,omitempty"`
	Notes            string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Validate checks the fields required before a conversation can start.
func (p Profile) Validate() error {
	if p.RoleID == "" {
		return ErrMissingRoleID
	}
	if strings.TrimSpace(p.BaseInstructions) == "" {
		return fmt.Errorf("role %s: %w", p.RoleID, ErrMissingInstructions)
	}
	return nil
}

// SpeakerLabel is the display identity logged to the ledger, e.g.
// "Dispatcher (Tim)". Without a display name the capitalized role tag
// stands alone.
func (p Profile) SpeakerLabel() string {
	role := capitalize(string(p.RoleID))
	if p.DisplayName == "" {
		return role
	}
	return fmt.Sprintf("%s (%s)", role, p.DisplayName)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-'a'+'A') + s[1:]
	}
	return s
}
