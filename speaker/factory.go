package speaker

import "strings"

// Section headings and closing directives. These are fixed strings so
// that Build output stays byte-stable across releases; the digest
// section is always present, even for an empty conversation, so every
// speaker is explicitly told there is nothing yet.
const (
	factsHeading  = "Scenario:"
	notesHeading  = "Additional notes:"
	digestHeading = "Conversation so far:"

	openerDirective = "You are opening this call. Greet the other party warmly, " +
		"introduce yourself, and present the load details clearly before asking " +
		"anything of them. Keep responses natural, brief, and conversational."

	responderDirective = "Address the other party's most recent question or " +
		"concern before advancing your own agenda, and explicitly acknowledge " +
		"any information you were just given. Keep responses natural, brief, " +
		"and conversational."

	concludeDirective = "When the call reaches a terminal outcome, whether an " +
		"agreement, a firm rejection, or a stalemate, you must invoke the " +
		"conclude-conversation action. Do not keep the conversation going " +
		"indefinitely."
)

// Definition is the immutable, ready-to-use speaker configuration for
// one turn. It is rebuilt from scratch every turn; stale definitions
// must never be reused.
type Definition struct {
	RoleID       RoleID
	SpeakerLabel string
	Instructions string
}

// BuildInput carries everything Build needs. Digest is the ledger's
// rendered digest for this turn (the empty-ledger sentinel counts as a
// digest, not as absence). CustomPrompt, when set by the operator,
// replaces the profile's base instructions. OperatorNotes join the
// profile's own notes under the additional-notes heading.
type BuildInput struct {
	Profile       Profile
	Digest        string
	CustomPrompt  string
	OperatorNotes string
	Opening       bool
}

// Build assembles the complete instruction text for one turn. It is a
// pure function of its input: no hidden state, no memoization, and
// byte-identical output for identical input.
func Build(in BuildInput) Definition {
	sections := make([]string, 0, 6)

	base := in.Profile.BaseInstructions
	if in.CustomPrompt != "" {
		base = in.CustomPrompt
	}
	sections = append(sections, strings.TrimSpace(base))

	if block := renderFacts(in.Profile.Facts); block != "" {
		sections = append(sections, block)
	}

	if block := renderNotes(in.Profile.Notes, in.OperatorNotes); block != "" {
		sections = append(sections, block)
	}

	sections = append(sections, digestHeading+"\n"+in.Digest)

	if in.Opening {
		sections = append(sections, openerDirective)
	} else {
		sections = append(sections, responderDirective)
	}

	sections = append(sections, concludeDirective)

	return Definition{
		RoleID:       in.Profile.RoleID,
		SpeakerLabel: in.Profile.SpeakerLabel(),
		Instructions: strings.Join(sections, "\n\n"),
	}
}

func renderFacts(facts []Fact) string {
	if len(facts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(factsHeading)
	for _, f := range facts {
		b.WriteByte('\n')
		b.WriteString(f.Label)
		b.WriteString(": ")
		b.WriteString(f.Value)
	}
	return b.String()
}

func renderNotes(profileNotes, operatorNotes string) string {
	lines := make([]string, 0, 2)
	if profileNotes != "" {
		lines = append(lines, profileNotes)
	}
	if operatorNotes != "" {
		lines = append(lines, operatorNotes)
	}
	if len(lines) == 0 {
		return ""
	}
	return notesHeading + "\n" + strings.Join(lines, "\n")
}
