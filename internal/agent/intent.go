package agent

import (
	"regexp"
	"strings"
)

// Intent is the result of classifying a plain user message.
type Intent struct {
	ExpectsMutation bool // the message should produce at least one mutation
	PlanRequired    bool // the message describes a multi-step batch
}

// MutationPolicy classifies messages. It is pluggable so the rules can be
// unit-tested and swapped without touching the conversation loop.
type MutationPolicy interface {
	Classify(message string) Intent
}

// KeywordPolicy is the default keyword/regex classifier. Both the loop and
// the plan proposer consult this single rule table so the two callers can
// never drift apart.
type KeywordPolicy struct{}

var (
	captureRe = regexp.MustCompile(`^\s*[-*+]\s+\S`)
	listRe    = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+[.)])\s+\S`)

	mutationVerbs = []string{
		"add", "create", "make", "new", "remember", "note", "save",
		"delete", "remove", "trash", "restore", "rename", "move",
		"complete", "finish", "tag", "untag", "update", "mark",
	}

	planMarkers = []string{
		"with sections", "with the sections", "and then", "after that",
		"set up", "each with", "for each", "steps:",
	}
)

// Classify applies the keyword rules. A leading list marker is treated as
// quick capture and always expects a mutation.
func (KeywordPolicy) Classify(message string) Intent {
	var in Intent
	trimmed := strings.TrimSpace(message)
	lower := strings.ToLower(trimmed)

	if captureRe.MatchString(trimmed) {
		in.ExpectsMutation = true
	}
	for _, v := range mutationVerbs {
		if strings.HasPrefix(lower, v+" ") || strings.Contains(lower, " "+v+" ") {
			in.ExpectsMutation = true
			break
		}
	}

	for _, m := range planMarkers {
		if strings.Contains(lower, m) {
			in.PlanRequired = true
			break
		}
	}
	// Multiple list items in one message imply a batch.
	if len(listRe.FindAllString(trimmed, -1)) >= 2 {
		in.PlanRequired = true
	}
	if in.PlanRequired {
		in.ExpectsMutation = true
	}
	return in
}
