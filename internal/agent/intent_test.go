package agent

import "testing"

func TestKeywordPolicyClassify(t *testing.T) {
	p := KeywordPolicy{}
	tests := []struct {
		msg          string
		wantMutation bool
		wantPlan     bool
	}{
		{"- buy milk #errands", true, false},
		{"add a note about the standup", true, false},
		{"delete everything tagged old", true, false},
		{"what notes do I have about travel?", false, false},
		{"show me my pages", false, false},
		{"create a page called Project with sections Backlog and Done", true, true},
		{"make a shopping page and then add three sections", true, true},
		{"- item one\n- item two\n- item three", true, true},
		{"set up a weekly review page", true, true},
	}
	for _, tt := range tests {
		got := p.Classify(tt.msg)
		if got.ExpectsMutation != tt.wantMutation {
			t.Errorf("Classify(%q).ExpectsMutation = %v, want %v", tt.msg, got.ExpectsMutation, tt.wantMutation)
		}
		if got.PlanRequired != tt.wantPlan {
			t.Errorf("Classify(%q).PlanRequired = %v, want %v", tt.msg, got.PlanRequired, tt.wantPlan)
		}
	}
}
