package agent

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPersonaSelect_Fallback(t *testing.T) {
	table, err := NewPersonaTable("")
	if err != nil {
		t.Fatal(err)
	}

	if p := table.Select(""); p.Name != DefaultPersonaName {
		t.Errorf("empty source selected %q", p.Name)
	}
	if p := table.Select("widget"); p.Name != DefaultPersonaName {
		t.Errorf("unknown source selected %q", p.Name)
	}
	if p := table.Select("capture"); p.Name != "capture" {
		t.Errorf("capture source selected %q", p.Name)
	}
}

func TestPersonaAllowedSet(t *testing.T) {
	table, err := NewPersonaTable("")
	if err != nil {
		t.Fatal(err)
	}

	if set := table.Select("").AllowedSet(); set != nil {
		t.Errorf("default persona allow-set = %v, want nil (full catalog)", set)
	}

	set := table.Select("capture").AllowedSet()
	if len(set) != 7 {
		t.Fatalf("capture allow-set has %d tools, want 7", len(set))
	}
	for _, name := range []string{"respond", "clarify", "create_note", "query_notes"} {
		if !set[name] {
			t.Errorf("capture allow-set missing %s", name)
		}
	}
	if set["delete_page"] {
		t.Error("capture allow-set must not include delete_page")
	}
}

func TestPersonaTable_OverlayFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	yaml := `personas:
  - name: email
    allowed_tools: [respond, create_note]
    prompt_template: "You process inbound email."
  - name: capture
    allowed_tools: [respond]
    prompt_template: "Overridden capture."
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := NewPersonaTable(path)
	if err != nil {
		t.Fatal(err)
	}

	// New persona from the file.
	email := table.Select("email")
	if email.Name != "email" || len(email.AllowedTools) != 2 {
		t.Errorf("email persona = %+v", email)
	}

	// File entries override builtins of the same name.
	capture := table.Select("capture")
	if capture.PromptTemplate != "Overridden capture." || len(capture.AllowedTools) != 1 {
		t.Errorf("capture persona not overridden: %+v", capture)
	}

	// Builtins without overrides survive.
	if p := table.Select(""); p.Name != DefaultPersonaName || p.PromptTemplate == "" {
		t.Errorf("default persona lost: %+v", p)
	}
}

func TestPersonaTable_MissingFileUsesBuiltins(t *testing.T) {
	table, err := NewPersonaTable(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if p := table.Select("capture"); len(p.AllowedTools) != 7 {
		t.Errorf("builtin capture persona = %+v", p)
	}
}

func TestPersonaTable_MalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	if err := os.WriteFile(path, []byte("personas: [not: valid: yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewPersonaTable(path); err == nil {
		t.Error("malformed persona file accepted at startup")
	}
}
