package template

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		template string
		vars     Variables
		want     string
	}{
		{
			name:     "simple substitution",
			template: "Topic: {{topic}}, Round: {{round}}/{{max_rounds}}",
			vars: Variables{
				Topic:     "pricing page",
				Round:     2,
				MaxRounds: 3,
			},
			want: "Topic: pricing page, Round: 2/3",
		},
		{
			name:     "participant variables",
			template: "{{name}}|{{specialty}}|{{role}}|{{backstory}}",
			vars: Variables{
				Name:      "Ada",
				Specialty: "Backend engineer",
				Role:      "tech",
				Backstory: "Ten years of payments",
			},
			want: "Ada|Backend engineer|tech|Ten years of payments",
		},
		{
			name:     "empty values",
			template: "Topic: {{topic}}{{hooks}}{{extra}}",
			vars:     Variables{Topic: "test"},
			want:     "Topic: test",
		},
		{
			name:     "placeholder not replaced if variable unknown",
			template: "{{topic}} {{unknown}}",
			vars:     Variables{Topic: "test"},
			want:     "test {{unknown}}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Render(tt.template, tt.vars)
			if got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderDefaultSet(t *testing.T) {
	vars := Variables{
		Topic:        "offline mode",
		Name:         "Ada",
		Specialty:    "Backend engineer",
		Backstory:    "Ten years of payments",
		Round:        1,
		MaxRounds:    3,
		Participants: "- Ada (Backend engineer)\n- Lin (Designer)",
		Transcript:   Section("Discussion so far", "Lin (Designer) [idea]: what if we cache drafts"),
	}

	for _, mode := range []string{"chat", "hybrid"} {
		t.Run(mode, func(t *testing.T) {
			set := DefaultSet(mode)
			for _, tmpl := range []string{set.System, set.Turn, set.Synthesis} {
				out := Render(tmpl, vars)
				if strings.Contains(out, "{{") {
					t.Errorf("unreplaced placeholder in %q", out)
				}
			}

			turn := Render(set.Turn, vars)
			if !strings.Contains(turn, "# Roundtable: offline mode") {
				t.Error("topic heading missing")
			}
			if !strings.Contains(turn, "## Discussion so far") {
				t.Error("transcript section missing")
			}
			if mode == "hybrid" && !strings.Contains(turn, `"stance"`) {
				t.Error("hybrid turn must request a stance field")
			}
		})
	}

	synth := Render(SynthesisTemplate, vars)
	for _, field := range []string{"consensus", "tensions", "non_negotiables", "decision_options"} {
		if !strings.Contains(synth, `"`+field+`"`) {
			t.Errorf("synthesis template should document %q", field)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Run("load existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "turn.md")
		if err := os.WriteFile(path, []byte("custom {{topic}}"), 0644); err != nil {
			t.Fatal(err)
		}
		got, err := LoadFromFile(path)
		if err != nil {
			t.Fatalf("LoadFromFile() error = %v", err)
		}
		if got != "custom {{topic}}" {
			t.Errorf("LoadFromFile() = %q", got)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.md")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestGetTemplate(t *testing.T) {
	got, err := GetTemplate("", "fallback")
	if err != nil || got != "fallback" {
		t.Errorf("GetTemplate(\"\") = %q, %v", got, err)
	}
}

func TestLoadSet(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "turn.md"), []byte("my turn {{name}}"), 0644); err != nil {
		t.Fatal(err)
	}

	set, err := LoadSet(dir, "chat")
	if err != nil {
		t.Fatalf("LoadSet() error = %v", err)
	}
	if set.Turn != "my turn {{name}}" {
		t.Errorf("custom turn template not loaded: %q", set.Turn)
	}
	if set.System != SystemTemplate || set.Synthesis != SynthesisTemplate {
		t.Error("missing files should keep defaults")
	}

	set, err = LoadSet("", "hybrid")
	if err != nil {
		t.Fatal(err)
	}
	if set.Turn != HybridTurnTemplate {
		t.Error("hybrid mode should use the hybrid turn template")
	}
}

func TestSection(t *testing.T) {
	if got := Section("Hooks", "  \n"); got != "" {
		t.Errorf("Section with blank content = %q, want empty", got)
	}
	if got := Section("Hooks", "build is green\n"); got != "## Hooks\nbuild is green\n" {
		t.Errorf("Section() = %q", got)
	}
}

func TestRealityCheckMessage(t *testing.T) {
	msg := RealityCheckMessage()
	if !strings.HasPrefix(msg, "Reality check.") {
		t.Errorf("unexpected header: %q", msg)
	}
	for _, p := range RealityCheckPrompts {
		if !strings.Contains(msg, "- "+p) {
			t.Errorf("prompt %q missing", p)
		}
	}
	if strings.HasSuffix(msg, "\n") {
		t.Error("message should not end with a newline")
	}
}
