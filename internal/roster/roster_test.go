package roster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	r := Default()
	require.Len(t, r.Participants, 4)

	roles := map[string]bool{}
	ids := map[string]bool{}
	for _, p := range r.Participants {
		roles[p.Role()] = true
		ids[p.ID] = true
		assert.NotEmpty(t, p.Backstory)
	}
	assert.Len(t, ids, 4)
	for _, role := range []string{"product", "tech", "design", "risk"} {
		assert.True(t, roles[role], "missing %s role", role)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantIDs []string
		wantErr string
	}{
		{
			name: "explicit ids",
			yaml: `
participants:
  - id: ada
    name: Ada
    specialty: Risk analyst
`,
			wantIDs: []string{"ada"},
		},
		{
			name: "ids derived from names",
			yaml: `
participants:
  - name: "  Zoë Martin "
    specialty: UX designer
  - name: Zoë Martin
    specialty: Tech lead
`,
			wantIDs: []string{"zoe-martin", "zoe-martin-2"},
		},
		{
			name:    "empty roster",
			yaml:    "name: nobody\n",
			wantErr: "at least one participant",
		},
		{
			name: "missing name",
			yaml: `
participants:
  - specialty: Tech lead
`,
			wantErr: "participants[0].name is required",
		},
		{
			name: "missing specialty",
			yaml: `
participants:
  - name: Ada
`,
			wantErr: "participants[0].specialty is required",
		},
		{
			name:    "invalid yaml",
			yaml:    "participants: [",
			wantErr: "roster: parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Parse([]byte(tt.yaml), "test.yml")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			var ids []string
			for _, p := range r.Participants {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestParse_TrimsFields(t *testing.T) {
	r, err := Parse([]byte(`
participants:
  - name: " Ada "
    specialty: " Risk analyst "
    backstory: |
      Former auditor.
`), "test.yml")
	require.NoError(t, err)
	p := r.Participants[0]
	assert.Equal(t, "Ada", p.Name)
	assert.Equal(t, "Risk analyst", p.Specialty)
	assert.Equal(t, "Former auditor.", p.Backstory)
}

func TestWriteAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", DefaultFilename)
	require.NoError(t, Default().Write(path))

	r, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), r)
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()

	r, err := LoadOrDefault(filepath.Join(dir, "missing.yml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), r)

	bad := filepath.Join(dir, "bad.yml")
	require.NoError(t, os.WriteFile(bad, []byte("participants: []\n"), 0644))
	_, err = LoadOrDefault(bad)
	assert.Error(t, err, "an invalid roster is not replaced by the default")
}
