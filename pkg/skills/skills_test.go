package skills

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newTestResolver builds a resolver over temp roots plus a project dir.
func newTestResolver(t *testing.T) (*Resolver, string) {
	t.Helper()
	base := t.TempDir()
	r := NewResolver(
		filepath.Join(base, "skills"),
		filepath.Join(base, "commands"),
		filepath.Join(base, "plugins", "installed_plugins.json"),
		filepath.Join(base, "settings.json"),
	)
	project := filepath.Join(base, "project")
	require.NoError(t, os.MkdirAll(project, 0o755))
	return r, project
}

const deploySkill = `---
name: deploy
description: Deploy the service
argument-hint: "<env>"
---
Deploy to $1.
`

func TestDiscover_ProjectSkillsRecursive(t *testing.T) {
	r, project := newTestResolver(t)
	writeFile(t, filepath.Join(project, ".claude", "skills", "ops", "deploy", "SKILL.md"), deploySkill)

	skills := r.Discover(project)
	require.Len(t, skills, 1)
	assert.Equal(t, "deploy", skills[0].Name)
	assert.Equal(t, "Deploy the service", skills[0].Description)
	assert.Equal(t, "<env>", skills[0].ArgumentHint)
	assert.Equal(t, SourceProject, skills[0].Source)
}

func TestDiscover_PersonalSkillsNonRecursive(t *testing.T) {
	r, project := newTestResolver(t)
	writeFile(t, filepath.Join(r.skillsRoot, "review", "SKILL.md"), "---\nname: review\n---\nReview it.\n")
	// Nested personal skills are not picked up.
	writeFile(t, filepath.Join(r.skillsRoot, "nested", "deep", "SKILL.md"), "---\nname: hidden\n---\nBody.\n")

	skills := r.Discover(project)
	require.Len(t, skills, 1)
	assert.Equal(t, "review", skills[0].Name)
	assert.Equal(t, SourcePersonal, skills[0].Source)
}

func TestDiscover_NameDefaultsToDirectory(t *testing.T) {
	r, project := newTestResolver(t)
	writeFile(t, filepath.Join(r.skillsRoot, "triage", "SKILL.md"), "No frontmatter body.\n")

	skills := r.Discover(project)
	require.Len(t, skills, 1)
	assert.Equal(t, "triage", skills[0].Name)
}

func TestDiscover_ProjectWinsCollision(t *testing.T) {
	r, project := newTestResolver(t)
	writeFile(t, filepath.Join(project, ".claude", "skills", "deploy", "SKILL.md"), deploySkill)
	writeFile(t, filepath.Join(r.skillsRoot, "deploy", "SKILL.md"), "---\nname: deploy\n---\npersonal variant\n")

	skills := r.Discover(project)
	require.Len(t, skills, 1)
	assert.Equal(t, SourceProject, skills[0].Source)
}

func TestDiscover_MalformedFrontmatterSkipped(t *testing.T) {
	r, project := newTestResolver(t)
	writeFile(t, filepath.Join(r.skillsRoot, "bad", "SKILL.md"), "---\nname: [unclosed\n---\nBody.\n")

	assert.Empty(t, r.Discover(project))
}

func TestDiscover_NotUserInvocableSkipped(t *testing.T) {
	r, project := newTestResolver(t)
	writeFile(t, filepath.Join(r.skillsRoot, "internal", "SKILL.md"), "---\nuser-invocable: false\n---\nBody.\n")

	assert.Empty(t, r.Discover(project))
}

func TestDiscover_PluginSkills(t *testing.T) {
	r, project := newTestResolver(t)
	install := filepath.Join(filepath.Dir(r.registryPath), "tools@main")
	writeFile(t, filepath.Join(install, "skills", "lint", "SKILL.md"), "---\nname: lint\n---\nLint body.\n")
	writeFile(t, r.registryPath,
		`{"plugins":{"tools@main":[{"installPath":"`+install+`","version":"1.0.0"}]}}`)

	skills := r.Discover(project)
	require.Len(t, skills, 1)
	assert.Equal(t, "tools:lint", skills[0].Name)
	assert.Equal(t, SourcePlugin, skills[0].Source)
}

func TestDiscover_DisabledPluginSkipped(t *testing.T) {
	r, project := newTestResolver(t)
	install := filepath.Join(filepath.Dir(r.registryPath), "tools@main")
	writeFile(t, filepath.Join(install, "skills", "lint", "SKILL.md"), "---\nname: lint\n---\nBody.\n")
	writeFile(t, r.registryPath,
		`{"plugins":{"tools@main":[{"installPath":"`+install+`","version":"1.0.0"}]}}`)
	writeFile(t, r.settingsPath, `{"enabledPlugins":{"tools@main":false}}`)

	assert.Empty(t, r.Discover(project))
}

func TestDiscover_LegacyCommands(t *testing.T) {
	r, project := newTestResolver(t)
	writeFile(t, filepath.Join(project, ".claude", "commands", "ship.md"), "Ship $ARGUMENTS\n")
	writeFile(t, filepath.Join(r.commandsRoot, "note.md"), "Note body\n")

	skills := r.Discover(project)
	require.Len(t, skills, 2)
	assert.Equal(t, "ship", skills[0].Name)
	assert.Equal(t, SourceLegacyProject, skills[0].Source)
	assert.Equal(t, "note", skills[1].Name)
	assert.Equal(t, SourceLegacyPersonal, skills[1].Source)
}

func TestFindAndBody(t *testing.T) {
	r, project := newTestResolver(t)
	writeFile(t, filepath.Join(project, ".claude", "skills", "deploy", "SKILL.md"), deploySkill)

	meta, ok := r.Find(project, "deploy")
	require.True(t, ok)

	body, err := meta.Body()
	require.NoError(t, err)
	assert.Equal(t, "Deploy to $1.\n", body)

	_, ok = r.Find(project, "missing")
	assert.False(t, ok)
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		body string
		args string
		sid  string
		want string
	}{
		{
			name: "indexed arguments are zero based",
			body: "first=$ARGUMENTS[0] second=$ARGUMENTS[1]",
			args: "alpha beta",
			want: "first=alpha second=beta",
		},
		{
			name: "positional arguments are zero based",
			body: "env=$0 region=$1",
			args: "prod us-east",
			want: "env=prod region=us-east",
		},
		{
			name: "positional matches indexed form",
			body: "a=$1 b=$ARGUMENTS[1]",
			args: "x y",
			want: "a=y b=y",
		},
		{
			name: "out of range substitutes empty",
			body: "x=$ARGUMENTS[2] y=$3",
			args: "only",
			want: "x= y=",
		},
		{
			name: "full argument string",
			body: "run with: $ARGUMENTS",
			args: "a b c",
			want: "run with: a b c",
		},
		{
			name: "session id",
			body: "resume ${CLAUDE_SESSION_ID}",
			sid:  "S1",
			want: "resume S1",
		},
		{
			name: "no placeholders is identity",
			body: "plain body",
			args: "unused",
			want: "plain body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.body, tt.args, tt.sid))
		})
	}
}
