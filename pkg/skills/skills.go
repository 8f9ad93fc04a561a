// Package skills discovers user-invocable skills from SKILL.md files and
// resolves their placeholder substitutions before submission.
//
// Sources, in precedence order (earlier wins on a name collision): project
// skills, personal skills, installed plugin skills, then legacy flat command
// files.
package skills

import (
	"encoding/json"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source tags where a skill was discovered.
const (
	SourceProject        = "project"
	SourcePersonal       = "personal"
	SourcePlugin         = "plugin"
	SourceLegacyProject  = "legacy_project"
	SourceLegacyPersonal = "legacy_personal"
)

// Metadata describes one discovered skill.
type Metadata struct {
	Name          string // optionally namespaced "plugin:name"
	Description   string
	ArgumentHint  string
	UserInvocable bool
	AllowedTools  []string
	Source        string
	Path          string
}

// Resolver discovers skills across the configured roots.
type Resolver struct {
	skillsRoot   string // personal skills
	commandsRoot string // legacy personal commands
	registryPath string // installed plugins JSON
	settingsPath string // shared settings carrying enabledPlugins
	log          *slog.Logger
}

// NewResolver creates a resolver over the given personal and plugin roots.
func NewResolver(skillsRoot, commandsRoot, registryPath, settingsPath string) *Resolver {
	return &Resolver{
		skillsRoot:   skillsRoot,
		commandsRoot: commandsRoot,
		registryPath: registryPath,
		settingsPath: settingsPath,
		log:          slog.With("component", "skills"),
	}
}

// Discover returns all user-invocable skills visible from projectDir,
// applying source precedence on name collisions.
func (r *Resolver) Discover(projectDir string) []Metadata {
	var out []Metadata
	seen := map[string]bool{}

	add := func(skills []Metadata) {
		for _, s := range skills {
			if seen[s.Name] || !s.UserInvocable {
				continue
			}
			seen[s.Name] = true
			out = append(out, s)
		}
	}

	add(r.projectSkills(projectDir))
	add(r.personalSkills())
	add(r.pluginSkills())
	add(r.legacyCommands(filepath.Join(projectDir, ".claude", "commands"), SourceLegacyProject))
	add(r.legacyCommands(r.commandsRoot, SourceLegacyPersonal))
	return out
}

// Find returns the named skill, honoring precedence.
func (r *Resolver) Find(projectDir, name string) (Metadata, bool) {
	for _, s := range r.Discover(projectDir) {
		if s.Name == name {
			return s, true
		}
	}
	return Metadata{}, false
}

// projectSkills scans <project>/.claude/skills recursively for SKILL.md.
func (r *Resolver) projectSkills(projectDir string) []Metadata {
	root := filepath.Join(projectDir, ".claude", "skills")
	var out []Metadata
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && d.Name() == "SKILL.md" {
			if meta, ok := r.parseSkillFile(path, SourceProject, ""); ok {
				out = append(out, meta)
			}
		}
		return nil
	})
	return out
}

// personalSkills scans direct children of the personal skills root only.
func (r *Resolver) personalSkills() []Metadata {
	return r.scanSkillDirs(r.skillsRoot, SourcePersonal, "")
}

// pluginSkills reads the installed-plugins registry, skips disabled plugins,
// and scans each installation's skills directory. Skill names are namespaced
// "<plugin-name>:<raw-name>".
func (r *Resolver) pluginSkills() []Metadata {
	registry := r.readPluginRegistry()
	if len(registry) == 0 {
		return nil
	}
	enabled := r.readEnabledPlugins()

	var out []Metadata
	for key, installs := range registry {
		if on, ok := enabled[key]; ok && !on {
			continue
		}
		pluginName := key
		if idx := strings.Index(key, "@"); idx >= 0 {
			pluginName = key[:idx]
		}
		for _, inst := range installs {
			out = append(out, r.scanSkillDirs(
				filepath.Join(inst.InstallPath, "skills"), SourcePlugin, pluginName+":")...)
		}
	}
	return out
}

type pluginInstall struct {
	InstallPath string `json:"installPath"`
	Version     string `json:"version"`
}

func (r *Resolver) readPluginRegistry() map[string][]pluginInstall {
	data, err := os.ReadFile(r.registryPath)
	if err != nil {
		return nil
	}
	var reg struct {
		Plugins map[string][]pluginInstall `json:"plugins"`
	}
	if err := json.Unmarshal(data, &reg); err != nil {
		r.log.Warn("Failed to parse plugin registry", "error", err)
		return nil
	}
	return reg.Plugins
}

func (r *Resolver) readEnabledPlugins() map[string]bool {
	data, err := os.ReadFile(r.settingsPath)
	if err != nil {
		return nil
	}
	var settings struct {
		EnabledPlugins map[string]bool `json:"enabledPlugins"`
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil
	}
	return settings.EnabledPlugins
}

// scanSkillDirs reads <root>/<child>/SKILL.md for each direct child.
func (r *Resolver) scanSkillDirs(root, source, namePrefix string) []Metadata {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var out []Metadata
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(root, entry.Name(), "SKILL.md")
		if meta, ok := r.parseSkillFile(path, source, namePrefix); ok {
			out = append(out, meta)
		}
	}
	return out
}

// legacyCommands reads flat .md files with no frontmatter; the filename is
// the skill name.
func (r *Resolver) legacyCommands(root, source string) []Metadata {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var out []Metadata
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		out = append(out, Metadata{
			Name:          strings.TrimSuffix(entry.Name(), ".md"),
			UserInvocable: true,
			Source:        source,
			Path:          filepath.Join(root, entry.Name()),
		})
	}
	return out
}

// frontmatter is the YAML header of a SKILL.md file.
type frontmatter struct {
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	ArgumentHint  string   `yaml:"argument-hint"`
	UserInvocable *bool    `yaml:"user-invocable"`
	AllowedTools  []string `yaml:"allowed-tools"`
}

// parseSkillFile reads metadata from one SKILL.md. Missing files and
// malformed frontmatter skip the skill.
func (r *Resolver) parseSkillFile(path, source, namePrefix string) (Metadata, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, false
	}

	fmRaw, _ := splitFrontmatter(string(data))
	var fm frontmatter
	if fmRaw != "" {
		if err := yaml.Unmarshal([]byte(fmRaw), &fm); err != nil {
			r.log.Warn("Skipping skill with malformed frontmatter", "path", path, "error", err)
			return Metadata{}, false
		}
	}

	name := fm.Name
	if name == "" {
		name = filepath.Base(filepath.Dir(path))
	}
	invocable := fm.UserInvocable == nil || *fm.UserInvocable

	return Metadata{
		Name:          namePrefix + name,
		Description:   fm.Description,
		ArgumentHint:  fm.ArgumentHint,
		UserInvocable: invocable,
		AllowedTools:  fm.AllowedTools,
		Source:        source,
		Path:          path,
	}, true
}

// Body returns a skill's prompt body with the frontmatter stripped.
func (m Metadata) Body() (string, error) {
	data, err := os.ReadFile(m.Path)
	if err != nil {
		return "", err
	}
	_, body := splitFrontmatter(string(data))
	return body, nil
}

// splitFrontmatter separates an optional YAML header delimited by leading
// "---" markers from the body.
func splitFrontmatter(content string) (fm, body string) {
	if !strings.HasPrefix(content, "---\n") && content != "---" {
		return "", content
	}
	rest := strings.TrimPrefix(content, "---\n")
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return "", content
	}
	fm = rest[:end]
	body = rest[end+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")
	return fm, body
}
