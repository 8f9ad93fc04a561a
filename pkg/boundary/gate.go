// Package boundary enforces filesystem boundaries on tool calls before the
// backend executes them.
//
// File tools are checked by their path argument. Bash commands are tokenized
// with POSIX shell splitting, split into subcommands on shell separators, and
// each subcommand's path arguments are validated when the command can modify
// the filesystem. Commands the gate cannot reason about are allowed; the OS
// sandbox downstream remains the backstop.
package boundary

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/shlex"

	"github.com/teleclaude/teleclaude/pkg/claudecode"
)

// fileTools are tools whose input carries a single target path.
var fileTools = map[string]bool{
	"Read":         true,
	"Write":        true,
	"Edit":         true,
	"MultiEdit":    true,
	"NotebookEdit": true,
}

// readOnlyCommands never modify the filesystem; they are allowed regardless
// of their arguments.
var readOnlyCommands = map[string]bool{
	"cat": true, "ls": true, "head": true, "tail": true, "less": true,
	"more": true, "which": true, "whoami": true, "pwd": true, "echo": true,
	"printf": true, "env": true, "printenv": true, "date": true, "wc": true,
	"sort": true, "uniq": true, "diff": true, "file": true, "stat": true,
	"du": true, "df": true, "tree": true, "realpath": true, "dirname": true,
	"basename": true,
}

// fsModifyingCommands create, move, or remove filesystem entries; their path
// arguments must stay inside the approved roots.
var fsModifyingCommands = map[string]bool{
	"mkdir": true, "touch": true, "cp": true, "mv": true, "rm": true,
	"rmdir": true, "ln": true, "install": true, "tee": true, "cd": true,
}

// findMutatingActions turn a find invocation into a write operation.
var findMutatingActions = map[string]bool{
	"-delete": true, "-exec": true, "-execdir": true, "-ok": true, "-okdir": true,
}

// shellSeparators split a command line into independent subcommands.
var shellSeparators = map[string]bool{
	"&&": true, "||": true, ";": true, "|": true, "&": true,
}

// Gate validates tool calls against a set of approved root directories.
type Gate struct {
	roots       []string
	workDir     string
	internalDir string
	log         *slog.Logger
}

// NewGate creates a gate for the given approved roots and working directory.
func NewGate(approvedRoots []string, workDir string) *Gate {
	home, _ := os.UserHomeDir()
	return &Gate{
		roots:       approvedRoots,
		workDir:     workDir,
		internalDir: filepath.Join(home, ".claude"),
		log:         slog.With("component", "boundary"),
	}
}

// CanUseTool implements the backend permission callback.
func (g *Gate) CanUseTool(toolName string, input map[string]any) claudecode.PermissionDecision {
	switch {
	case fileTools[toolName]:
		return g.checkFileTool(toolName, input)
	case toolName == "Bash":
		command, _ := input["command"].(string)
		return g.checkBashCommand(command)
	default:
		return claudecode.Allow()
	}
}

// checkFileTool validates the path argument of Read/Write/Edit-style tools.
func (g *Gate) checkFileTool(toolName string, input map[string]any) claudecode.PermissionDecision {
	path, _ := input["file_path"].(string)
	if path == "" {
		path, _ = input["path"].(string)
	}
	if path == "" {
		return claudecode.Allow()
	}

	resolved := g.resolve(path)
	if g.isInternalPath(resolved) || g.withinRoots(resolved) {
		return claudecode.Allow()
	}

	g.log.Info("File tool denied", "tool", toolName, "path", path)
	return claudecode.Deny(fmt.Sprintf("%s: path %s is outside the approved directories", toolName, path))
}

// checkBashCommand splits the command into subcommands and validates path
// arguments of filesystem-modifying ones. A shell parse failure allows the
// call.
func (g *Gate) checkBashCommand(command string) claudecode.PermissionDecision {
	tokens, err := shlex.Split(command)
	if err != nil {
		g.log.Warn("Bash command did not parse, allowing", "error", err)
		return claudecode.Allow()
	}

	for _, sub := range splitSubcommands(tokens) {
		if len(sub) == 0 {
			continue
		}
		name := filepath.Base(sub[0])

		switch {
		case readOnlyCommands[name]:
			continue
		case name == "find":
			if !hasMutatingFindAction(sub) {
				continue
			}
			if d := g.validatePathTokens(name, sub[1:]); d != nil {
				return *d
			}
		case fsModifyingCommands[name]:
			if d := g.validatePathTokens(name, sub[1:]); d != nil {
				return *d
			}
		}
	}
	return claudecode.Allow()
}

// validatePathTokens checks each candidate path token of one subcommand.
// Returns nil when every token passes.
func (g *Gate) validatePathTokens(command string, tokens []string) *claudecode.PermissionDecision {
	for _, token := range tokens {
		if strings.HasPrefix(token, "-") {
			continue
		}
		resolved := g.resolve(token)
		if resolved == "" {
			continue
		}
		if g.isInternalPath(resolved) || g.withinRoots(resolved) {
			continue
		}
		g.log.Info("Bash subcommand denied", "command", command, "token", token)
		d := claudecode.Deny(fmt.Sprintf(
			"%s: path %s is outside the approved directories", command, token))
		return &d
	}
	return nil
}

func hasMutatingFindAction(tokens []string) bool {
	for _, t := range tokens {
		if findMutatingActions[t] {
			return true
		}
	}
	return false
}

// resolve canonicalizes a token against the working directory. An empty
// return means the token could not be resolved and should be skipped.
func (g *Gate) resolve(token string) string {
	path := token
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(g.workDir, path)
	}
	path = filepath.Clean(path)
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	// Nonexistent targets (mkdir, cp destination) still get a lexical check.
	return path
}

func (g *Gate) withinRoots(path string) bool {
	for _, root := range g.roots {
		if isUnder(path, root) {
			return true
		}
	}
	return false
}

func (g *Gate) isInternalPath(path string) bool {
	for _, allowed := range []string{
		filepath.Join(g.internalDir, "plans"),
		filepath.Join(g.internalDir, "todos"),
		filepath.Join(g.internalDir, "settings.json"),
	} {
		if path == allowed || isUnder(path, allowed) {
			return true
		}
	}
	return false
}

func isUnder(path, root string) bool {
	root = filepath.Clean(root)
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

// splitSubcommands splits a token stream on shell separators.
func splitSubcommands(tokens []string) [][]string {
	var subs [][]string
	var current []string
	for _, t := range tokens {
		if shellSeparators[t] {
			if len(current) > 0 {
				subs = append(subs, current)
				current = nil
			}
			continue
		}
		current = append(current, t)
	}
	if len(current) > 0 {
		subs = append(subs, current)
	}
	return subs
}
