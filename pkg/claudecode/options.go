package claudecode

import (
	"fmt"
	"os"
	"strings"
)

// systemPromptAppend is appended to the CLI's claude_code preset so replies
// suit a chat surface rather than a terminal.
const systemPromptAppend = "You are accessed through Telegram. Keep responses concise " +
	"and mobile-friendly. Prefer short paragraphs and avoid wide tables."

// Options configures one CLI subprocess.
type Options struct {
	// Binary is the CLI executable, "claude" by default.
	Binary string

	// WorkDir is the process working directory; all relative tool paths
	// resolve against it.
	WorkDir string

	// ResumeSessionID resumes a prior conversation when set.
	ResumeSessionID string

	// Model overrides the CLI default model when set.
	Model string

	// Betas are opaque API beta flags, exported to the process environment.
	Betas []string

	// CanUseTool authorizes tool calls. Nil allows everything, leaving
	// enforcement to the CLI's own permission mode.
	CanUseTool PermissionFunc

	// OnStderr receives each stderr line from the subprocess.
	OnStderr func(line string)
}

// args builds the CLI argument list for the stream-json stdio protocol.
func (o *Options) args() []string {
	args := []string{
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--verbose",
		"--include-partial-messages",
		"--permission-prompt-tool", "stdio",
		"--permission-mode", "bypassPermissions",
		"--system-prompt-preset", "claude_code",
		"--append-system-prompt", systemPromptAppend,
		"--setting-sources", "user,project",
	}
	if o.Model != "" {
		args = append(args, "--model", o.Model)
	}
	if o.ResumeSessionID != "" {
		args = append(args, "--resume", o.ResumeSessionID)
	}
	return args
}

// env builds the subprocess environment. CLAUDECODE is forced empty so the
// CLI does not refuse to start when this process itself runs inside an agent
// session.
func (o *Options) env() []string {
	env := append(os.Environ(), "CLAUDECODE=")
	if len(o.Betas) > 0 {
		env = append(env, fmt.Sprintf("ANTHROPIC_BETAS=%s", strings.Join(o.Betas, ",")))
	}
	return env
}

func (o *Options) binary() string {
	if o.Binary != "" {
		return o.Binary
	}
	return "claude"
}
