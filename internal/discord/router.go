package discord

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Request is a parsed text command.
type Request struct {
	GuildID   string
	ChannelID string
	AuthorID  string
	Args      []string
}

// Command is a prefix command such as "!add <host> <replacement>".
type Command struct {
	Name        string
	Usage       string
	Description string
	// Args is the exact number of arguments the command takes.
	Args    int
	Handler func(ctx context.Context, req Request) error
}

// ErrUsage is returned when a command gets the wrong number of arguments.
type ErrUsage struct {
	Usage string
}

func (e *ErrUsage) Error() string {
	return fmt.Sprintf("usage: %s", e.Usage)
}

// CommandRouter dispatches "<prefix><name> args..." messages.
type CommandRouter struct {
	prefix   string
	commands map[string]Command
}

// NewCommandRouter creates a router for prefix, e.g. "!".
func NewCommandRouter(prefix string) *CommandRouter {
	return &CommandRouter{prefix: prefix, commands: make(map[string]Command)}
}

// Register adds a command, replacing any command with the same name.
func (r *CommandRouter) Register(cmd Command) {
	r.commands[strings.ToLower(cmd.Name)] = cmd
}

// Names lists the registered commands, sorted.
func (r *CommandRouter) Names() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Help lists the registered commands with their usage, one per line.
func (r *CommandRouter) Help() string {
	var sb strings.Builder
	for _, name := range r.Names() {
		cmd := r.commands[name]
		fmt.Fprintf(&sb, "`%s%s` %s\n", r.prefix, cmd.Usage, cmd.Description)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// Parse splits content into a command name and arguments.
// It reports false when content does not start with the prefix.
func (r *CommandRouter) Parse(content string) (string, []string, bool) {
	if r.prefix == "" || !strings.HasPrefix(content, r.prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, r.prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// Dispatch runs the command named in content. It reports whether content
// was a known command; unknown commands are left to other handlers.
func (r *CommandRouter) Dispatch(ctx context.Context, content string, req Request) (bool, error) {
	name, args, ok := r.Parse(content)
	if !ok {
		return false, nil
	}
	cmd, exists := r.commands[name]
	if !exists {
		return false, nil
	}
	if len(args) != cmd.Args {
		return true, &ErrUsage{Usage: r.prefix + cmd.Usage}
	}

	req.Args = args
	if err := cmd.Handler(ctx, req); err != nil {
		return true, fmt.Errorf("command %s failed: %w", name, err)
	}
	return true, nil
}
