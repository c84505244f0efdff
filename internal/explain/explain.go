// Package explain holds the command reference shown next to challenges and
// served by the explain command and endpoint.
package explain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownCommand is returned for commands without a reference entry.
var ErrUnknownCommand = errors.New("no reference for command")

// Flag describes one flag or argument form of a command.
type Flag struct {
	Flag        string `json:"flag"`
	Description string `json:"description"`
}

// Command is the reference entry of one command.
type Command struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Flags       []Flag `json:"flags,omitempty"`
}

var reference = map[string]Command{
	"pwd": {
		Description: "Print working directory. Shows the full path of the directory you are in",
	},
	"ls": {
		Description: "List directory contents. Shows which files and folders exist in a location",
		Flags: []Flag{
			{"-l", "Long format with permissions, owner, size and date. Use it when names alone are not enough."},
			{"-a", "All entries, including hidden ones whose names start with a dot, such as .gitignore or .env."},
			{"-h", "Human-readable sizes like 4.0K or 1.2M. Only useful together with -l."},
			{"-R", "Recursive. Lists every subdirectory as well."},
			{"-t", "Sort by modification time, newest first."},
			{"-S", "Sort by size, largest first."},
			{"-r", "Reverse the sort order. With -t it shows the oldest files first."},
		},
	},
	"cd": {
		Description: "Change directory. Moves you into another folder, like double-clicking it",
		Flags: []Flag{
			{"~", "Your home directory. cd with no argument goes there too."},
			{"..", "The parent directory, one level up."},
			{"/", "The root of the filesystem. In the sandbox, paths always stay inside it."},
		},
	},
	"mkdir": {
		Description: "Make directory. Creates a new folder",
		Flags: []Flag{
			{"-p", "Create missing parent directories as needed and do not fail if the directory exists."},
			{"-v", "Print each directory as it is created."},
		},
	},
	"touch": {
		Description: "Create an empty file, or update the timestamp of an existing one without changing it",
		Flags: []Flag{
			{"-a", "Change only the access time."},
			{"-m", "Change only the modification time."},
		},
	},
	"mv": {
		Description: "Move or rename files and directories. Renaming is a move within the same folder",
		Flags: []Flag{
			{"-i", "Ask before overwriting an existing file."},
			{"-n", "Never overwrite an existing file."},
			{"-v", "Print each move."},
		},
	},
	"cp": {
		Description: "Copy files and directories. The original stays in place",
		Flags: []Flag{
			{"-r", "Recursive. Required to copy a directory and everything inside it."},
			{"-i", "Ask before overwriting an existing file."},
			{"-v", "Print each file as it is copied."},
			{"-p", "Preserve permissions and timestamps."},
		},
	},
	"rm": {
		Description: "Remove files and directories permanently. There is no trash and no undo",
		Flags: []Flag{
			{"-r", "Recursive. Required for directories; deletes everything inside them."},
			{"-f", "Force. Never ask and ignore missing files. It removes the last safety net."},
			{"-i", "Ask before every deletion."},
			{"-v", "Print each file as it is removed."},
		},
	},
	"rmdir": {
		Description: "Remove empty directories. Refuses when the directory still has content",
		Flags: []Flag{
			{"-p", "Also remove each empty parent directory in the path."},
		},
	},
	"cat": {
		Description: "Print the whole content of files. Best for short files",
		Flags: []Flag{
			{"-n", "Number every output line."},
			{"-b", "Number only non-blank lines."},
		},
	},
	"head": {
		Description: "Print the first lines of a file, ten by default",
		Flags: []Flag{
			{"-n N", "Print the first N lines."},
			{"-c N", "Print the first N bytes."},
		},
	},
	"tail": {
		Description: "Print the last lines of a file, ten by default",
		Flags: []Flag{
			{"-n N", "Print the last N lines."},
			{"-c N", "Print the last N bytes."},
		},
	},
	"wc": {
		Description: "Count lines, words and bytes of files",
		Flags: []Flag{
			{"-l", "Count lines only."},
			{"-w", "Count words only."},
			{"-c", "Count bytes only."},
		},
	},
	"find": {
		Description: "Search a directory tree for files, descending into every subfolder",
		Flags: []Flag{
			{"-name", "Match file names against a pattern such as \"*.py\". Quote the pattern."},
			{"-type f", "Only files."},
			{"-type d", "Only directories."},
			{"-size", "Match by size, for example -size +100k."},
			{"-mtime", "Match by modification time in days, for example -mtime -7."},
			{"-maxdepth N", "Descend at most N levels."},
		},
	},
	"du": {
		Description: "Disk usage. Shows how much space files and directories take",
		Flags: []Flag{
			{"-s", "Summary. Print only the total of each argument."},
			{"-h", "Human-readable sizes."},
			{"-a", "Include individual files, not only directories."},
			{"-d N", "Limit the report to N levels deep."},
		},
	},
	"stat": {
		Description: "Show detailed file metadata: size, permissions, owner and timestamps",
	},
	"echo": {
		Description: "Print its arguments as text",
		Flags: []Flag{
			{"-n", "Do not print the trailing newline."},
		},
	},
	"sort": {
		Description: "Sort the lines of files and print the result",
		Flags: []Flag{
			{"-r", "Reverse order."},
			{"-n", "Compare numerically."},
			{"-u", "Drop duplicate lines."},
		},
	},
	"chmod": {
		Description: "Change file permissions, which control who can read, write or execute a file",
		Flags: []Flag{
			{"+x", "Add execute permission, needed to run a script."},
			{"-x", "Remove execute permission."},
			{"755", "Owner can read, write and execute; everyone else can read and execute."},
			{"644", "Owner can read and write; everyone else can only read."},
		},
	},
}

// Lookup returns the reference entry for name.
func Lookup(name string) (Command, error) {
	c, ok := reference[name]
	if !ok {
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	c.Name = name
	return c, nil
}

// Commands returns every entry sorted by name.
func Commands() []Command {
	out := make([]Command, 0, len(reference))
	for name := range reference {
		c, _ := Lookup(name)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Summarize returns the one-line description of the first command in a
// line, or "" when there is no entry.
func Summarize(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	c, err := Lookup(fields[0])
	if err != nil {
		return ""
	}
	return c.Description
}

// Format renders an entry for a terminal.
func (c Command) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "  %s: %s\n", c.Name, c.Description)
	if len(c.Flags) > 0 {
		b.WriteString("  Flags:\n")
		for _, f := range c.Flags {
			fmt.Fprintf(&b, "    %-10s %s\n", f.Flag, f.Description)
		}
	}
	return b.String()
}
