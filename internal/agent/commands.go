package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"coursebot/internal/metrics"
)

// ChatCommand represents a parsed chat command.
type ChatCommand struct {
	Name string   // command name without "/"
	Args []string // arguments after the command
	Raw  string   // original full text
}

// CommandResult holds the response for a handled command.
type CommandResult struct {
	Response  string
	Handled   bool   // false: send the text to the model as a normal query
	SessionID string // session to continue with; changes after /new
	Quit      bool
}

// ParseCommand checks if a message starts with "/" and parses it into a ChatCommand.
// Returns nil if the message is not a command.
func ParseCommand(text string) *ChatCommand {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return nil
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return nil
	}

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	return &ChatCommand{
		Name: strings.ToLower(strings.TrimPrefix(parts[0], "/")),
		Args: args,
		Raw:  text,
	}
}

// HandleCommand runs a chat command against the session sessionID. Unknown
// commands come back with Handled=false.
func (c *Coordinator) HandleCommand(ctx context.Context, cmd *ChatCommand, sessionID string) CommandResult {
	res := CommandResult{Handled: true, SessionID: sessionID}
	switch cmd.Name {
	case "help":
		res.Response = helpText()

	case "new", "clear":
		c.sessions.Clear(sessionID)
		res.SessionID = c.sessions.NewSessionID()
		res.Response = "Conversation cleared. Starting fresh."

	case "history":
		res.Response = c.historyText(sessionID)

	case "sessions":
		res.Response = c.sessionsText(sessionID)

	case "courses":
		a, err := c.CourseAnalytics(ctx)
		if err != nil {
			res.Response = fmt.Sprintf("Could not load courses: %v", err)
			break
		}
		res.Response = coursesText(a)

	case "metrics":
		if !metrics.Collector.Enabled() {
			res.Response = "Metrics are disabled (metrics.enabled is false)."
			break
		}
		var sb strings.Builder
		if err := metrics.Collector.WriteText(&sb); err != nil {
			res.Response = fmt.Sprintf("Could not render metrics: %v", err)
			break
		}
		res.Response = strings.TrimRight(sb.String(), "\n")

	case "quit", "exit":
		res.Quit = true
		res.Response = "Bye."

	default:
		return CommandResult{Handled: false, SessionID: sessionID}
	}
	return res
}

func helpText() string {
	return `Commands

/help      Show this help message
/new       Start a new conversation (clear history)
/clear     Same as /new
/history   Show the turns the model currently sees
/sessions  List conversations held in memory
/courses   List catalogued courses
/metrics   Show query, tool and model counters
/quit      Leave the chat`
}

func (c *Coordinator) historyText(sessionID string) string {
	turns := c.sessions.History(sessionID)
	if len(turns) == 0 {
		return "No history yet."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "History (%d of max %d turns)\n", len(turns), c.sessions.MaxTurns())
	for _, t := range turns {
		fmt.Fprintf(&sb, "\n#%d you: %s\n#%d bot: %s\n", t.Ordinal, t.User, t.Ordinal, t.Assistant)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (c *Coordinator) sessionsText(current string) string {
	infos := c.sessions.Sessions()
	if len(infos) == 0 {
		return "No sessions yet."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Sessions (%d)\n", len(infos))
	for _, s := range infos {
		marker := " "
		if s.ID == current {
			marker = "*"
		}
		fmt.Fprintf(&sb, "\n%s %s  %q  %d exchanges, updated %s", marker, s.ID, s.Title, s.Exchanges, s.Updated.Format(time.Kitchen))
	}
	return sb.String()
}

func coursesText(a *CourseAnalytics) string {
	if a.TotalCourses == 0 {
		return "No courses catalogued. Run `coursebot ingest` first."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Courses (%d)\n", a.TotalCourses)
	for _, t := range a.CourseTitles {
		fmt.Fprintf(&sb, "\n- %s", t)
	}
	return sb.String()
}
