package cli

import (
	"fmt"
	"strings"

	"github.com/amp-labs/statechart/event"
	"github.com/amp-labs/statechart/model"
)

// Report lists what running a block produced: the log entries, then the
// events left on the internal and external queues.
func Report(entries []model.LogEntry, internal, external []event.Event) string {
	var sb strings.Builder

	section := func(title string, lines []string) {
		fmt.Fprintf(&sb, "%s (%d)\n", title, len(lines))

		for _, line := range lines {
			sb.WriteString("  ")
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}

	logs := make([]string, len(entries))
	for i, entry := range entries {
		logs[i] = entry.String()
	}

	section("log", logs)
	section("internal events", eventLines(internal))
	section("external events", eventLines(external))

	return sb.String()
}

func eventLines(events []event.Event) []string {
	lines := make([]string, len(events))

	for i, ev := range events {
		line := ev.Name + " [" + string(ev.Type) + "]"

		if ev.SendID != "" {
			line += " id=" + ev.SendID
		}

		if ev.Data != nil {
			line += fmt.Sprintf(" data=%v", ev.Data)
		}

		lines[i] = line
	}

	return lines
}
