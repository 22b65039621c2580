package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	servercommon "github.com/evanschultz/taskdeck/internal/adapters/server/common"
)

var (
	tableBorderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

// renderTable writes rows as a bordered table, or a muted placeholder when empty.
func renderTable(w io.Writer, headers []string, rows [][]string) {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, mutedStyle.Render("(none)"))
		return
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(tableBorderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		})
	_, _ = fmt.Fprintln(w, t.Render())
}

func renderProjects(w io.Writer, projects []servercommon.Project) {
	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, []string{p.ID, p.Name, p.Description, formatTimestamp(p.CreatedAt)})
	}
	renderTable(w, []string{"ID", "Name", "Description", "Created"}, rows)
}

func renderTasks(w io.Writer, tasks []servercommon.Task) {
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		scope := t.ProjectID
		if t.Personal {
			scope = "personal"
		}
		rows = append(rows, []string{t.ID, t.Title, t.Status, t.Priority, t.DueDate, scope, t.AssignedTo})
	}
	renderTable(w, []string{"ID", "Title", "Status", "Priority", "Due", "Project", "Assignee"}, rows)
}

// renderTaskPage writes one page of tasks followed by its pagination footer.
func renderTaskPage(w io.Writer, page servercommon.TaskPage) {
	renderTasks(w, page.Tasks)
	_, _ = fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("page %d/%d, %d tasks", page.Page, max(page.TotalPages, 1), page.TotalItems)))
}

func renderBoard(w io.Writer, columns []servercommon.BoardColumn) {
	for _, column := range columns {
		_, _ = fmt.Fprintf(w, "%s (%d)\n", tableHeaderStyle.Render(column.Title), len(column.Tasks))
		renderTasks(w, column.Tasks)
	}
}

func renderMembers(w io.Writer, members []servercommon.Member) {
	rows := make([][]string, 0, len(members))
	for _, m := range members {
		rows = append(rows, []string{m.ID, m.Name, m.Email, m.Role, formatTimestamp(m.JoinedAt)})
	}
	renderTable(w, []string{"ID", "Name", "Email", "Role", "Joined"}, rows)
}

func renderComments(w io.Writer, comments []servercommon.Comment) {
	rows := make([][]string, 0, len(comments))
	for _, c := range comments {
		rows = append(rows, []string{formatTimestamp(c.CreatedAt), c.AuthorName, c.Message})
	}
	renderTable(w, []string{"When", "Author", "Message"}, rows)
}

func renderJoinRequests(w io.Writer, requests []servercommon.JoinRequest) {
	rows := make([][]string, 0, len(requests))
	for _, r := range requests {
		rows = append(rows, []string{r.ID, r.RequesterName, r.RequesterEmail, r.Status, formatTimestamp(r.RequestDate), r.Message})
	}
	renderTable(w, []string{"ID", "Requester", "Email", "Status", "Requested", "Message"}, rows)
}

func renderActivity(w io.Writer, events []servercommon.ChangeEvent) {
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		rows = append(rows, []string{strconv.FormatInt(e.ID, 10), formatTimestamp(e.OccurredAt), e.EntityType, e.Operation, e.EntityID, e.ActorID})
	}
	renderTable(w, []string{"#", "When", "Entity", "Operation", "ID", "Actor"}, rows)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}
