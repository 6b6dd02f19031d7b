package domain

import (
	"strings"
	"time"
)

// fieldComparator describes one tracked ticket field: how to render the
// stored value, how to render a proposed value, and how to write it.
// Both sides of a comparison go through the same field renderer.
type fieldComparator struct {
	name     string
	action   HistoryAction
	current  func(*Ticket) string
	proposed func(TicketChanges) (string, bool)
	apply    func(*Ticket, TicketChanges)
}

var trackedFields = []fieldComparator{
	{
		name:    "title",
		action:  ActionTitleChange,
		current: func(t *Ticket) string { return renderText(t.Title) },
		proposed: func(c TicketChanges) (string, bool) {
			if c.Title == nil {
				return "", false
			}
			return renderText(strings.TrimSpace(*c.Title)), true
		},
		apply: func(t *Ticket, c TicketChanges) { t.Title = strings.TrimSpace(*c.Title) },
	},
	{
		name:    "description",
		action:  ActionDescriptionChange,
		current: func(t *Ticket) string { return renderText(t.Description) },
		proposed: func(c TicketChanges) (string, bool) {
			if c.Description == nil {
				return "", false
			}
			return renderText(*c.Description), true
		},
		apply: func(t *Ticket, c TicketChanges) { t.Description = *c.Description },
	},
	{
		name:    "status",
		action:  ActionStatusChange,
		current: func(t *Ticket) string { return renderText(string(t.Status)) },
		proposed: func(c TicketChanges) (string, bool) {
			if c.Status == nil {
				return "", false
			}
			return renderText(string(*c.Status)), true
		},
		apply: func(t *Ticket, c TicketChanges) { t.Status = *c.Status },
	},
	{
		name:    "priority",
		action:  ActionPriorityChange,
		current: func(t *Ticket) string { return renderText(string(t.Priority)) },
		proposed: func(c TicketChanges) (string, bool) {
			if c.Priority == nil {
				return "", false
			}
			return renderText(string(*c.Priority)), true
		},
		apply: func(t *Ticket, c TicketChanges) { t.Priority = *c.Priority },
	},
	{
		name:    "type",
		action:  ActionTypeChange,
		current: func(t *Ticket) string { return renderText(string(t.Type)) },
		proposed: func(c TicketChanges) (string, bool) {
			if c.Type == nil {
				return "", false
			}
			return renderText(string(*c.Type)), true
		},
		apply: func(t *Ticket, c TicketChanges) { t.Type = *c.Type },
	},
	{
		name:    "dueDate",
		action:  ActionDueDateChange,
		current: func(t *Ticket) string { return renderDate(t.DueDate) },
		proposed: func(c TicketChanges) (string, bool) {
			if c.DueDate == nil {
				return "", false
			}
			return renderDate(normalizeDueDate(c.DueDate.Value)), true
		},
		apply: func(t *Ticket, c TicketChanges) { t.DueDate = normalizeDueDate(c.DueDate.Value) },
	},
}

func renderText(v string) string {
	if v == "" {
		return NotSet
	}
	return v
}

func renderDate(d *time.Time) string {
	if d == nil || d.IsZero() {
		return NotSet
	}
	return d.UTC().Format(DueDateLayout)
}

// RenderDueDate formats a due date the way history entries do.
func RenderDueDate(d *time.Time) string {
	return renderDate(d)
}
