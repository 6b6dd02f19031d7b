package domain

import "time"

// HistoryAction labels a history entry.
type HistoryAction string

const (
	ActionTicketCreated     HistoryAction = "Ticket Created"
	ActionTitleChange       HistoryAction = "Title Change"
	ActionDescriptionChange HistoryAction = "Description Change"
	ActionStatusChange      HistoryAction = "Status Change"
	ActionPriorityChange    HistoryAction = "Priority Change"
	ActionTypeChange        HistoryAction = "Type Change"
	ActionDueDateChange     HistoryAction = "Due Date Change"
	ActionAssignmentChange  HistoryAction = "Assignment Change"
)

// NotSet is the rendering of an absent or empty field value.
const NotSet = "Not set"

// Unassigned is the rendering of an empty assignee.
const Unassigned = "Unassigned"

// HistoryEntry is an immutable audit record of one change on a ticket.
// Entries are only produced by Ticket methods and are never edited.
type HistoryEntry struct {
	ID        string
	Actor     UserRef
	Action    HistoryAction
	Field     string
	OldValue  string
	NewValue  string
	Timestamp time.Time
}
