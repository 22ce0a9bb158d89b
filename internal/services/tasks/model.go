package tasks

import (
	"fmt"
	"time"
)

// Message types handled under Prefix.
const (
	Prefix = "TASKS_"

	TypeGetAll  = "TASKS_GET_ALL"
	TypeGetByID = "TASKS_GET_BY_ID"
	TypeCreate  = "TASKS_CREATE"
	TypeUpdate  = "TASKS_UPDATE"
	TypeDelete  = "TASKS_DELETE"
	TypeToggle  = "TASKS_TOGGLE"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	Priority    Priority  `json:"priority"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type CreateTaskRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    Priority `json:"priority,omitempty"`
}

// UpdateTaskRequest changes only the fields that are set.
type UpdateTaskRequest struct {
	ID          string    `json:"id"`
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Completed   *bool     `json:"completed,omitempty"`
	Priority    *Priority `json:"priority,omitempty"`
}

// TaskQuery filters and pages TASKS_GET_ALL. Zero Limit means no limit.
type TaskQuery struct {
	Completed *bool    `json:"completed,omitempty"`
	Priority  Priority `json:"priority,omitempty"`
	Limit     int      `json:"limit,omitempty"`
	Offset    int      `json:"offset,omitempty"`
}

type IDRequest struct {
	ID string `json:"id"`
}

// NotFoundError reports an unknown task id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Task with ID %s not found", e.ID)
}

// ValidationError is a rejected request; the store is left unchanged.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// demoTasks seed an empty store.
var demoTasks = []CreateTaskRequest{
	{
		Title:       "Welcome to Tasks!",
		Description: "This is a demo task to get you started.",
		Priority:    PriorityHigh,
	},
	{
		Title:       "Try creating a new task",
		Description: "Click the + button to add your own task.",
		Priority:    PriorityMedium,
	},
	{
		Title:       "Mark tasks as complete",
		Description: "Click the checkbox to complete tasks.",
		Priority:    PriorityLow,
	},
}
