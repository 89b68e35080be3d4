package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment, so the event, project and viewer a request
// is working on show up in every log line without being passed around explicitly.
type LogFields struct {
	EventID   *int64  // Activity event ID
	ProjectID *int64  // Project the event belongs to
	ViewerID  *int64  // User the feed is rendered for
	MessageID *string // Redis stream message ID
	HookType  *string // GitLab webhook type (e.g., "Push Hook")
	Component string  // Component name (e.g., "activity.worker")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.EventID != nil {
		result.EventID = new.EventID
	}
	if new.ProjectID != nil {
		result.ProjectID = new.ProjectID
	}
	if new.ViewerID != nil {
		result.ViewerID = new.ViewerID
	}
	if new.MessageID != nil {
		result.MessageID = new.MessageID
	}
	if new.HookType != nil {
		result.HookType = new.HookType
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{EventID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen bytes, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
