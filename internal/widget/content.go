package widget

import "context"

// Widget identifiers pushed on each refresh.
const (
	WidgetQuote  = "quote"
	WidgetHabits = "habits"
)

// Content is what a widget displays. The zero value is the explicit empty
// state.
type Content struct {
	QuoteID string  `json:"quote_id,omitempty"`
	Text    string  `json:"text,omitempty"`
	Author  string  `json:"author,omitempty"`
	Habits  []Habit `json:"habits,omitempty"`
}

// Habit is one line of the habits widget.
type Habit struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Streak int    `json:"streak"`
}

// Empty reports whether c carries nothing to display.
func (c Content) Empty() bool {
	return c.QuoteID == "" && c.Text == "" && len(c.Habits) == 0
}

// RenderTarget receives widget content.
type RenderTarget interface {
	PushWidgetContent(ctx context.Context, widgetID string, c Content) error
}
