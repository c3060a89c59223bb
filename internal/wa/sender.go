// Package wa adapts the WhatsApp transport: a uniform outbound Sender
// interface with provider implementations, and inbound webhook parsing that
// normalizes provider payload shapes into a single Inbound tuple.
package wa

import "context"

// Button is an interactive reply button. IDs and titles are capped at 20
// characters by the transport.
type Button struct {
	ID    string
	Title string
}

// Row is a selectable entry inside a list section.
type Row struct {
	ID          string
	Title       string
	Description string
}

// Section groups list rows under a title.
type Section struct {
	Title string
	Rows  []Row
}

// Sender is the uniform outbound interface. Every operation returns the
// provider message ID. Callers never retry inline; the next scheduled tick
// is the retry path.
type Sender interface {
	Text(ctx context.Context, phone, body string) (string, error)
	Buttons(ctx context.Context, phone, body string, buttons []Button) (string, error)
	List(ctx context.Context, phone, body, buttonLabel string, sections []Section) (string, error)
	Template(ctx context.Context, phone, templateID string, params []string, headerMediaURL string) (string, error)
	Image(ctx context.Context, phone, mediaURL, caption string) (string, error)
	Video(ctx context.Context, phone, mediaURL, caption string) (string, error)
	CTAURL(ctx context.Context, phone, body, display, targetURL string) (string, error)
}

const (
	maxButtons     = 3
	maxButtonTitle = 20
)

func clampButtons(buttons []Button) []Button {
	if len(buttons) > maxButtons {
		buttons = buttons[:maxButtons]
	}
	out := make([]Button, len(buttons))
	for i, b := range buttons {
		if len([]rune(b.Title)) > maxButtonTitle {
			b.Title = string([]rune(b.Title)[:maxButtonTitle])
		}
		out[i] = b
	}
	return out
}
