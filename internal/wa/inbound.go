package wa

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Inbound is the normalized tuple every provider payload reduces to.
type Inbound struct {
	MessageID     string
	From          string
	Text          string
	ButtonPayload string
	ProfileName   string
}

// ParseCloudPayload extracts inbound messages from a cloud-API webhook body.
// Status-only notifications yield an empty slice.
func ParseCloudPayload(body []byte) ([]Inbound, error) {
	var envelope struct {
		Entry []struct {
			Changes []struct {
				Value struct {
					Contacts []struct {
						Profile struct {
							Name string `json:"name"`
						} `json:"profile"`
						WaID string `json:"wa_id"`
					} `json:"contacts"`
					Messages []struct {
						ID          string `json:"id"`
						From        string `json:"from"`
						Type        string `json:"type"`
						Text        struct{ Body string } `json:"text"`
						Interactive struct {
							Type        string `json:"type"`
							ButtonReply struct {
								ID    string `json:"id"`
								Title string `json:"title"`
							} `json:"button_reply"`
							ListReply struct {
								ID    string `json:"id"`
								Title string `json:"title"`
							} `json:"list_reply"`
						} `json:"interactive"`
						Button struct {
							Payload string `json:"payload"`
							Text    string `json:"text"`
						} `json:"button"`
					} `json:"messages"`
					Statuses []json.RawMessage `json:"statuses"`
				} `json:"value"`
			} `json:"changes"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode cloud payload: %w", err)
	}

	var inbound []Inbound
	for _, entry := range envelope.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			profileName := ""
			if len(value.Contacts) > 0 {
				profileName = value.Contacts[0].Profile.Name
			}
			for _, msg := range value.Messages {
				in := Inbound{
					MessageID:   msg.ID,
					From:        msg.From,
					ProfileName: profileName,
				}
				switch msg.Type {
				case "text":
					in.Text = msg.Text.Body
				case "interactive":
					switch msg.Interactive.Type {
					case "button_reply":
						in.ButtonPayload = msg.Interactive.ButtonReply.ID
						in.Text = msg.Interactive.ButtonReply.Title
					case "list_reply":
						in.ButtonPayload = msg.Interactive.ListReply.ID
						in.Text = msg.Interactive.ListReply.Title
					default:
						continue
					}
				case "button":
					in.ButtonPayload = msg.Button.Payload
					in.Text = msg.Button.Text
				default:
					continue
				}
				inbound = append(inbound, in)
			}
		}
	}
	return inbound, nil
}

// ParseGupshupPayload extracts the inbound message from an alternate-shape
// webhook body. Non-message events yield (nil, nil).
func ParseGupshupPayload(body []byte) (*Inbound, error) {
	var envelope struct {
		Type    string `json:"type"`
		Payload struct {
			ID      string `json:"id"`
			Source  string `json:"source"`
			Type    string `json:"type"`
			Payload struct {
				Text  string `json:"text"`
				ID    string `json:"id"`
				Title string `json:"title"`
			} `json:"payload"`
			Sender struct {
				Name string `json:"name"`
			} `json:"sender"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode gupshup payload: %w", err)
	}
	if !strings.EqualFold(envelope.Type, "message") {
		return nil, nil
	}

	in := &Inbound{
		MessageID:   envelope.Payload.ID,
		From:        envelope.Payload.Source,
		ProfileName: envelope.Payload.Sender.Name,
	}
	switch envelope.Payload.Type {
	case "text":
		in.Text = envelope.Payload.Payload.Text
	case "button_reply", "list_reply", "quick_reply":
		in.ButtonPayload = envelope.Payload.Payload.ID
		in.Text = envelope.Payload.Payload.Title
	default:
		return nil, nil
	}
	return in, nil
}
