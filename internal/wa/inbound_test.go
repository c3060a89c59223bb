package wa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCloudPayloadText(t *testing.T) {
	body := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"changes": [{
				"value": {
					"contacts": [{"profile": {"name": "Lakshmi"}, "wa_id": "919876543210"}],
					"messages": [{
						"id": "wamid.A1",
						"from": "919876543210",
						"type": "text",
						"text": {"body": "Hi"}
					}]
				}
			}]
		}]
	}`)

	inbound, err := ParseCloudPayload(body)
	require.NoError(t, err)
	require.Len(t, inbound, 1)
	assert.Equal(t, "wamid.A1", inbound[0].MessageID)
	assert.Equal(t, "919876543210", inbound[0].From)
	assert.Equal(t, "Hi", inbound[0].Text)
	assert.Empty(t, inbound[0].ButtonPayload)
	assert.Equal(t, "Lakshmi", inbound[0].ProfileName)
}

func TestParseCloudPayloadButtonReply(t *testing.T) {
	body := []byte(`{
		"entry": [{
			"changes": [{
				"value": {
					"messages": [{
						"id": "wamid.B2",
						"from": "919876543210",
						"type": "interactive",
						"interactive": {
							"type": "button_reply",
							"button_reply": {"id": "RASHI_MESHA", "title": "మేషం"}
						}
					}]
				}
			}]
		}]
	}`)

	inbound, err := ParseCloudPayload(body)
	require.NoError(t, err)
	require.Len(t, inbound, 1)
	assert.Equal(t, "RASHI_MESHA", inbound[0].ButtonPayload)
}

func TestParseCloudPayloadStatusOnly(t *testing.T) {
	body := []byte(`{
		"entry": [{
			"changes": [{
				"value": {
					"statuses": [{"id": "wamid.C3", "status": "delivered"}]
				}
			}]
		}]
	}`)

	inbound, err := ParseCloudPayload(body)
	require.NoError(t, err)
	assert.Empty(t, inbound)
}

func TestParseGupshupPayloadText(t *testing.T) {
	body := []byte(`{
		"type": "message",
		"payload": {
			"id": "gs-1",
			"source": "919876543210",
			"type": "text",
			"payload": {"text": "Hi"},
			"sender": {"name": "Lakshmi"}
		}
	}`)

	in, err := ParseGupshupPayload(body)
	require.NoError(t, err)
	require.NotNil(t, in)
	assert.Equal(t, "gs-1", in.MessageID)
	assert.Equal(t, "919876543210", in.From)
	assert.Equal(t, "Hi", in.Text)
}

func TestParseGupshupPayloadNonMessage(t *testing.T) {
	body := []byte(`{"type": "message-event", "payload": {"id": "gs-2"}}`)
	in, err := ParseGupshupPayload(body)
	require.NoError(t, err)
	assert.Nil(t, in)
}

func TestParseGupshupButtonReply(t *testing.T) {
	body := []byte(`{
		"type": "message",
		"payload": {
			"id": "gs-3",
			"source": "919876543210",
			"type": "button_reply",
			"payload": {"id": "TIER_S30", "title": "$30"}
		}
	}`)

	in, err := ParseGupshupPayload(body)
	require.NoError(t, err)
	require.NotNil(t, in)
	assert.Equal(t, "TIER_S30", in.ButtonPayload)
}

func TestClampButtons(t *testing.T) {
	buttons := []Button{
		{ID: "A", Title: "a very long title that exceeds twenty characters"},
		{ID: "B", Title: "ok"},
		{ID: "C", Title: "ok"},
		{ID: "D", Title: "dropped"},
	}
	out := clampButtons(buttons)
	require.Len(t, out, 3)
	assert.LessOrEqual(t, len([]rune(out[0].Title)), 20)
}
