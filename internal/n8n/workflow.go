package n8n

import (
	"fmt"

	"github.com/google/uuid"
)

// WorkflowName derives the remote workflow name for a gmail address.
// Every non-alphanumeric byte maps to an underscore, so the same address
// always yields the same name: user@example.com -> gmail_telegram_user_example_com.
func WorkflowName(gmailEmail string) string {
	normalized := make([]byte, len(gmailEmail))
	for i := 0; i < len(gmailEmail); i++ {
		ch := gmailEmail[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
			normalized[i] = ch
		default:
			normalized[i] = '_'
		}
	}
	return "gmail_telegram_" + string(normalized)
}

type workflowNode struct {
	Parameters  map[string]any           `json:"parameters"`
	Type        string                   `json:"type"`
	TypeVersion float64                  `json:"typeVersion"`
	Position    [2]int                   `json:"position"`
	ID          string                   `json:"id"`
	Name        string                   `json:"name"`
	Credentials map[string]credentialRef `json:"credentials,omitempty"`
}

type credentialRef struct {
	ID string `json:"id"`
}

// workflowPayload builds the declarative node graph: a gmail trigger polling
// for unread mail every minute, wired into a telegram notification through
// the shared bot credential.
func (c *Client) workflowPayload(name, gmailEmail, n8nCredentialID string) map[string]any {
	trigger := workflowNode{
		Parameters: map[string]any{
			"pollTimes": map[string]any{
				"item": []map[string]any{{"mode": "everyMinute"}},
			},
			"simple":  false,
			"filters": map[string]any{"readStatus": "unread"},
			"options": map[string]any{},
		},
		Type:        "n8n-nodes-base.gmailTrigger",
		TypeVersion: 1.3,
		Position:    [2]int{0, 0},
		ID:          uuid.NewString(),
		Name:        "Gmail Trigger",
		Credentials: map[string]credentialRef{
			"gmailOAuth2": {ID: n8nCredentialID},
		},
	}

	notify := workflowNode{
		Parameters: map[string]any{
			"chatId": c.cfg.TelegramChatID,
			"text": fmt.Sprintf(
				"=📧 New email for %s\n\n📋 Subject: {{ $json.subject }}\n👤 From: {{ $json.from }}\n📅 Date: {{ $json.date }}",
				gmailEmail,
			),
			"additionalFields": map[string]any{"appendAttribution": false},
		},
		Type:        "n8n-nodes-base.telegram",
		TypeVersion: 1.2,
		Position:    [2]int{300, 0},
		ID:          uuid.NewString(),
		Name:        "Send Telegram",
		Credentials: map[string]credentialRef{
			"telegramApi": {ID: c.cfg.TelegramCredID},
		},
	}

	return map[string]any{
		"name":  name,
		"nodes": []workflowNode{trigger, notify},
		"connections": map[string]any{
			"Gmail Trigger": map[string]any{
				"main": [][]map[string]any{{
					{"node": "Send Telegram", "type": "main", "index": 0},
				}},
			},
		},
		"settings": map[string]any{"executionOrder": "v1"},
	}
}
