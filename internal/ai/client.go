package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
)

type Client struct {
	client *openai.Client
	model  string
}

func New(apiKey, baseURL, model string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (c *Client) SetModel(model string) {
	c.model = model
}

type Intent struct {
	Action             string            `json:"action"`
	Parameters         map[string]string `json:"parameters"`
	Confidence         float64           `json:"confidence"`
	NeedsConfirmation  bool              `json:"needs_confirmation"`
	ConfirmationReason string            `json:"confirmation_reason"`
	AIMessage          string            `json:"ai_message"`
	RawResponse        string            `json:"-"`
}

const systemPromptTemplate = `You are the assistant behind a medication reminder bot. Parse the user's
natural language message into a structured intent.

Current time: %s

Available actions:
- create_medication: add a medication (name required; dosage, times, days optional)
- list_medications: list the user's medications
- delete_medication: remove a medication
- record_taken: the user says they took a dose (id or medication name)
- record_missed: the user says they missed a dose (id or medication name)
- adherence_report: the user asks how well they have been taking their meds
- set_contact: set the emergency contact (name, optionally email)
- unknown: cannot be mapped to any of the above

Parameters may include:
- id: medication number (for delete, record_taken, record_missed)
- name: medication name
- dosage_amount: numeric dose amount (e.g. "100")
- dosage_unit: dose unit (e.g. "mg", "ml", "tablet")
- times: comma separated 24h dose times, e.g. "08:00,20:00"
- days: comma separated weekday codes, e.g. "MO,WE,FR" (omit for every day)
- contact_name: emergency contact name
- contact_email: emergency contact email

Rules:
1. Resolve relative phrases like "every morning" to concrete times
   ("08:00") and "weekdays" to day codes ("MO,TU,WE,TH,FR").
2. delete_medication always needs needs_confirmation = true, with a short
   confirmation_reason like "Delete medication #3?".
3. If the request is too vague to act on, use action = unknown and put a
   follow-up question in ai_message.
4. ai_message is a short friendly reply shown to the user.`

func getSystemPrompt() string {
	now := time.Now()
	return fmt.Sprintf(systemPromptTemplate, now.Format("2006-01-02 15:04 (Monday)"))
}

// JSON Schema for structured output
var intentSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"action": {
			"type": "string",
			"enum": ["create_medication", "list_medications", "delete_medication", "record_taken", "record_missed", "adherence_report", "set_contact", "unknown"],
			"description": "The action to perform"
		},
		"parameters": {
			"type": "object",
			"additionalProperties": {
				"type": "string"
			},
			"description": "Parameters for the action"
		},
		"confidence": {
			"type": "number",
			"minimum": 0,
			"maximum": 1,
			"description": "Confidence score between 0 and 1"
		},
		"needs_confirmation": {
			"type": "boolean",
			"description": "Whether this action requires user confirmation before execution"
		},
		"confirmation_reason": {
			"type": "string",
			"description": "Human-readable reason for why confirmation is needed"
		},
		"ai_message": {
			"type": "string",
			"description": "Friendly message to show the user"
		}
	},
	"required": ["action", "confidence", "needs_confirmation"],
	"additionalProperties": false
}`)

func (c *Client) ParseIntent(ctx context.Context, userMessage string) (*Intent, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: getSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userMessage,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "intent",
				Schema: intentSchema,
				Strict: true,
			},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call AI API: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from AI")
	}

	content := resp.Choices[0].Message.Content
	intent := &Intent{RawResponse: content}

	if err := json.Unmarshal([]byte(content), intent); err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}

	return intent, nil
}

func (c *Client) GenerateResponse(ctx context.Context, systemMsg, userMsg string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemMsg,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userMsg,
			},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from AI")
	}

	return resp.Choices[0].Message.Content, nil
}
