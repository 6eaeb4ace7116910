// Package actions extracts inline tool-action tags from generated agent
// text and classifies whether each action needs human approval.
//
// An action tag is a closed-form marker the agent embeds in its response:
//
//	<action>{"type":"export-data","params":{"dataset":"leads"}}</action>
//
// The tag wraps a JSON object with a required "type" field and an
// optional "params" map. Types outside the closed vocabulary extract as
// ActionCustom, which defaults to requiring approval.
package actions

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// ActionType is the closed vocabulary of side-effecting actions.
type ActionType string

const (
	ActionSendMessage    ActionType = "send-message"
	ActionCreateRecord   ActionType = "create-record"
	ActionScheduleEvent  ActionType = "schedule-event"
	ActionExportData     ActionType = "export-data"
	ActionGenericAPICall ActionType = "generic-api-call"

	// ActionCustom classifies any type outside the closed vocabulary.
	ActionCustom ActionType = "custom"
)

// Span is the byte range a tag occupied in the original text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ToolAction is one extracted action. It is ephemeral: actions requiring
// approval convert into Approval records, the rest execute immediately.
type ToolAction struct {
	ID     string          `json:"id"`
	Type   ActionType      `json:"type"`
	// RawType preserves the original type string when Type is custom.
	RawType string          `json:"raw_type,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Span    Span            `json:"span"`
}

// RequiresApproval reports whether the action's type metadata gates it
// behind human sign-off. The classification is baked into the type, not
// decided per call.
func (a *ToolAction) RequiresApproval() bool {
	return typeInfo(a.Type).requiresApproval
}

// Preview returns a one-line human-readable summary for the approval UI.
func (a *ToolAction) Preview() string {
	return typeInfo(a.Type).preview(a)
}

type actionTypeInfo struct {
	requiresApproval bool
	preview          func(a *ToolAction) string
}

var actionTypes = map[ActionType]actionTypeInfo{
	ActionSendMessage: {
		requiresApproval: true,
		preview: func(a *ToolAction) string {
			return fmt.Sprintf("Send message to %s: %s", a.param("to"), a.param("subject"))
		},
	},
	ActionCreateRecord: {
		requiresApproval: false,
		preview: func(a *ToolAction) string {
			return fmt.Sprintf("Create %s record", a.param("entity"))
		},
	},
	ActionScheduleEvent: {
		requiresApproval: true,
		preview: func(a *ToolAction) string {
			return fmt.Sprintf("Schedule event %q at %s", a.param("title"), a.param("time"))
		},
	},
	ActionExportData: {
		requiresApproval: true,
		preview: func(a *ToolAction) string {
			return fmt.Sprintf("Export %s data", a.param("dataset"))
		},
	},
	ActionGenericAPICall: {
		requiresApproval: true,
		preview: func(a *ToolAction) string {
			return fmt.Sprintf("Call %s %s", a.param("method"), a.param("url"))
		},
	},
	ActionCustom: {
		requiresApproval: true,
		preview: func(a *ToolAction) string {
			name := a.RawType
			if name == "" {
				name = string(ActionCustom)
			}
			return fmt.Sprintf("Run custom action %q", name)
		},
	},
}

// Known reports whether t is in the closed vocabulary.
func (t ActionType) Known() bool {
	_, ok := actionTypes[t]
	return ok
}

func typeInfo(t ActionType) actionTypeInfo {
	if info, ok := actionTypes[t]; ok {
		return info
	}
	return actionTypes[ActionCustom]
}

// param returns a named parameter as a display string, or "?" when absent.
func (a *ToolAction) param(key string) string {
	if len(a.Params) == 0 {
		return "?"
	}
	var params map[string]any
	if err := json.Unmarshal(a.Params, &params); err != nil {
		return "?"
	}
	value, ok := params[key]
	if !ok || value == nil {
		return "?"
	}
	return fmt.Sprintf("%v", value)
}

var tagPattern = regexp.MustCompile(`(?s)<action>\s*(\{.*?\})\s*</action>`)

type tagPayload struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params"`
}

// Extract scans text for action tags and returns the actions in their
// original order, each with the span it occupied. Tags whose payload is
// not valid JSON or lacks a type are skipped.
func Extract(text string) []ToolAction {
	matches := tagPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	result := make([]ToolAction, 0, len(matches))
	for _, m := range matches {
		payload := text[m[2]:m[3]]

		var tag tagPayload
		if err := json.Unmarshal([]byte(payload), &tag); err != nil || tag.Type == "" {
			continue
		}

		action := ToolAction{
			ID:     uuid.NewString(),
			Type:   ActionType(tag.Type),
			Params: tag.Params,
			Span:   Span{Start: m[0], End: m[1]},
		}
		if _, known := actionTypes[action.Type]; !known || action.Type == ActionCustom {
			action.RawType = tag.Type
			action.Type = ActionCustom
		}
		result = append(result, action)
	}
	return result
}

// Strip removes all action tags from text for display. It is idempotent
// and alters nothing outside the tags themselves.
func Strip(text string) string {
	return tagPattern.ReplaceAllString(text, "")
}
