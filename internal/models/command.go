package models

import "encoding/json"

// CmdRequest represents a command received over the command topic.
type CmdRequest struct {
	ID      string          `json:"id"`               // Correlation id echoed in the response.
	Command string          `json:"command"`          // Name of the command to execute.
	Cookie  string          `json:"cookie,omitempty"` // Optional session credential replacing the current one.
	Key     string          `json:"key,omitempty"`    // State key for setState.
	Value   json.RawMessage `json:"value,omitempty"`  // State value for setState.
}

// CmdResponse represents the reply published after handling a command.
type CmdResponse struct {
	ID      string `json:"id"`
	Command string `json:"command"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Result  any    `json:"result"`
}

// UserSummary is the stored identity of a tracked user.
type UserSummary struct {
	ID       string `json:"id"`
	PhotoURL string `json:"photoURL"`
	Name     string `json:"name"`
}
