package types

import "promptroom/promptroom/roles"

type RegisterRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Password    string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CreateRoomRequest struct {
	Title        string `json:"title"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	Model        string `json:"model"`
	// Temperature is a pointer so an absent field is distinguishable from
	// an explicit 0; absent falls back to the default.
	Temperature *float64 `json:"temperature,omitempty"`
}

type SendMessageRequest struct {
	Text string `json:"text"`
}

type DeleteMessagesRequest struct {
	IDs []string `json:"ids"`
}

type EditPromptRequest struct {
	SystemPrompt string `json:"system_prompt"`
}

type RenameRoomRequest struct {
	Title string `json:"title"`
}

type ModelSettingsRequest struct {
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature,omitempty"`
}

type AssignRoleRequest struct {
	UserID string     `json:"user_id"`
	Role   roles.Role `json:"role"`
}
