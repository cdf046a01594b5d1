// Package hands manages declarative "hand" bundles — named agent templates
// that declare their prerequisites (binaries, env vars) and user-facing
// settings — and the lifecycle of their running instances.
package hands

import "time"

// RequirementKind identifies what a HandRequirement checks for.
type RequirementKind string

const (
	RequirementBinary RequirementKind = "binary"
	RequirementEnvVar RequirementKind = "env_var"
	RequirementAPIKey RequirementKind = "api_key"
)

// HandRequirement is a single prerequisite a hand needs before it can run.
type HandRequirement struct {
	Kind        RequirementKind `json:"kind" yaml:"kind"`
	CheckValue  string          `json:"check_value" yaml:"check_value"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
}

// SettingOption is one selectable value for a HandSetting.
type SettingOption struct {
	Value       string `json:"value" yaml:"value"`
	Label       string `json:"label,omitempty" yaml:"label,omitempty"`
	ProviderEnv string `json:"provider_env,omitempty" yaml:"provider_env,omitempty"`
	Binary      string `json:"binary,omitempty" yaml:"binary,omitempty"`
}

// HandSetting is a user-facing configuration knob exposed by a hand.
type HandSetting struct {
	Key     string          `json:"key" yaml:"key"`
	Label   string          `json:"label,omitempty" yaml:"label,omitempty"`
	Options []SettingOption `json:"options" yaml:"options"`
}

// HandAgentSpec describes the agent template backing a hand.
type HandAgentSpec struct {
	Name         string   `json:"name" yaml:"name"`
	SystemPrompt string   `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	Model        string   `json:"model,omitempty" yaml:"model,omitempty"`
	Provider     string   `json:"provider,omitempty" yaml:"provider,omitempty"`
	Tools        []string `json:"tools,omitempty" yaml:"tools,omitempty"`
}

// HandDefinition is a named, declarative agent template: identity, display
// metadata, its prerequisites, and the settings it exposes.
type HandDefinition struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description" yaml:"description"`
	Category    string            `json:"category,omitempty" yaml:"category,omitempty"`
	Icon        string            `json:"icon,omitempty" yaml:"icon,omitempty"`
	Agent       HandAgentSpec     `json:"agent" yaml:"agent"`
	Requires    []HandRequirement `json:"requires,omitempty" yaml:"requires,omitempty"`
	Settings    []HandSetting     `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Source is the directory a bundled definition was loaded from, if any.
	Source string `json:"-" yaml:"-"`
}

// HandStatus is the lifecycle status of a HandInstance.
type HandStatus string

const (
	StatusActive HandStatus = "active"
	StatusPaused HandStatus = "paused"
	StatusError  HandStatus = "error"
)

// HandInstance is a running activation of a HandDefinition, optionally bound
// to a backing agent.
type HandInstance struct {
	InstanceID  string         `json:"instance_id"`
	HandID      string         `json:"hand_id"`
	AgentID     *string        `json:"agent_id,omitempty"`
	Status      HandStatus     `json:"status"`
	ErrorMsg    string         `json:"error,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
	ActivatedAt time.Time      `json:"activated_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// RequirementCheck reports whether a single requirement is satisfied.
type RequirementCheck struct {
	Requirement HandRequirement `json:"requirement"`
	Satisfied   bool            `json:"satisfied"`
}

// SettingAvailability reports whether a single setting option can be used.
type SettingAvailability struct {
	SettingKey string `json:"setting_key"`
	Value      string `json:"value"`
	Available  bool   `json:"available"`
}
