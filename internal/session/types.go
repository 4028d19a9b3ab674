// ABOUTME: Core data types for thread sessions: Thread, Turn, Block, Config
// ABOUTME: Defines roles, visibility, and configuration override semantics

package session

import (
	"github.com/2389/threadloom/internal/platform"
)

// Visibility controls who may contribute turns to a thread.
type Visibility string

const (
	// VisibilityPrivate threads accept turns only from the owner.
	VisibilityPrivate Visibility = "private"
	// VisibilityPublic threads accept turns from any author.
	VisibilityPublic Visibility = "public"
)

// Role identifies who produced a turn and how it participates in context.
type Role string

const (
	RoleOwner Role = "owner"
	RoleGuest Role = "guest"
	RoleAside Role = "aside"
	RoleBot   Role = "bot"
)

// Block is one ordered content element of a turn: either inline text or a
// reference to a platform file. File blocks are resolved lazily at context
// assembly time.
type Block struct {
	Text string
	File *platform.AttachmentRef
}

// TextBlock builds a text content block.
func TextBlock(text string) Block {
	return Block{Text: text}
}

// FileBlock builds an attachment reference block.
func FileBlock(ref platform.AttachmentRef) Block {
	r := ref
	return Block{File: &r}
}

// Config is a thread's effective configuration, computed once at session
// start and mutated only by later directives on the owner's messages.
type Config struct {
	// Temperature in [0,1]; nil means the backend default.
	Temperature *float64
	// SystemPrompt overrides the process-wide default when non-nil.
	SystemPrompt *string
	// AIEnabled gates backend invocation; turns are still recorded when false.
	AIEnabled bool
}

// DefaultConfig returns the configuration a session starts from before any
// directive overrides are applied.
func DefaultConfig() Config {
	return Config{AIEnabled: true}
}

// Overrides is a partial configuration extracted from a directive. Nil fields
// leave the current value untouched.
type Overrides struct {
	Temperature  *float64
	SystemPrompt *string
	AIEnabled    *bool
}

// Empty reports whether the override patch carries no changes.
func (o Overrides) Empty() bool {
	return o.Temperature == nil && o.SystemPrompt == nil && o.AIEnabled == nil
}

// Apply merges the override patch into the configuration.
func (c *Config) Apply(o Overrides) {
	if o.Temperature != nil {
		v := *o.Temperature
		c.Temperature = &v
	}
	if o.SystemPrompt != nil {
		v := *o.SystemPrompt
		c.SystemPrompt = &v
	}
	if o.AIEnabled != nil {
		c.AIEnabled = *o.AIEnabled
	}
}

// Turn is one logical contribution within a thread's causal history.
//
// Human turns are identified by the platform message id that carried them.
// Bot turns get a generated id, link back to the human turn that triggered
// them via TriggerID, and record every platform object posted for them in
// PostedIDs (a long reply may span several).
type Turn struct {
	ID        string
	Author    string
	Role      Role
	Blocks    []Block
	TriggerID string
	PostedIDs []string
}

// Thread is a snapshot of a session's identity and rules. Turn history is
// read separately via Store.History.
type Thread struct {
	ID         string
	Owner      string
	Visibility Visibility
	Config     Config
	TurnCount  int
}
