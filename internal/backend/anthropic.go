// ABOUTME: Anthropic Messages API implementation of the Backend interface
// ABOUTME: Builds text/image/document blocks and maps API failures to sentinels

package backend

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicOptions configures the Anthropic backend.
type AnthropicOptions struct {
	APIKey    string
	Model     string
	MaxTokens int64
}

// AnthropicBackend wraps the official Anthropic client.
type AnthropicBackend struct {
	client *anthropic.Client
	opts   AnthropicOptions
	logger *slog.Logger
}

// NewAnthropicBackend creates a backend using the official SDK client.
func NewAnthropicBackend(opts AnthropicOptions, logger *slog.Logger) *AnthropicBackend {
	if opts.Model == "" {
		opts.Model = "claude-sonnet-4-5"
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 8192
	}
	if logger == nil {
		logger = slog.Default()
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &AnthropicBackend{
		client: &client,
		opts:   opts,
		logger: logger.With("component", "backend"),
	}
}

// Complete sends the assembled conversation to the Messages API and returns
// the completion text.
func (b *AnthropicBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(b.opts.Model),
		MaxTokens: b.opts.MaxTokens,
		Messages:  buildMessages(req.Turns),
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if req.SystemPrompt != "" {
		// The system prompt is stable across a thread's turns, so mark it as a
		// prompt-cache breakpoint.
		params.System = []anthropic.TextBlockParam{{
			Text:         req.SystemPrompt,
			CacheControl: anthropic.NewCacheControlEphemeralParam(),
		}}
	}

	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return nil, mapAPIError(err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}

	b.logger.Debug("completion received",
		"stop_reason", string(resp.StopReason),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens)

	return &Response{
		Text:         text.String(),
		StopReason:   string(resp.StopReason),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// buildMessages converts backend turns into Anthropic message params.
func buildMessages(turns []Turn) []anthropic.MessageParam {
	var messages []anthropic.MessageParam

	for _, turn := range turns {
		var blocks []anthropic.ContentBlockParamUnion
		for _, blk := range turn.Blocks {
			switch {
			case blk.Image != nil:
				b64 := base64.StdEncoding.EncodeToString(blk.Image.Data)
				blocks = append(blocks, anthropic.NewImageBlockBase64(blk.Image.MimeType, b64))
			case blk.Document != nil:
				b64 := base64.StdEncoding.EncodeToString(blk.Document.Data)
				blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{
					Data: b64,
				}))
			case blk.Text != "":
				blocks = append(blocks, anthropic.NewTextBlock(blk.Text))
			}
		}
		if len(blocks) == 0 {
			continue
		}

		switch turn.Role {
		case RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		default:
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}

	applyCacheBreakpoint(messages)
	return messages
}

// applyCacheBreakpoint marks the last attachment-bearing user message as a
// prompt-cache breakpoint, so the expensive image/document prefix is cached
// across the thread's subsequent turns.
func applyCacheBreakpoint(messages []anthropic.MessageParam) {
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.Role != anthropic.MessageParamRoleUser || len(msg.Content) < 2 {
			continue
		}
		setCacheControl(&msg.Content[len(msg.Content)-1])
		return
	}
}

// setCacheControl stamps ephemeral cache control on whichever block variant
// the union holds.
func setCacheControl(blk *anthropic.ContentBlockParamUnion) {
	cc := anthropic.NewCacheControlEphemeralParam()
	switch {
	case blk.OfText != nil:
		blk.OfText.CacheControl = cc
	case blk.OfImage != nil:
		blk.OfImage.CacheControl = cc
	case blk.OfDocument != nil:
		blk.OfDocument.CacheControl = cc
	}
}

// mapAPIError translates SDK/transport errors into the backend taxonomy.
func mapAPIError(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 429:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case apierr.StatusCode == 413:
			return fmt.Errorf("%w: %v", ErrContextTooLarge, err)
		case apierr.StatusCode == 400 && strings.Contains(strings.ToLower(err.Error()), "too long"):
			return fmt.Errorf("%w: %v", ErrContextTooLarge, err)
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// Network-level failure
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
