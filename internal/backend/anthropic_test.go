// ABOUTME: Tests for Anthropic request building and error mapping

package backend

import (
	"errors"
	"fmt"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessages_RolesAndOrder(t *testing.T) {
	turns := []Turn{
		{Role: RoleUser, Blocks: []Block{{Text: "hello"}}},
		{Role: RoleAssistant, Blocks: []Block{{Text: "hi there"}}},
		{Role: RoleUser, Blocks: []Block{{Text: "more"}}},
	}

	messages := buildMessages(turns)
	require.Len(t, messages, 3)
	assert.Equal(t, "user", string(messages[0].Role))
	assert.Equal(t, "assistant", string(messages[1].Role))
	assert.Equal(t, "user", string(messages[2].Role))
}

func TestBuildMessages_SkipsEmptyTurns(t *testing.T) {
	turns := []Turn{
		{Role: RoleUser, Blocks: []Block{{Text: ""}}},
		{Role: RoleUser, Blocks: []Block{{Text: "real"}}},
	}

	messages := buildMessages(turns)
	assert.Len(t, messages, 1)
}

func TestBuildMessages_MixedContent(t *testing.T) {
	turns := []Turn{
		{Role: RoleUser, Blocks: []Block{
			{Text: "look at this"},
			{Image: &Media{MimeType: "image/png", Data: []byte{1, 2, 3}}},
			{Document: &Media{MimeType: "application/pdf", Data: []byte{4, 5}}},
		}},
	}

	messages := buildMessages(turns)
	require.Len(t, messages, 1)
	require.Len(t, messages[0].Content, 3)
	assert.NotNil(t, messages[0].Content[0].OfText)
	assert.NotNil(t, messages[0].Content[1].OfImage)
	assert.NotNil(t, messages[0].Content[2].OfDocument)
}

func TestBuildMessages_CacheBreakpointOnLastAttachmentMessage(t *testing.T) {
	turns := []Turn{
		{Role: RoleUser, Blocks: []Block{
			{Text: "first file"},
			{Image: &Media{MimeType: "image/png", Data: []byte{1}}},
		}},
		{Role: RoleAssistant, Blocks: []Block{{Text: "noted"}}},
		{Role: RoleUser, Blocks: []Block{
			{Text: "second file"},
			{Document: &Media{MimeType: "application/pdf", Data: []byte{2}}},
		}},
		{Role: RoleUser, Blocks: []Block{{Text: "text only"}}},
	}

	messages := buildMessages(turns)
	require.Len(t, messages, 4)

	// Only the last attachment-bearing user message is stamped, on its final
	// block.
	cc := anthropic.NewCacheControlEphemeralParam()
	assert.Equal(t, cc, messages[2].Content[1].OfDocument.CacheControl)
	assert.Zero(t, messages[0].Content[1].OfImage.CacheControl)
	assert.Zero(t, messages[3].Content[0].OfText.CacheControl)
}

func TestBuildMessages_NoAttachmentsNoBreakpoint(t *testing.T) {
	turns := []Turn{
		{Role: RoleUser, Blocks: []Block{{Text: "hello"}}},
		{Role: RoleAssistant, Blocks: []Block{{Text: "hi"}}},
	}

	messages := buildMessages(turns)
	require.Len(t, messages, 2)
	assert.Zero(t, messages[0].Content[0].OfText.CacheControl)
}

func TestMapAPIError_NetworkIsUnavailable(t *testing.T) {
	err := mapAPIError(fmt.Errorf("dial tcp: connection refused"))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, errors.Is(err, ErrRateLimited))
	assert.False(t, errors.Is(err, ErrContextTooLarge))
}
