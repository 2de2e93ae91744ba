package main

import (
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
)

func TestFirstText(t *testing.T) {
	res := &mcp.CallToolResult{Content: []mcp.Content{
		&mcp.TextContent{Text: "pong"},
	}}
	assert.Equal(t, "pong", firstText(res))
}

func TestFirstText_ErrorResult(t *testing.T) {
	// IsError results carry their message as text content.
	res := &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: "identifier is required"}},
	}
	assert.Equal(t, "identifier is required", firstText(res))
}

func TestFirstText_Empty(t *testing.T) {
	assert.Equal(t, "", firstText(&mcp.CallToolResult{}))
}
