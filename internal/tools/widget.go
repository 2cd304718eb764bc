package tools

import (
	"context"
	_ "embed"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

//go:embed widget/weather.html
var widgetHTML string

func readWidget(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      WidgetURI,
			MIMEType: widgetMIMEType,
			Text:     widgetHTML,
		}},
	}, nil
}
