// Package tools exposes place resolution and forecasts as MCP tools.
//
// Both tools clamp out-of-range numeric arguments instead of rejecting them,
// return the structured result as StructuredContent, and add a short Japanese
// text rendering for clients that only display text.
package tools

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/kjstillabower/geoweather-gateway/internal/forecast"
	"github.com/kjstillabower/geoweather-gateway/internal/models"
	"github.com/kjstillabower/geoweather-gateway/internal/observability"
	"github.com/kjstillabower/geoweather-gateway/internal/validation"
)

// Tool names.
const (
	GeocodePlace = "geocode_place"
	GetForecast  = "get_forecast"
)

// WidgetURI is the UI resource both tools render into.
const WidgetURI = "ui://widget/weather.html"

const widgetMIMEType = "text/html+skybridge"

// Argument bounds and defaults.
const (
	defaultCount = 5
	maxCount     = 10
	defaultDays  = 3
)

var (
	errPlaceRequired = errors.New("place を指定してください")
	errCoordinates   = errors.New("latitude / longitude が不正です")
)

// PlaceResolver resolves place names to candidates.
type PlaceResolver interface {
	Resolve(ctx context.Context, place string, count int) ([]models.GeoCandidate, error)
}

// ForecastGetter serves forecasts.
type ForecastGetter interface {
	Get(ctx context.Context, req forecast.Request) (models.ForecastResult, error)
}

// GeocodeInput is the geocode_place argument object.
type GeocodeInput struct {
	Place string `json:"place" jsonschema:"place name, e.g. 中央区 / Shibuya / Tokyo"`
	Count *int   `json:"count,omitempty" jsonschema:"number of candidates, 1 to 10 (default 5)"`
	Days  *int   `json:"days,omitempty" jsonschema:"forecast days the caller intends to request, 1 to 7 (default 3)"`
}

// ForecastInput is the get_forecast argument object.
type ForecastInput struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Days      *int    `json:"days,omitempty" jsonschema:"forecast days, 1 to 7 (default 3)"`
	Timezone  string  `json:"timezone,omitempty" jsonschema:"IANA timezone (default Asia/Tokyo)"`
	Label     string  `json:"label,omitempty" jsonschema:"display label (optional)"`
}

type handlers struct {
	resolver  PlaceResolver
	forecasts ForecastGetter
	logger    *zap.Logger
}

// NewServer builds the MCP server with both tools and the widget resource.
func NewServer(resolver PlaceResolver, forecasts ForecastGetter, version string, logger *zap.Logger) *mcp.Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handlers{resolver: resolver, forecasts: forecasts, logger: logger}

	server := mcp.NewServer(&mcp.Implementation{Name: "geoweather-gateway", Version: version}, nil)

	server.AddResource(&mcp.Resource{
		Name:     "weather-widget",
		URI:      WidgetURI,
		MIMEType: widgetMIMEType,
	}, readWidget)

	mcp.AddTool(server, &mcp.Tool{
		Name:        GeocodePlace,
		Title:       "候補地検索（ジオコード）",
		Description: "場所名から候補地（緯度経度）を複数返します。",
		Meta:        widgetMeta("候補地を検索中…", "候補を表示しました"),
	}, h.geocodePlace)

	mcp.AddTool(server, &mcp.Tool{
		Name:        GetForecast,
		Title:       "天気取得（緯度経度）",
		Description: "緯度経度から現在天気と数日予報を返します。",
		Meta:        widgetMeta("天気を取得中…", "天気を更新しました"),
	}, h.getForecast)

	return server
}

// Handler serves server over streamable HTTP.
func Handler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
}

func widgetMeta(invoking, invoked string) mcp.Meta {
	return mcp.Meta{
		"openai/outputTemplate":          WidgetURI,
		"openai/widgetAccessible":        true,
		"openai/toolInvocation/invoking": invoking,
		"openai/toolInvocation/invoked":  invoked,
	}
}

func (h *handlers) geocodePlace(ctx context.Context, _ *mcp.CallToolRequest, in GeocodeInput) (*mcp.CallToolResult, models.GeocodingResult, error) {
	logger := observability.LoggerFrom(ctx, h.logger)
	place := strings.TrimSpace(in.Place)
	count := validation.Clamp(in.Count, defaultCount, 1, maxCount)
	days := validation.Clamp(in.Days, defaultDays, forecast.MinDays, forecast.MaxDays)

	if place == "" {
		record(GeocodePlace, errPlaceRequired)
		return nil, models.GeocodingResult{}, errPlaceRequired
	}

	candidates, err := h.resolver.Resolve(ctx, place, count)
	record(GeocodePlace, err)
	if err != nil {
		logger.Warn("geocode_place failed", zap.String("place", place), zap.Error(err))
		return nil, models.GeocodingResult{}, err
	}

	out := models.GeocodingResult{
		Kind:       models.KindGeocode,
		Query:      place,
		Days:       days,
		Candidates: candidates,
	}
	return textResult(FormatGeocode(out)), out, nil
}

func (h *handlers) getForecast(ctx context.Context, _ *mcp.CallToolRequest, in ForecastInput) (*mcp.CallToolResult, models.ForecastResult, error) {
	logger := observability.LoggerFrom(ctx, h.logger)
	if err := validation.ValidateCoordinates(in.Latitude, in.Longitude); err != nil {
		record(GetForecast, err)
		return nil, models.ForecastResult{}, errCoordinates
	}

	out, err := h.forecasts.Get(ctx, forecast.Request{
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
		Days:      validation.Clamp(in.Days, defaultDays, forecast.MinDays, forecast.MaxDays),
		Timezone:  in.Timezone,
		Label:     in.Label,
	})
	record(GetForecast, err)
	if err != nil {
		logger.Warn("get_forecast failed",
			zap.Float64("latitude", in.Latitude),
			zap.Float64("longitude", in.Longitude),
			zap.Error(err))
		return nil, models.ForecastResult{}, err
	}
	return textResult(FormatForecast(out)), out, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func record(tool string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	observability.ToolCallsTotal.WithLabelValues(tool, result).Inc()
}
