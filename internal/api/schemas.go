package api

import (
	"github.com/qiaofuyo/video-slice/internal/clips"
	"github.com/qiaofuyo/video-slice/internal/doctor"
	"github.com/qiaofuyo/video-slice/internal/media"
	"github.com/qiaofuyo/video-slice/internal/window"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State              string `json:"state"`
	Source             string `json:"source,omitempty"`
	Backend            string `json:"backend,omitempty"`
	Preview            string `json:"preview"`
	SourcesCount       int    `json:"sources_count"`
	ClipsCount         int    `json:"clips_count"`
	PlayerConnected    bool   `json:"player_connected"`
	StreamingAvailable bool   `json:"streaming_available"`
	Subscribers        int    `json:"subscribers"`
	LiveLocators       int    `json:"live_locators"`

	Transcoder *doctor.Report `json:"transcoder,omitempty"`
}

type AddSourcesRequest struct {
	Paths []string `json:"paths"`
}

type AddSourcesResponse struct {
	Added []media.Source `json:"added"`
}

type RemoveSourceResponse struct {
	Removed media.Source `json:"removed"`
}

type MarkResponse struct {
	Edge  string `json:"edge"`
	Value string `json:"value"`
}

// SeekRequest names a configured step or carries a raw delta in seconds.
type SeekRequest struct {
	Step  string   `json:"step,omitempty"`
	Delta *float64 `json:"delta,omitempty"`
}

type SeekResponse struct {
	Position float64 `json:"position"`
}

type ToggleResponse struct {
	Playing bool `json:"playing"`
}

type HelloRequest struct {
	Streaming bool             `json:"streaming"`
	Viewport  *window.Viewport `json:"viewport,omitempty"`
}

type AcceptedResponse struct {
	Accepted bool `json:"accepted"`
}

type ClipsResponse struct {
	Clips []clips.Record `json:"clips"`
}

type RenameClipRequest struct {
	Stem *string `json:"stem,omitempty"`
	Ext  *string `json:"ext,omitempty"`
}

type ClearClipsResponse struct {
	Removed int `json:"removed"`
}

type WindowRequest struct {
	window.Geometry
	Viewport *window.Viewport `json:"viewport,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
