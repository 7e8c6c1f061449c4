package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/qiaofuyo/video-slice/internal/config"
	"github.com/qiaofuyo/video-slice/internal/playback"
	"github.com/qiaofuyo/video-slice/internal/workspace"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	// Media elements cannot send an Authorization header; the unguessable
	// token in the path is the credential.
	r.Group(func(r chi.Router) {
		r.Use(LoopbackGuard())
		r.Get(playback.RoutePrefix+"{token}", playbackHandler(cfg))
		r.Head(playback.RoutePrefix+"{token}", playbackHandler(cfg))
	})

	r.Get("/ws", wsHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Get("/doctor", doctorHandler(cfg))

		r.Get("/sources", listSourcesHandler(cfg))
		r.Post("/sources", addSourcesHandler(cfg))
		r.Delete("/sources/{index}", removeSourceHandler(cfg))
		r.Post("/sources/{index}/play", playSourceHandler(cfg))

		r.Get("/session", sessionHandler(cfg))
		r.Delete("/session", stopHandler(cfg))
		r.Post("/session/mark/{edge}", markHandler(cfg))
		r.Post("/session/seek", seekHandler(cfg))
		r.Post("/session/toggle", toggleHandler(cfg))

		r.Post("/player/hello", helloHandler(cfg))
		r.Post("/player/metadata", metadataHandler(cfg))
		r.Post("/player/progress", progressHandler(cfg))

		r.Get("/clips", listClipsHandler(cfg))
		r.Post("/clips", addClipHandler(cfg))
		r.Delete("/clips", clearClipsHandler(cfg))
		r.Patch("/clips/{pos}", renameClipHandler(cfg))
		r.Delete("/clips/{pos}", removeClipHandler(cfg))
		r.Post("/clips/{pos}/preview", previewClipHandler(cfg))

		r.Post("/export/commands", exportCommandsHandler(cfg))
		r.Post("/export/edl", exportEDLHandler(cfg))

		r.Get("/window", getWindowHandler(cfg))
		r.Put("/window", putWindowHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version := cfg.Version
		if version == "" {
			version = config.Version
		}
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := cfg.Workspace.Snapshot(r.Context())
		if err != nil {
			WriteFault(w, err)
			return
		}

		resp := StatusResponse{
			State:        snap.Session.State,
			Backend:      snap.Session.Backend,
			Preview:      snap.Session.Preview,
			SourcesCount: len(snap.Selection.Sources),
			ClipsCount:   len(snap.Clips),
			Subscribers:  cfg.Workspace.Bus().SubscriberCount(),
		}
		if snap.Session.Source != nil {
			resp.Source = snap.Session.Source.Name
		}
		if cfg.Presence != nil {
			resp.PlayerConnected = cfg.Presence.Connected()
			resp.StreamingAvailable = cfg.Presence.Streaming()
		}
		if cfg.Locators != nil {
			resp.LiveLocators = cfg.Locators.Live()
		}
		if cfg.Doctor != nil {
			resp.Transcoder = cfg.Doctor.Peek()
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func doctorHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Doctor == nil {
			WriteError(w, http.StatusServiceUnavailable, "transcoder check is not enabled", "UNAVAILABLE")
			return
		}
		get := cfg.Doctor.Get
		if r.URL.Query().Get("refresh") == "true" {
			get = cfg.Doctor.Refresh
		}
		report, err := get(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, report)
	}
}

func playbackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := playback.TokenFromLocator(chi.URLParam(r, "token"))
		path, ok := cfg.Locators.Resolve(token)
		if !ok {
			WriteError(w, http.StatusNotFound, "playback locator not found or revoked", "NOT_FOUND")
			return
		}
		if err := cfg.PlaybackServer.ServeFile(w, r, path); err != nil {
			cfg.Logger.Error("playback error", "error", err, "token", token)
		}
	}
}

func listSourcesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := cfg.Workspace.Sources(r.Context())
		if err != nil {
			WriteFault(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, v)
	}
}

func addSourcesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddSourcesRequest
		if !decodeBody(w, r, &req) {
			return
		}
		added, err := cfg.Workspace.AddSources(r.Context(), req.Paths)
		if err != nil {
			WriteFault(w, err)
			return
		}
		status := http.StatusOK
		if len(added) > 0 {
			status = http.StatusCreated
		}
		WriteJSON(w, status, AddSourcesResponse{Added: added})
	}
}

func removeSourceHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idx, ok := pathIndex(w, r, "index")
		if !ok {
			return
		}
		src, err := cfg.Workspace.RemoveSource(r.Context(), idx)
		if err != nil {
			WriteFault(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, RemoveSourceResponse{Removed: src})
	}
}

func playSourceHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idx, ok := pathIndex(w, r, "index")
		if !ok {
			return
		}
		if err := cfg.Workspace.PlaySource(r.Context(), idx); err != nil {
			WriteFault(w, err)
			return
		}
		writeSession(w, r, cfg, http.StatusAccepted)
	}
}

func sessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeSession(w, r, cfg, http.StatusOK)
	}
}

func stopHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Workspace.Stop(r.Context()); err != nil {
			WriteFault(w, err)
			return
		}
		writeSession(w, r, cfg, http.StatusOK)
	}
}

func markHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		edge := workspace.Edge(chi.URLParam(r, "edge"))
		if edge != workspace.EdgeStart && edge != workspace.EdgeEnd {
			WriteError(w, http.StatusBadRequest, "edge must be start or end", "BAD_REQUEST")
			return
		}
		value, err := cfg.Workspace.Mark(r.Context(), edge)
		if err != nil {
			WriteFault(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, MarkResponse{Edge: string(edge), Value: value})
	}
}

func seekHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SeekRequest
		if !decodeBody(w, r, &req) {
			return
		}

		var (
			pos float64
			err error
		)
		switch {
		case req.Delta != nil:
			pos, err = cfg.Workspace.SeekBy(r.Context(), *req.Delta)
		case req.Step != "":
			pos, err = cfg.Workspace.StepSeek(r.Context(), workspace.Step(req.Step))
		default:
			WriteError(w, http.StatusBadRequest, "step or delta is required", "BAD_REQUEST")
			return
		}
		if err != nil {
			WriteFault(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, SeekResponse{Position: pos})
	}
}

func toggleHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playing, err := cfg.Workspace.TogglePlay(r.Context())
		if err != nil {
			WriteFault(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, ToggleResponse{Playing: playing})
	}
}

func helloHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req HelloRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Viewport != nil {
			if err := cfg.Workspace.SetViewport(r.Context(), *req.Viewport); err != nil {
				WriteFault(w, err)
				return
			}
		}
		if err := cfg.Workspace.PlayerHello(r.Context(), req.Streaming); err != nil {
			WriteFault(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, AcceptedResponse{Accepted: true})
	}
}

func metadataHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req workspace.MetadataReport
		if !decodeBody(w, r, &req) {
			return
		}
		accepted, err := cfg.Workspace.MetadataReady(r.Context(), req)
		if err != nil {
			WriteFault(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, AcceptedResponse{Accepted: accepted})
	}
}

func progressHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req workspace.ProgressReport
		if !decodeBody(w, r, &req) {
			return
		}
		accepted, err := cfg.Workspace.Progress(r.Context(), req)
		if err != nil {
			WriteFault(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, AcceptedResponse{Accepted: accepted})
	}
}

func listClipsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := cfg.Workspace.Clips(r.Context())
		if err != nil {
			WriteFault(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, ClipsResponse{Clips: recs})
	}
}

func addClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req workspace.AddClipRequest
		if r.ContentLength != 0 && !decodeBody(w, r, &req) {
			return
		}
		rec, err := cfg.Workspace.AddClip(r.Context(), req)
		if err != nil {
			WriteFault(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, rec)
	}
}

func clearClipsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := cfg.Workspace.ClearClips(r.Context())
		if err != nil {
			WriteFault(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, ClearClipsResponse{Removed: n})
	}
}

func renameClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pos, ok := pathIndex(w, r, "pos")
		if !ok {
			return
		}
		var req RenameClipRequest
		if !decodeBody(w, r, &req) {
			return
		}
		rec, err := cfg.Workspace.RenameClip(r.Context(), pos, req.Stem, req.Ext)
		if err != nil {
			WriteFault(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, rec)
	}
}

func removeClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pos, ok := pathIndex(w, r, "pos")
		if !ok {
			return
		}
		rec, err := cfg.Workspace.RemoveClip(r.Context(), pos)
		if err != nil {
			WriteFault(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, rec)
	}
}

func previewClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pos, ok := pathIndex(w, r, "pos")
		if !ok {
			return
		}
		if err := cfg.Workspace.PreviewClip(r.Context(), pos); err != nil {
			WriteFault(w, err)
			return
		}
		writeSession(w, r, cfg, http.StatusAccepted)
	}
}

func getWindowHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := cfg.Workspace.Window(r.Context())
		if err != nil {
			WriteFault(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, g)
	}
}

func putWindowHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req WindowRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Viewport != nil {
			if err := cfg.Workspace.SetViewport(r.Context(), *req.Viewport); err != nil {
				WriteFault(w, err)
				return
			}
		}
		g := req.Geometry
		if err := cfg.Workspace.SaveWindow(r.Context(), g); err != nil {
			WriteFault(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, g)
	}
}

func writeSession(w http.ResponseWriter, r *http.Request, cfg ServerConfig, status int) {
	v, err := cfg.Workspace.Session(r.Context())
	if err != nil {
		WriteFault(w, err)
		return
	}
	WriteJSON(w, status, v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return false
	}
	return true
}

func pathIndex(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		WriteError(w, http.StatusBadRequest, name+" must be an integer", "BAD_REQUEST")
		return 0, false
	}
	return n, true
}
