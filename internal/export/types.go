package export

// EDLRequest asks for the ledger to be written as an EDL file.
type EDLRequest struct {
	ProjectName string  `json:"project_name"`
	FrameRate   float64 `json:"frame_rate"`
	OutputDir   string  `json:"output_dir"`
}

// ResolvedClip is one EDL event with its media path resolved.
type ResolvedClip struct {
	ClipName  string
	MediaPath string
	StartMs   int
	EndMs     int
}

type EDLResponse struct {
	Status          string   `json:"status"`
	Format          string   `json:"format"`
	OutputPath      string   `json:"output_path"`
	ClipCount       int      `json:"clip_count"`
	UnresolvedClips []string `json:"unresolved_clips"`
}

type CommandsResponse struct {
	Commands string `json:"commands"`
	Count    int    `json:"count"`
}
