package model

// StagedAssets represents release assets downloaded to a private directory
type StagedAssets struct {
	TempDir string   // Path to temporary directory
	Files   []string // Absolute paths of staged files, in source asset order
	Size    int64    // Total size in bytes
}
