package model

import "time"

// Release represents a GitHub release with its assets
type Release struct {
	ID              int64     // Repository-scoped release ID
	TagName         string    // Release tag name
	TargetCommitish string    // Branch or SHA the tag is created from
	Name            string    // Release name
	Body            string    // Release notes
	Draft           bool      // Draft release
	Prerelease      bool      // Pre-release flag
	Author          string    // Login of the publisher
	URL             string    // HTML URL
	CreatedAt       time.Time // Creation time
	Assets          []*Asset  // Attached binaries
}

// Asset is a binary attached to a release
type Asset struct {
	ID          int64
	Name        string
	Label       string
	ContentType string
	Size        int64
}
