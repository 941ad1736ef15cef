// Package version reports the build version of the binary
package version

// BuildInfo holds version information about the build
type BuildInfo struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// set with -ldflags "-X 'repocrawl/internal/platform/version.version=v0.1.0' -X ...commit=abcd"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Info returns the build information
func Info() BuildInfo {
	return BuildInfo{Service: "repocrawl", Version: version, Commit: commit, Date: date}
}

// String renders the build info for --version output
func (b BuildInfo) String() string {
	return b.Version + " (" + b.Commit + ", " + b.Date + ")"
}

// UserAgent is the product token sent to remote APIs
func (b BuildInfo) UserAgent() string {
	return b.Service + "/" + b.Version
}
