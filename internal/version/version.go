package version

// Variables populated via -ldflags at build time.
// Example:
//   go build -ldflags "-X 'workloadgen/internal/version.Version=1.0.0' -X 'workloadgen/internal/version.Commit=$(git rev-parse --short HEAD)' -X 'workloadgen/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)'"
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Full returns a human friendly version string.
func Full() string {
	if Commit == "" {
		return Version
	}
	return Version + "+" + Commit
}

// Info is the version payload served by the status API and the version command.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Date    string `json:"date,omitempty"`
}

func Current() Info {
	return Info{Version: Version, Commit: Commit, Date: Date}
}
