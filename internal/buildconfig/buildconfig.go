package buildconfig

import "runtime"

// Set with -ldflags "-X github.com/Harshitk-cp/atomspace/internal/buildconfig.version=..."
var (
	version = "dev"
	commit  = "unknown"
)

func Version() string {
	return version
}

func Commit() string {
	return commit
}

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
}

func Current() Info {
	return Info{Version: version, Commit: commit, GoVersion: runtime.Version()}
}

// UserAgent identifies CLI requests to a remote server.
func UserAgent() string {
	return "atomspace/" + version
}
