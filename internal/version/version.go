package version

// Version is the application version, set at build time with
// -ldflags "-X github.com/hashicorp-forge/docserve/internal/version.Version=...".
var Version = "0.1.0-dev"

// GitCommit is the commit the binary was built from.
var GitCommit = ""

// String returns the human-readable version.
func String() string {
	if GitCommit == "" {
		return Version
	}
	return Version + " (" + GitCommit + ")"
}
