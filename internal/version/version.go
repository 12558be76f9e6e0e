// Package version carries build metadata stamped in with -ldflags.
package version

var (
	// Name is the binary name reported by /healthz.
	Name = "tagview"
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata for log lines.
func String() string {
	return Name + " " + Version + " (" + GitSHA + ", built " + BuildTime + ")"
}
