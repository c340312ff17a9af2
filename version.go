// Package robotflow provides the version information for robotflow.
package robotflow

// Version is the current release of robotflow. Release builds override the
// CLI's copy with -ldflags.
const Version = "0.1.0"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}
