package version

// Version is the current version of the market tool.
// This value is set at build time using ldflags:
// -ldflags "-X github.com/rxtech-lab/argo-history/internal/version.Version=1.2.3"
// The value "main" indicates a development build.
var Version = "v1.0.0"

// GetVersion returns the current version of the tool.
func GetVersion() string {
	return Version
}
