package version

// Version is set at build time.
// Example: go build -ldflags "-X github.com/shishobooks/shelfwatch/pkg/version.Version=1.0.0".
var Version = "dev"
