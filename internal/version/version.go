package version

// Version is the current version of the huddle CLI.
// Overridden at build time with:
//   go build -ldflags="-X 'github.com/huddlekit/huddle/internal/version.Version=v1.0.0'"
var Version = "dev"
