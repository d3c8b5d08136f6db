package version

// Version is the current release of the courier service. Overridden at build
// time via -ldflags "-X github.com/corvusHold/courier/internal/version.Version=...".
var Version = "0.1.0-dev"
