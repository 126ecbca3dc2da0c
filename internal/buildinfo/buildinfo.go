// Package buildinfo holds build-time version information.
package buildinfo

// Version is the application version, overridden at build time via
// -ldflags "-X github.com/whatsnowplaying/artcache/internal/buildinfo.Version=...".
var Version = "dev"
