// Package version exposes the build identity of regkit binaries.
//
// The values are stamped at link time and fall back to the VCS settings the
// Go toolchain embeds:
//
//	go build -ldflags "-X github.com/kbukum/regkit/version.Version=1.4.0" ./cmd/regkit-agent
//
// The agent reports them on /info, in its startup log line and as the
// "version" metadata key of its own registration.
package version
