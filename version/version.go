package version

import (
	"fmt"
	"runtime"
)

// Set at build time with -ldflags "-X github.com/panda3d/panda3d-sub012/version.Version=...".
var (
	Version  = "dev"
	Revision = "unknown"
	Built    = "unknown"
)

// String is the multi-line report printed by `pkginst version`.
func String() string {
	return fmt.Sprintf("Version:     %s\nGit hash:    %s\nBuilt:       %s\nGo version:  %s\nOS/Arch:     %s/%s\n",
		Version, Revision, Built, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
