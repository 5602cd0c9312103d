package meta

import (
	"fmt"
	"runtime"
	"strings"
)

// Info describes the build context of a live binary.
type Info struct {
	Version   string
	Build     string
	Branch    string
	BuildTime string
	Platform  string
	GoVersion string
	GoTag     string
}

// Filled in by the linker through -X flags; empty in a plain `go build`.
var (
	// Version as an arbitrary string
	Version string

	// Build is the Git sha we are building from
	Build string

	// Branch is the Git branch we are building from
	Branch string

	// BuildTimeUTC is the build time in UTC (year/month/day hour:min:sec)
	BuildTimeUTC string

	// GoTag holds the build tags in effect
	GoTag string

	platform = fmt.Sprintf("%s %s", runtime.GOOS, runtime.GOARCH)
)

// GetInfo returns an Info populated with the build information.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Build:     Build,
		Branch:    Branch,
		BuildTime: BuildTimeUTC,
		Platform:  platform,
		GoVersion: runtime.Version(),
		GoTag:     GoTag,
	}
}

// String renders the info as the block `live version` prints.
func (i Info) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "live %s\n", i.Version)
	fmt.Fprintf(&b, "  Build:      %s\n", i.Build)
	fmt.Fprintf(&b, "  Branch:     %s\n", i.Branch)
	fmt.Fprintf(&b, "  Built:      %s\n", i.BuildTime)
	fmt.Fprintf(&b, "  Go version: %s\n", i.GoVersion)
	fmt.Fprintf(&b, "  Platform:   %s\n", i.Platform)

	if i.GoTag != "" {
		fmt.Fprintf(&b, "  Build tags: %s\n", i.GoTag)
	}

	return b.String()
}
