package version

import (
	"fmt"
	"runtime"
	"time"
)

// Name is the product name reported in health output and the User-Agent.
const Name = "ytdown"

var (
	Version   = "dev"                           // ex: v0.1.0
	Commit    = "none"                          // ex: abcd123
	BuildDate = time.Now().Format(time.RFC3339) // ex: 2025-08-11T18:42:00Z
	GoVersion = runtime.Version()               // go version
)

// UserAgent is sent on every upstream call.
func UserAgent() string {
	return fmt.Sprintf("%s/%s (+%s)", Name, Version, Commit)
}

func String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s, %s)", Name, Version, Commit, BuildDate, GoVersion)
}
