// Package version carries build information set with -ldflags -X.
package version

var (
	Version   = "UNKNOWN"
	GitCommit = "UNKNOWN"
)
