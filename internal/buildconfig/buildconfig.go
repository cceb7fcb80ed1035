// Package buildconfig exposes values stamped into the binary at link time:
//
//	go build -ldflags "-X github.com/Harshitk-cp/ranger/internal/buildconfig.version=v1.0.0 \
//	  -X github.com/Harshitk-cp/ranger/internal/buildconfig.commit=$(git rev-parse --short HEAD)"
package buildconfig

var (
	version = "dev"
	commit  = "unknown"
)

func Version() string {
	return version
}

func Commit() string {
	return commit
}

// String renders the version for logs and CLI output.
func String() string {
	return version + " (" + commit + ")"
}
