// Package version reports the module version recorded in the build info of
// binaries that embed this module.
package version

import (
	"runtime/debug"
	"strings"
)

// modulePath is the path downstream users import this module as.
const modulePath = "github.com/carbide-cc/regalloc"

// Default is the version reported when the build info carries none, such as
// during go test or a build of a plain working copy.
const Default = "dev"

// version caches the build info lookup. The CLI build may also set it at link
// time with -ldflags "-X".
var version string

// GetVersion returns the version of this module recorded in the embedding
// binary's build info, either as the main module or as a dependency.
func GetVersion() (ret string) {
	if len(version) != 0 {
		return version
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Path == modulePath {
			ret = info.Main.Version
		}
		for _, dep := range info.Deps {
			if strings.Contains(dep.Path, modulePath) {
				ret = dep.Version
			}
		}
	}

	if versionMissing(ret) {
		return Default
	}

	// Cache for the subsequent calls.
	version = ret
	return ret
}

func versionMissing(ret string) bool {
	return ret == "" || ret == "(devel)" // pkg.go.dev
}
