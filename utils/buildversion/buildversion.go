package buildversion

import "runtime/debug"

// GetVersion resolves the version of the given module from the binary's
// embedded build info, falling back to the VCS revision for source builds.
func GetVersion(modulePath string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "v0.0.0-dev"
	}

	if info.Main.Path == modulePath &&
		info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	for _, dep := range info.Deps {
		if dep.Path == modulePath {
			return dep.Version
		}
	}

	var revision string
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			revision = setting.Value
		}
	}
	if revision != "" {
		if len(revision) > 12 {
			revision = revision[:12]
		}
		return "v0.0.0-" + revision
	}

	return "v0.0.0-dev"
}
