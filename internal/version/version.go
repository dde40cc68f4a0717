// Package version reports which build of lsctl and the ls package is running.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Module is the import path of the ls package.
const Module = "github.com/digitalfortress-tech/localstorage-slim"

// Overridable with -ldflags "-X .../internal/version.Version=v1.2.3".
var (
	Version = ""
	Commit  = ""
	Date    = ""
)

// shortCommit is the number of revision characters printed.
const shortCommit = 12

// Info describes a build.
type Info struct {
	Module    string
	Version   string
	Commit    string
	Date      string
	Modified  bool
	GoVersion string
}

// Get merges the linker overrides with the module and VCS data embedded by
// the go command. Linker values win.
func Get() Info {
	info := Info{
		Module:    Module,
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		info = fromBuildInfo(info, bi)
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	return info
}

func fromBuildInfo(info Info, bi *debug.BuildInfo) Info {
	if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, setting := range bi.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = setting.Value
			}
		case "vcs.time":
			if info.Date == "" {
				info.Date = setting.Value
			}
		case "vcs.modified":
			info.Modified = setting.Value == "true"
		}
	}
	return info
}

// String renders the build as printed by lsctl --version.
func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "lsctl %s", i.Version)

	var details []string
	if i.Commit != "" {
		commit := i.Commit
		if len(commit) > shortCommit {
			commit = commit[:shortCommit]
		}
		if i.Modified {
			commit += "-dirty"
		}
		details = append(details, "commit "+commit)
	}
	if i.Date != "" {
		details = append(details, "built "+i.Date)
	}
	details = append(details, i.GoVersion)

	fmt.Fprintf(&b, " (%s)", strings.Join(details, ", "))
	return b.String()
}
