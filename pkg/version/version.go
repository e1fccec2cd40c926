// Package version reports the chatsearch build: its own version and the
// versions of the index and transport libraries linked into it.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"slices"
	"strings"
)

// Version is set via ldflags at build time:
// -X github.com/Aman-CERP/chatsearch/pkg/version.Version=$(VERSION)
var Version = "dev"

// Commit and Date are set via ldflags. When left unset they are read from
// the VCS stamp of the build.
var (
	Commit = "unknown"
	Date   = "unknown"
)

// linkedModules are reported by version --json. On-disk index formats and
// Bot API behaviour follow these versions.
var linkedModules = []string{
	"github.com/blevesearch/bleve/v2",
	"modernc.org/sqlite",
	"github.com/go-telegram-bot-api/telegram-bot-api/v5",
	"github.com/modelcontextprotocol/go-sdk",
}

// Info describes one build.
type Info struct {
	Version   string            `json:"version"`
	Commit    string            `json:"commit"`
	Date      string            `json:"date"`
	GoVersion string            `json:"go_version"`
	Platform  string            `json:"platform"`
	Modules   map[string]string `json:"modules,omitempty"`
}

// Get returns the build information of the running binary.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	fillFromBuildInfo(&info, bi)
	return info
}

func fillFromBuildInfo(info *Info, bi *debug.BuildInfo) {
	dirty, stamped := false, false
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" {
				info.Commit = shortRevision(s.Value)
				stamped = true
			}
		case "vcs.time":
			if info.Date == "unknown" {
				info.Date = s.Value
			}
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if dirty && stamped {
		info.Commit += "-dirty"
	}

	for _, dep := range bi.Deps {
		if !slices.Contains(linkedModules, dep.Path) {
			continue
		}
		v := dep.Version
		if dep.Replace != nil {
			v = dep.Replace.Version
		}
		if info.Modules == nil {
			info.Modules = make(map[string]string, len(linkedModules))
		}
		info.Modules[dep.Path] = v
	}
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// String formats the build on one line, followed by one line per linked
// module when any are known.
func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "chatsearch %s (commit: %s, built: %s, go: %s, %s)",
		i.Version, i.Commit, i.Date, i.GoVersion, i.Platform)

	for _, path := range linkedModules {
		if v, ok := i.Modules[path]; ok {
			fmt.Fprintf(&b, "\n  %s %s", path, v)
		}
	}
	return b.String()
}
