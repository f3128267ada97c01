package version

import (
	"runtime/debug"
	"strings"
	"time"
)

const (
	defaultModule  = "pkt.systems/attackdeck"
	unknownVersion = "v0.0.0-unknown"
)

// buildVersion is set via -ldflags "-X pkt.systems/attackdeck/internal/version.buildVersion=...".
var buildVersion = ""

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// Info describes the running binary.
type Info struct {
	Module   string
	Version  string
	Revision string
	Time     time.Time
	Dirty    bool
}

// Read collects version information from ldflags and build info. An
// ldflags version wins over anything the toolchain recorded.
func Read() Info {
	bi, ok := readBuildInfo()
	if !ok {
		bi = nil
	}
	return fromBuildInfo(buildVersion, bi)
}

// Current returns the version without a dirty marker.
func Current() string {
	return Read().Version
}

// Module returns the main module path.
func Module() string {
	return Read().Module
}

// UserAgent identifies attackdeck on outbound connections.
func UserAgent() string {
	return "attackdeck/" + Current()
}

// String renders the version, marking dirty trees.
func (i Info) String() string {
	if i.Dirty {
		return i.Version + "+dirty"
	}
	return i.Version
}

func fromBuildInfo(ldflags string, bi *debug.BuildInfo) Info {
	info := Info{Module: defaultModule}
	if bi != nil {
		if path := strings.TrimSpace(bi.Main.Path); path != "" {
			info.Module = path
		}
		for _, setting := range bi.Settings {
			switch setting.Key {
			case "vcs.revision":
				info.Revision = setting.Value
			case "vcs.time":
				if parsed, err := time.Parse(time.RFC3339, setting.Value); err == nil {
					info.Time = parsed.UTC()
				}
			case "vcs.modified":
				info.Dirty = setting.Value == "true"
			}
		}
	}

	switch {
	case strings.TrimSpace(ldflags) != "":
		info.Version = strings.TrimSpace(ldflags)
	case bi != nil && bi.Main.Version != "" && bi.Main.Version != "(devel)":
		info.Version = bi.Main.Version
	case info.Revision != "" && !info.Time.IsZero():
		info.Version = pseudoVersion(info.Time, info.Revision)
	default:
		info.Version = unknownVersion
	}
	if strings.HasSuffix(info.Version, "+dirty") {
		info.Version = strings.TrimSuffix(info.Version, "+dirty")
		info.Dirty = true
	}
	return info
}

func pseudoVersion(at time.Time, revision string) string {
	if len(revision) > 12 {
		revision = revision[:12]
	}
	return "v0.0.0-" + at.UTC().Format("20060102150405") + "-" + revision
}
