package processor

import (
	"strings"
)

// Markers matched in command output.
const (
	PackageInstalledCount = "1"

	ServiceRunningMarker  = "active (running)"
	ServiceStoppedMarker  = "inactive (dead)"

	FileExistsMarker  = "file exists"
	FileMissingMarker = "file missing"
)

// PackageInstalled parses the output of a package query that prints the
// number of "ok installed" status lines. Only an exact "1" on the first
// non-blank line means installed.
func PackageInstalled(stdout []string) bool {
	lines := Normalize(stdout)
	return len(lines) > 0 && lines[0] == PackageInstalledCount
}

// ServiceState is the observed state of a service.
type ServiceState string

const (
	ServiceAbsent  ServiceState = "absent"
	ServiceRunning ServiceState = "running"
	ServiceStopped ServiceState = "stopped"
	ServiceError   ServiceState = "error"
)

// ServiceNotFoundMessage is what systemd writes to stderr when the unit
// for name does not exist.
func ServiceNotFoundMessage(name string) string {
	unit := name
	if !strings.HasSuffix(unit, ".service") {
		unit += ".service"
	}
	return "Unit " + unit + " could not be found"
}

// ServiceStatus classifies "service <name> status" output. The not-found
// message for this very unit is searched in stderr only and wins over
// everything else; the running and stopped markers are searched in stdout
// only, in that order. Journal lines echoed on stdout never mark a unit absent.
func ServiceStatus(name string, stdout, stderr []string) ServiceState {
	out := strings.Join(stdout, "\n")
	switch {
	case strings.Contains(strings.Join(stderr, "\n"), ServiceNotFoundMessage(name)):
		return ServiceAbsent
	case strings.Contains(out, ServiceRunningMarker):
		return ServiceRunning
	case strings.Contains(out, ServiceStoppedMarker):
		return ServiceStopped
	default:
		return ServiceError
	}
}

// FileProbe is the result of a remote existence test.
type FileProbe int

const (
	FileUnknown FileProbe = iota
	FileExists
	FileMissing
)

// FileExistence parses the first non-blank stdout line of the existence test.
func FileExistence(stdout []string) FileProbe {
	lines := Normalize(stdout)
	if len(lines) == 0 {
		return FileUnknown
	}
	switch lines[0] {
	case FileExistsMarker:
		return FileExists
	case FileMissingMarker:
		return FileMissing
	default:
		return FileUnknown
	}
}

// HasErrorOutput reports whether a command wrote anything but whitespace to stderr.
func HasErrorOutput(stderr []string) bool {
	return len(Normalize(stderr)) > 0
}
