// Package deps verifies the external tools waveline shells out to.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"waveline/internal/config"
)

// Requirement defines an external binary a waveline process relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
}

// Status reports the availability of a requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Available   bool
	Detail      string
}

// IngestRequirements returns the tools the ingest server needs.
func IngestRequirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "ffprobe",
			Command:     cfg.Transcode.FFprobeBinary,
			Description: "Inspects upload codecs during admission",
		},
	}
}

// WorkerRequirements returns the tools the transcode worker needs.
func WorkerRequirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "ffmpeg",
			Command:     cfg.Transcode.FFmpegBinary,
			Description: "Produces derived mp3 and wav variants",
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
// Commands found on PATH have their resolved location recorded.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Command = resolved
		status.Available = true
		results = append(results, status)
	}
	return results
}

// Verify runs the checks and fails if any requirement is unavailable.
func Verify(requirements []Requirement) error {
	var missing []string
	for _, status := range CheckBinaries(requirements) {
		if !status.Available {
			missing = append(missing, fmt.Sprintf("%s (%s)", status.Name, status.Detail))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required tools: %s", strings.Join(missing, ", "))
	}
	return nil
}
