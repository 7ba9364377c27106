package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const versionTimeout = 5 * time.Second

// Version runs binary with arg and returns the first non-empty output line,
// which is where ffmpeg and ffprobe print their version banner.
func Version(ctx context.Context, binary, arg string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	output, err := exec.CommandContext(ctx, binary, arg).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", binary, arg, err)
	}
	for _, line := range strings.Split(string(output), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}
	return "", fmt.Errorf("%s %s: empty output", binary, arg)
}
