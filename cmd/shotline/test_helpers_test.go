package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shotline/internal/config"
	"shotline/internal/testsupport"
)

const probeScript = `cat <<'JSON'
{"streams":[{"index":0,"codec_type":"video","codec_name":"h264","width":640,"height":480,"r_frame_rate":"30/1"}],
 "format":{"duration":"2.0","size":"1000"}}
JSON
`

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

// setupCLITestEnv writes a config file whose directories live in a temp dir
// and whose ffmpeg stub copies prepared frames into the output directory.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))

	framesDir := filepath.Join(base, "fixtures")
	testsupport.WriteCheckerboard(t, filepath.Join(framesDir, "a.png"), 64, 4)
	testsupport.WriteCheckerboard(t, filepath.Join(framesDir, "b.png"), 64, 8)
	testsupport.WriteSolid(t, filepath.Join(framesDir, "c.png"), 64, 128)
	testsupport.WriteCheckerboard(t, filepath.Join(framesDir, "d.png"), 64, 2)

	ffmpeg := fmt.Sprintf(`if [ "$1" = "-version" ]; then echo "ffmpeg version test"; exit 0; fi
for last; do :; done
dir=$(dirname "$last")
ext="${last##*.}"
i=1
for f in %s/*.png; do cp "$f" "$dir/frame_0000$i.$ext"; i=$((i+1)); done
echo progress=end
`, framesDir)

	cfg := testsupport.NewConfig(t,
		testsupport.WithScript("ffprobe", probeScript),
		testsupport.WithScript("ffmpeg", ffmpeg),
	)
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
work_dir = %q
state_dir = %q
log_dir = %q

[logging]
job_logs = true

[extraction]
ffmpeg_binary = %q
ffprobe_binary = %q
`,
		cfg.Paths.WorkDir,
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.Extraction.FFmpegBinary,
		cfg.Extraction.FFprobeBinary,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
