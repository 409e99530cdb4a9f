package segment

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// CommandRunner abstracts process execution so ffmpeg exports can be
// tested without the binary.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands via os/exec and returns combined output.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

var ffmpegCodecs = map[string]string{
	"opus": "libopus",
	"mp3":  "libmp3lame",
}

// ffmpegArgs builds a single-span lossy export:
// ffmpeg -hide_banner -nostdin -y -ss <start> -t <length> -i <src>
//
//	-vn -ac 1 -c:a <codec> -b:a <bitrate>k <out>
func ffmpegArgs(src string, start, length time.Duration, codec string, bitRateKbps int, out string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(length),
		"-i", src,
		"-vn",
		"-ac", "1",
		"-c:a", ffmpegCodecs[codec],
		"-b:a", strconv.Itoa(bitRateKbps) + "k",
		out,
	}
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
