package sound

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
)

// CommandPlayer plays <Dir>/<category>.wav through a system audio command:
// afplay on macOS, paplay elsewhere.
type CommandPlayer struct {
	Dir string

	// Command overrides the detected player binary.
	Command string
}

// Play runs the audio command and waits for it to finish.
func (p CommandPlayer) Play(ctx context.Context, c Category, volume float64) error {
	path := filepath.Join(p.Dir, string(c)+".wav")
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("sound asset %s: %w", path, err)
	}

	name, args := p.command(path, Clamp(volume))
	bin, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("audio player %q: %w", name, err)
	}
	if err := exec.CommandContext(ctx, bin, args...).Run(); err != nil {
		return fmt.Errorf("playing %s: %w", path, err)
	}
	return nil
}

func (p CommandPlayer) command(path string, volume float64) (string, []string) {
	name := p.Command
	if name == "" {
		name = "paplay"
		if runtime.GOOS == "darwin" {
			name = "afplay"
		}
	}
	switch filepath.Base(name) {
	case "afplay":
		return name, []string{"-v", strconv.FormatFloat(volume, 'f', 2, 64), path}
	case "paplay":
		// paplay volume is linear in 0..65536.
		return name, []string{"--volume", strconv.Itoa(int(volume * 65536)), path}
	default:
		return name, []string{path}
	}
}
