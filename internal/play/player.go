package play

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/audiolibrelab/micstream/internal/config"
)

type Player struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Player {
	return &Player{cfg: cfg}
}

// Play opens a saved recording in the first external player found on PATH.
func (p *Player) Play(name string) error {
	audioFile := p.cfg.RecordingPath(name)

	// Check if file exists
	if _, err := os.Stat(audioFile); err != nil {
		return fmt.Errorf("audio file not found: %s", audioFile)
	}

	fmt.Printf("Playing: %s\n", audioFile)

	player, err := p.findAudioPlayer()
	if err != nil {
		return fmt.Errorf("no suitable audio player found: %w", err)
	}

	cmd, err := p.command(player, audioFile)
	if err != nil {
		return err
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("playback failed with %s: %w", player, err)
	}

	fmt.Println("Playback completed")
	return nil
}

// command builds the player invocation. Raw recordings carry no header, so
// only players that accept an explicit sample format can open them.
func (p *Player) command(player, audioFile string) (*exec.Cmd, error) {
	raw := p.cfg.Output.Format == "raw"
	rate := strconv.Itoa(p.cfg.Device.SampleRate)

	switch player {
	case "vlc":
		if raw {
			return nil, fmt.Errorf("vlc cannot play headerless raw recordings")
		}
		return exec.Command("vlc", "--play-and-exit", audioFile), nil
	case "mpv":
		if raw {
			return nil, fmt.Errorf("mpv cannot play headerless raw recordings")
		}
		return exec.Command("mpv", "--no-video", audioFile), nil
	case "ffplay":
		if raw {
			return exec.Command("ffplay", "-nodisp", "-autoexit",
				"-f", p.ffmpegSampleFormat(), "-ar", rate, "-ac", "1", audioFile), nil
		}
		return exec.Command("ffplay", "-nodisp", "-autoexit", audioFile), nil
	case "aplay":
		if raw {
			return exec.Command("aplay", "-t", "raw", "-f", p.alsaSampleFormat(), "-r", rate, "-c", "1", audioFile), nil
		}
		return exec.Command("aplay", audioFile), nil
	default:
		return nil, fmt.Errorf("unsupported player: %s", player)
	}
}

func (p *Player) findAudioPlayer() (string, error) {
	// Headerless files need a player that takes the format on the command line
	players := []string{"vlc", "mpv", "ffplay", "aplay"}
	if p.cfg.Output.Format == "raw" {
		players = []string{"ffplay", "aplay"}
	}

	for _, player := range players {
		if _, err := exec.LookPath(player); err == nil {
			return player, nil
		}
	}

	return "", fmt.Errorf("no audio player found (tried: %s)", strings.Join(players, ", "))
}

func (p *Player) ffmpegSampleFormat() string {
	if p.cfg.Device.BitDepth == 32 {
		return "s32le"
	}
	return "s16le"
}

func (p *Player) alsaSampleFormat() string {
	if p.cfg.Device.BitDepth == 32 {
		return "S32_LE"
	}
	return "S16_LE"
}
