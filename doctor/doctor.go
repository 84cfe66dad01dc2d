package doctor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"candlecard/analyser"
	"candlecard/audio"
	"candlecard/blow"
	"candlecard/cue"
	"candlecard/greeting"
)

const listenFor = 3 * time.Second

type Options struct {
	Card   greeting.Card
	Device string // capture device name, empty to pick interactively
}

// Run executes interactive diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(opts Options) int {
	tty := saveTerminal()
	defer tty.exitOnInterrupt()()

	fmt.Println("candlecard doctor - interactive system diagnostics")
	fmt.Println("==================================================")

	allPass := true

	if !checkMicrophone(opts, tty) {
		allPass = false
	}
	if !checkSpeaker(opts.Card, tty) {
		allPass = false
	}
	if !checkClipboard(opts.Card) {
		allPass = false
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func checkMicrophone(opts Options, tty *terminal) bool {
	fmt.Println()
	fmt.Println("[1/3] Microphone and blow detection")

	actx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("  FAIL: cannot connect to audio: %v\n", err)
		return false
	}
	defer actx.Close()

	var device *audio.DeviceInfo
	if opts.Device != "" {
		device, err = audio.FindDevice(actx, opts.Device)
	} else {
		device, err = audio.SelectDevice(actx)
		tty.restore()
	}
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	if device != nil {
		fmt.Printf("Using device: %s\n", device.Name)
	}

	fmt.Println()
	fmt.Printf("Press Enter and blow into the microphone for %d seconds...", int(listenFor.Seconds()))
	bufio.NewReader(os.Stdin).ReadString('\n')

	peak, frames, err := listen(actx, device)
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	if frames == 0 {
		fmt.Println("  FAIL: no audio captured")
		return false
	}

	fmt.Printf("  Peak level %.1f over %d frames (threshold %.1f)\n", peak, frames, opts.Card.Threshold)
	if peak <= opts.Card.Threshold {
		fmt.Println("  FAIL: never louder than the threshold; blow harder or lower -threshold")
		return false
	}
	fmt.Println("  PASS: blowing is loud enough to put the candles out")
	return true
}

// listen samples the analyser mean for listenFor and returns the loudest frame.
func listen(actx audio.Context, device *audio.DeviceInfo) (peak float64, frames int, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), listenFor)
	defer cancel()

	mic := blow.NewMicSource(actx, device, nil)
	bins, err := mic.Start(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer mic.Stop()

	fmt.Print("  Listening")
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Println(" done")
			return peak, frames, nil
		case <-ticker.C:
			fmt.Print(".")
		case b, ok := <-bins:
			if !ok {
				fmt.Println(" stream ended")
				return peak, frames, nil
			}
			frames++
			peak = max(peak, analyser.Mean(b))
		}
	}
}

func checkSpeaker(g greeting.Card, tty *terminal) bool {
	fmt.Println()
	fmt.Println("[2/3] Speaker and celebration music")

	if g.Music == "" {
		fmt.Println("  SKIP: the card has no music")
		return true
	}

	reported := make(chan error, 1)
	backend := cue.NewSpeakerBackend(nil)
	defer backend.Close()
	player := cue.NewPlayer(backend, cue.Options{
		Report: func(_ string, _ time.Duration, _ float64, err error) {
			select {
			case reported <- err:
			default:
			}
		},
	})
	defer player.Close()

	player.Unlock()
	fmt.Printf("  Playing %s from %s...\n", g.Music, g.MusicOffset)
	player.Play(g.Music, g.MusicOffset, g.MusicVolume)

	select {
	case err := <-reported:
		if err != nil {
			fmt.Printf("  FAIL: %v\n", err)
			return false
		}
	case <-time.After(2*cue.DefaultLoadTimeout + time.Second):
		fmt.Println("  FAIL: music never started")
		return false
	}
	time.Sleep(listenFor)
	player.Stop()

	tty.restore()
	confirmReader := bufio.NewReader(os.Stdin)
	fmt.Print("Did you hear the music? [y/n]: ")
	confirm, _ := confirmReader.ReadString('\n')
	confirm = strings.TrimSpace(strings.ToLower(confirm))

	if confirm == "y" || confirm == "yes" {
		fmt.Println("  PASS: music verified by user")
		return true
	}
	fmt.Println("  FAIL: music not confirmed")
	return false
}
