package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"candlecard/audio"
	"candlecard/blow"
	"candlecard/cue"
	"candlecard/greeting"
	"candlecard/log"
)

const testWaitTimeout = 10 * time.Second

// testSink turns blow-outs into a channel the stdin driver can wait on.
type testSink struct {
	nopSink
	blown chan struct{}
}

func (s *testSink) BlownOut() {
	select {
	case s.blown <- struct{}{}:
	default:
	}
}

func runTestMode(path string, g greeting.Card) {
	fakeCtx, err := audio.NewFakeContext(path, audio.FakeOptions{Realtime: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading audio: %v\n", err)
		os.Exit(1)
	}

	log.SessionStart(g.Name, "fake", g.Threshold, g.ConfirmDelay)

	events := &testSink{blown: make(chan struct{}, 1)}
	c := buildCard(g, blow.NewMicSource(fakeCtx, nil, log.Logger("mic")), cue.MuteBackend{}, events)

	quit := func(code int) {
		c.Close()
		log.SessionEnd(c.Celebrations())
		log.Close()
		os.Exit(code)
	}

	// Stdin driver -- OPEN/WAIT_BLOWN/RESET/SLEEP/QUIT
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		switch cmd {
		case "OPEN":
			if err := c.Open(context.Background()); err != nil {
				log.Errorf("open card: %v", err)
			}
		case "WAIT_BLOWN":
			select {
			case <-events.blown:
			case <-time.After(testWaitTimeout):
				log.Error("wait_blown_timeout")
				fmt.Fprintln(os.Stderr, "timed out waiting for the candles to go out")
				quit(1)
			}
		case "RESET":
			c.Reset()
		case "QUIT":
			quit(0)
		default:
			if strings.HasPrefix(cmd, "SLEEP ") {
				if ms, err := strconv.Atoi(cmd[6:]); err == nil {
					time.Sleep(time.Duration(ms) * time.Millisecond)
				}
			}
		}
	}
	quit(0)
}
