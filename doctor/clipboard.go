package doctor

import (
	"fmt"
	"time"

	"candlecard/greeting"

	"github.com/atotto/clipboard"
)

func checkClipboard(g greeting.Card) bool {
	fmt.Println()
	fmt.Println("[3/3] Copying the wishes")

	if clipboard.Unsupported {
		fmt.Println("  FAIL: no clipboard tool found (install xclip, xsel or wl-clipboard)")
		return false
	}

	text := g.WishText()
	type cbResult struct {
		readback string
		err      error
		phase    string
	}
	ch := make(chan cbResult, 1)
	go func() {
		if err := clipboard.WriteAll(text); err != nil {
			ch <- cbResult{err: err, phase: "write"}
			return
		}
		got, err := clipboard.ReadAll()
		if err != nil {
			ch <- cbResult{err: err, phase: "read"}
			return
		}
		ch <- cbResult{readback: got}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			fmt.Printf("  FAIL: clipboard %s failed: %v\n", res.phase, res.err)
			return false
		}
		if res.readback != text {
			fmt.Printf("  FAIL: clipboard mismatch: wrote %d bytes, read back %d\n", len(text), len(res.readback))
			return false
		}
		fmt.Println("  PASS: wishes copied and read back")
		return true
	case <-time.After(3 * time.Second):
		fmt.Println("  FAIL: clipboard timed out (clipboard tool hung - compositor not accessible?)")
		return false
	}
}
