package browser

import (
	"time"

	"github.com/go-rod/rod"
)

const maxFrameDepth = 4

// waitFramesStable waits for DOM stability on the page and then on each
// visible iframe, recursively. Frames that cannot be entered are skipped.
func waitFramesStable(page *rod.Page, d time.Duration, depth int) error {
	if err := page.WaitDOMStable(d, 0); err != nil {
		return err
	}
	if depth >= maxFrameDepth {
		return nil
	}

	iframes, err := page.Elements("iframe")
	if err != nil {
		return nil
	}

	for _, iframe := range iframes {
		if visible, _ := iframe.Visible(); !visible {
			continue
		}

		frame, err := iframe.Frame()
		if err != nil {
			continue
		}

		if err := waitFramesStable(frame, d, depth+1); err != nil {
			return err
		}
	}

	return nil
}
