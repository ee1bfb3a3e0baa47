package bridge

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"shellbridge/pkg/bus"
	"shellbridge/pkg/frame"
)

type BroadcastResult struct {
	Delivered int `json:"delivered"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// BroadcastToAll posts payload to every attached frame that has navigated
// somewhere. Each frame is targeted at its own src. A failing frame is logged
// and counted; the remaining frames still receive the payload.
func (b *Broker) BroadcastToAll(ctx context.Context, payload any) BroadcastResult {
	var result BroadcastResult
	if b.frames == nil {
		return result
	}

	for _, f := range b.frames.Frames() {
		if f == nil || f.Window == nil || strings.TrimSpace(f.Src) == "" || f.Src == frame.BlankSrc {
			result.Skipped++
			continue
		}

		if err := postSafely(f, payload); err != nil {
			result.Failed++
			b.log.Error("broadcast postMessage failed", "frame_id", f.ID, "src", f.Src, "error", err)
			continue
		}
		result.Delivered++
	}

	b.stats.broadcasts.Add(1)
	b.publish(ctx, bus.Event{
		Type: bus.EventBroadcast,
		Payload: map[string]string{
			"delivered": strconv.Itoa(result.Delivered),
			"skipped":   strconv.Itoa(result.Skipped),
			"failed":    strconv.Itoa(result.Failed),
		},
	})
	b.log.Debug("broadcast finished", "delivered", result.Delivered, "skipped", result.Skipped, "failed", result.Failed)
	return result
}

func postSafely(f *frame.Frame, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("post to frame panicked: %v", r)
		}
	}()
	return f.Window.PostMessage(payload, f.Src)
}
