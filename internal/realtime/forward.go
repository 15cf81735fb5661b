package realtime

import (
	"context"

	"github.com/shelfarr/shelfbrowse/internal/catalog"
)

// ForwardSnapshots broadcasts every snapshot received on ch, rendered by render,
// until ctx is done or ch is closed.
func ForwardSnapshots(ctx context.Context, hub *Hub, ch <-chan catalog.Snapshot, render func(catalog.Snapshot) interface{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			hub.Broadcast(Event{Type: EventCatalogSnapshot, Seq: snap.Seq, Data: render(snap)})
		}
	}
}
