package hostfs

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/t7a/pitdelta/host"
)

// Watch calls onChange each time the manifest in h is replaced, until
// ctx is done.  Clients on a file share use it to notice new releases
// without polling.
func (h *Host) Watch(ctx context.Context, onChange func()) (err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return
	}
	defer w.Close()
	err = w.Add(h.Dir)
	if err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !host.IsManifestPath(filepath.Base(ev.Name)) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			log.WithField("event", ev.String()).Debug("manifest changed")
			onChange()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
