package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// fileStamp identifies one version of a file on disk.
type fileStamp struct {
	modTime time.Time
	size    int64
}

func stampOf(path string) (fileStamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, err
	}
	return fileStamp{modTime: info.ModTime(), size: info.Size()}, nil
}

func (s fileStamp) same(o fileStamp) bool {
	return s.size == o.size && s.modTime.Equal(o.modTime)
}

type facilitiesWatcher struct {
	path     string
	logger   *zerolog.Logger
	onUpdate func(*FacilitiesConfig)
	seen     fileStamp
}

// check reloads the file when its stamp moved. A version that fails to
// load is remembered so it is reported once; the last good config stays.
func (w *facilitiesWatcher) check() {
	stamp, err := stampOf(w.path)
	if err != nil || stamp.same(w.seen) {
		return
	}
	w.seen = stamp

	cfg, err := LoadFacilitiesConfig(w.path)
	if err != nil {
		w.logger.Warn().Err(err).Str("path", w.path).Msg("Facilities config rejected, keeping previous")
		return
	}
	w.logger.Info().Str("config", cfg.String()).Msg("Facilities config reloaded")
	w.onUpdate(cfg)
}

// WatchFacilities loads facilities.yaml, hands it to onUpdate, then polls
// the file every interval until ctx ends. Only the first load can fail.
func WatchFacilities(ctx context.Context, path string, interval time.Duration, logger *zerolog.Logger, onUpdate func(*FacilitiesConfig)) error {
	if path == "" {
		path = "configs/facilities.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if onUpdate == nil {
		onUpdate = func(*FacilitiesConfig) {}
	}

	stamp, err := stampOf(path)
	if err != nil {
		return fmt.Errorf("stat facilities config: %w", err)
	}
	cfg, err := LoadFacilitiesConfig(path)
	if err != nil {
		return err
	}
	onUpdate(cfg)

	w := &facilitiesWatcher{path: path, logger: logger, onUpdate: onUpdate, seen: stamp}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.check()
			}
		}
	}()
	return nil
}
