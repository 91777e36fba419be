// Package receiptwatch attaches receipt images dropped into an inbox
// directory. A file must be named after its transaction id, e.g.
// 3f1c...-....png.
package receiptwatch

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tabungan/models"
)

// Attacher stores a receipt on a pending transaction.
type Attacher interface {
	AttachReceipt(ctx context.Context, id, path string) (*models.Transaksi, error)
}

// Watcher moves inbox files into ProcessedDir and attaches them. Files that
// cannot be attached end up in FailedDir.
type Watcher struct {
	Dir          string
	ProcessedDir string
	FailedDir    string
	Attacher     Attacher
	Log          logrus.FieldLogger
	Settle       time.Duration // quiet period before a new file is picked up
	Workers      int
	MaxBytes     int64 // larger images are downscaled when moved
}

// minSettle is the shortest debounce Run will use.
const minSettle = 10 * time.Millisecond

// New returns a Watcher with processed/ and failed/ next to dir.
func New(dir string, a Attacher, log logrus.FieldLogger) *Watcher {
	parent := filepath.Dir(filepath.Clean(dir))
	return &Watcher{
		Dir:          dir,
		ProcessedDir: filepath.Join(parent, "processed"),
		FailedDir:    filepath.Join(parent, "failed"),
		Attacher:     a,
		Log:          log,
		Settle:       300 * time.Millisecond,
		Workers:      2,
		MaxBytes:     1_000_000,
	}
}

// Run handles files already in the inbox, then watches for new ones until ctx
// is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	for _, d := range []string{w.Dir, w.ProcessedDir, w.FailedDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.Dir); err != nil {
		return err
	}
	w.Log.WithField("dir", w.Dir).Info("watching receipt inbox")

	fileCh := make(chan string, 256)
	var wg sync.WaitGroup
	for i := 0; i < max(w.Workers, 1); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range fileCh {
				if err := w.ProcessFile(ctx, name); err != nil {
					w.Log.WithError(err).WithField("file", name).Warn("receipt not attached")
				}
			}
		}()
	}
	defer wg.Wait()
	defer close(fileCh)

	initial, err := w.listInbox()
	if err != nil {
		return err
	}
	for _, name := range initial {
		fileCh <- name
	}

	// debounce: a file is handed over once no event touched it for Settle
	settle := max(w.Settle, minSettle)
	pending := map[string]time.Time{}
	ticker := time.NewTicker(settle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				name := filepath.Base(ev.Name)
				if isSupportedExt(name) {
					pending[name] = time.Now()
				}
			}
		case <-ticker.C:
			now := time.Now()
			for name, t := range pending {
				if now.Sub(t) > settle {
					fileCh <- name
					delete(pending, name)
				}
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.Log.WithError(err).Warn("watch error")
		}
	}
}

// ProcessFile attaches one inbox file.
func (w *Watcher) ProcessFile(ctx context.Context, name string) error {
	src := filepath.Join(w.Dir, name)
	id := strings.TrimSuffix(name, filepath.Ext(name))
	if _, err := uuid.Parse(id); err != nil {
		w.moveAside(src, name)
		return fmt.Errorf("file name %q is not a transaction id", name)
	}
	if _, err := os.Stat(src); err != nil {
		return err
	}

	dst := filepath.Join(w.ProcessedDir, name)
	if err := moveShrinking(src, dst, w.MaxBytes); err != nil {
		return fmt.Errorf("move %s: %w", name, err)
	}
	t, err := w.Attacher.AttachReceipt(ctx, id, dst)
	if err != nil {
		w.moveAside(dst, name)
		return err
	}
	entry := w.Log.WithFields(logrus.Fields{"transaction_id": id, "file": name})
	if t.ReceiptMismatch {
		entry.Warn("receipt attached, amount differs from nominal")
	} else {
		entry.Info("receipt attached")
	}
	return nil
}

func (w *Watcher) moveAside(path, name string) {
	if err := moveFile(path, filepath.Join(w.FailedDir, name)); err != nil {
		w.Log.WithError(err).WithField("file", name).Error("could not move file to failed dir")
	}
}

func (w *Watcher) listInbox() ([]string, error) {
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && isSupportedExt(e.Name()) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func isSupportedExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

// moveShrinking moves src to dst, downscaling images above maxBytes.
func moveShrinking(src, dst string, maxBytes int64) error {
	fi, err := os.Stat(src)
	if err != nil {
		return err
	}
	if maxBytes <= 0 || fi.Size() <= maxBytes {
		return moveFile(src, dst)
	}
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return moveFile(src, dst)
	}
	// encoded size roughly follows pixel area
	scale := math.Sqrt(float64(maxBytes) / float64(fi.Size()))
	scale = math.Max(scale, 0.1)
	img = imaging.Resize(img, int(math.Max(1, math.Round(float64(img.Bounds().Dx())*scale))), 0, imaging.Lanczos)
	if err := imaging.Save(img, dst); err != nil {
		return moveFile(src, dst)
	}
	return os.Remove(src)
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
