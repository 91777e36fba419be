// Package receipt reads the transferred amount from a photographed deposit
// slip or transfer screenshot.
package receipt

import (
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
	"github.com/sirupsen/logrus"
)

const (
	currencyWhitelist = "0123456789RpIDRidrTOTALtotalJUMLAHjumlahNOMINALnominal.,:()/- "
	digitWhitelist    = "0123456789., "
)

// Reader runs tesseract over a receipt image. It is safe for concurrent use;
// every call creates its own tesseract clients.
type Reader struct {
	Language string
	Log      logrus.FieldLogger
}

// NewReader returns a Reader for the "eng" traineddata.
func NewReader(log logrus.FieldLogger) *Reader {
	return &Reader{Language: "eng", Log: log}
}

// ReadAmount extracts the most likely rupiah amount from the image at path.
// Confidence is in [0, 1]; ErrNoAmount means the text held no amount at all.
func (r *Reader) ReadAmount(path string) (int64, float64, error) {
	texts, err := r.passes(path)
	if err != nil {
		return 0, 0, err
	}
	all := strings.Join(texts, "\n")
	amt, conf, err := ExtractAmount(all)
	if r.Log != nil {
		r.Log.WithFields(logrus.Fields{
			"path":       path,
			"passes":     len(texts),
			"amount":     amt,
			"confidence": conf,
		}).Debug("receipt read")
	}
	return amt, conf, err
}

// passes runs a labelled pass over the cleaned image, a digits-only pass and a
// pass over the untouched original.
func (r *Reader) passes(path string) ([]string, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("open receipt image: %w", err)
	}
	clean := preprocess(img)

	tmp, err := os.CreateTemp("", "receipt-*.png")
	if err != nil {
		return nil, fmt.Errorf("create temp image: %w", err)
	}
	tmpName := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpName)
	if err := imaging.Save(clean, tmpName); err != nil {
		return nil, fmt.Errorf("save preprocessed image: %w", err)
	}

	var out []string
	for _, p := range []struct {
		image     string
		whitelist string
		mode      gosseract.PageSegMode
	}{
		{tmpName, currencyWhitelist, gosseract.PSM_AUTO},
		{tmpName, digitWhitelist, gosseract.PSM_SPARSE_TEXT},
		{path, "", gosseract.PSM_AUTO},
	} {
		text, err := r.ocr(p.image, p.whitelist, p.mode)
		if err != nil {
			if r.Log != nil {
				r.Log.WithError(err).WithField("path", path).Warn("ocr pass failed")
			}
			continue
		}
		out = append(out, text)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("every ocr pass failed for %s", path)
	}
	return out, nil
}

func (r *Reader) ocr(file, whitelist string, mode gosseract.PageSegMode) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(r.Language); err != nil {
		return "", err
	}
	if whitelist != "" {
		if err := client.SetWhitelist(whitelist); err != nil {
			return "", err
		}
	}
	if err := client.SetPageSegMode(mode); err != nil {
		return "", err
	}
	if err := client.SetImage(file); err != nil {
		return "", err
	}
	return client.Text()
}

// preprocess grays, sharpens and upsamples small captures so tesseract sees
// glyphs at a usable size.
func preprocess(img image.Image) image.Image {
	gray := imaging.Grayscale(img)
	gray = imaging.AdjustContrast(gray, 15)
	gray = imaging.Sharpen(gray, 0.7)
	if gray.Bounds().Dy() < 900 {
		gray = imaging.Resize(gray, 0, 1300, imaging.Lanczos)
	}
	return gray
}
