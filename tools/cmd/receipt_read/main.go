package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"tabungan/pkg/receipt"
)

// Prints what the receipt reader sees in an image, for tuning OCR.
func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: go run ./tools/cmd/receipt_read <image> [more images...]")
		os.Exit(2)
	}
	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)
	r := receipt.NewReader(log)
	for _, p := range os.Args[1:] {
		amt, conf, err := r.ReadAmount(p)
		switch {
		case errors.Is(err, receipt.ErrNoAmount):
			fmt.Printf("%s: no amount\n", p)
		case err != nil:
			fmt.Printf("%s: error %v\n", p, err)
		default:
			fmt.Printf("%s: amount=%d confidence=%.2f\n", p, amt, conf)
		}
	}
}
