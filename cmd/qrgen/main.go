// qrgen renders QR code PNGs for ticket codes, one file per code, in the
// payload format the scan endpoint accepts. Used when provisioning printed
// tickets for an event.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

func main() {
	eventID := flag.String("event", "", "event id the codes belong to")
	outDir := flag.String("out", "qrcodes", "output directory for PNG files")
	size := flag.Int("size", 256, "image size in pixels")
	flag.Parse()

	if *eventID == "" || flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: qrgen -event <eventID> [-out dir] [-size px] code [code ...]")
		os.Exit(2)
	}

	eventDir := filepath.Join(*outDir, *eventID)
	if err := os.MkdirAll(eventDir, 0755); err != nil {
		log.Fatalf("create output directory: %v", err)
	}

	for _, code := range flag.Args() {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		target := filepath.Join(eventDir, code+".png")
		if err := qrcode.WriteFile(code, qrcode.Medium, *size, target); err != nil {
			log.Fatalf("write %s: %v", target, err)
		}
		fmt.Printf("%s -> %s\n", code, target)
	}
}
