// Command gotorrent downloads the single file described by a BitTorrent
// v1 metainfo file to a destination path.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"gotorrent/internal/download"
	"gotorrent/internal/obslog"
)

func main() {
	verbose := flag.Bool("v", false, "enable verbose informational logging")
	flag.Parse()
	args := flag.Args()

	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: gotorrent [-v] <metainfo-file> <destination>")
		os.Exit(1)
	}

	log, err := obslog.New(*verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gotorrent: building logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(args[0], args[1], log); err != nil {
		log.Error("download failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(inputPath, destPath string, log *zap.Logger) error {
	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("opening metainfo file: %w", err)
	}
	defer in.Close()

	result, err := download.File(context.Background(), in, log)
	if err != nil {
		return err
	}

	out, err := resolveDestination(destPath, result.Name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, result.Data, 0o644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	log.Info("download complete", zap.String("path", out), zap.Int("bytes", len(result.Data)))
	return nil
}

// resolveDestination treats dest as the output file path unless it
// already names an existing directory, in which case the torrent's
// declared name is appended.
func resolveDestination(dest, name string) (string, error) {
	info, err := os.Stat(dest)
	if err == nil && info.IsDir() {
		return filepath.Join(dest, name), nil
	}
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("checking destination: %w", err)
	}
	return dest, nil
}
