// Command bsa-parser inspects and extracts Bethesda BSA (version 104)
// archives.
//
// Usage:
//
//	bsa-parser [flags] <archive.bsa>
//
// With no flags the decoded listing is written to stdout. --extract
// pulls a single file out of the archive by its full path.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	bsa "github.com/trutrix/bsa-parser"
)

func main() {
	var (
		list    = flag.Bool("list", false, "print the decoded folder/file listing (the default action)")
		extract = flag.String("extract", "", "full archive path of a file to extract, e.g. meshes\\x.nif")
		outDir  = flag.StringP("out", "o", ".", "directory extracted files are written to")
		verbose = flag.BoolP("verbose", "v", false, "enable debug logging")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger().
		Level(zerolog.InfoLevel)
	if *verbose {
		log = log.Level(zerolog.DebugLevel)
	}

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <archive.bsa>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
		os.Exit(2)
	}
	path := flag.Arg(0)

	a, err := bsa.Open(path)
	if err != nil {
		log.Error().Err(err).Str("archive", path).Msg("decode failed")
		os.Exit(1)
	}
	defer a.Close()

	hdr := a.Header()
	log.Debug().
		Uint32("version", hdr.Version).
		Uint32("flags", hdr.ArchiveFlags).
		Int("folders", a.FolderCount()).
		Int("files", a.FileCount()).
		Msg("archive decoded")

	if *extract != "" {
		if err := extractOne(a, *extract, *outDir, log); err != nil {
			log.Error().Err(err).Str("path", *extract).Msg("extract failed")
			os.Exit(1)
		}
		if !*list {
			return
		}
	}

	// Listing is the default action.
	if err := a.Dump(os.Stdout); err != nil {
		log.Error().Err(err).Msg("listing failed")
		os.Exit(1)
	}
}

// extractOne pulls a single file out of the archive and writes it,
// under its own base name, into dir.
func extractOne(a *bsa.Archive, path, dir string, log zerolog.Logger) error {
	data, err := a.ExtractPath(path)
	if err != nil {
		return err
	}

	base := path
	if i := strings.LastIndexAny(base, `\/`); i >= 0 {
		base = base[i+1:]
	}
	dst := filepath.Join(dir, base)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return err
	}

	log.Info().Str("path", path).Str("dst", dst).Int("bytes", len(data)).Msg("extracted")
	return nil
}
