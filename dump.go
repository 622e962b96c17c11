package bsa

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes a deterministic, line-oriented listing of the decoded
// model: a header summary, then every folder in ascending hash order
// with its files in wire order. Decoded names are appended when the
// archive carried them and compressed files are marked with "z". The
// output is stable for a given archive, which makes it suitable both
// for human inspection and for line-wise comparison between archives.
func (a *Archive) Dump(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "bsa version=%d flags=%#010x folders=%d files=%d\n",
		a.hdr.Version, a.hdr.ArchiveFlags, a.FolderCount(), a.FileCount()); err != nil {
		return err
	}

	for _, fh := range a.FolderHashes() {
		folder, _ := a.folders.get(fh)
		line := fmt.Sprintf("folder %v count=%d offset=%d", fh, folder.Count, folder.Offset)
		if name, ok := a.folderNames[fh]; ok {
			line += " name=" + name
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}

		for _, h := range a.FolderFiles(fh) {
			f, _ := a.files.get(h)
			line := fmt.Sprintf("  file %v size=%d offset=%d", h, f.Size, f.Offset)
			if f.Compressed {
				line += " z"
			}
			if name, ok := a.names[h]; ok {
				line += " name=" + name
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	return nil
}

// listing renders Dump into a string. Dump only fails on writer
// errors, which a strings.Builder never produces.
func (a *Archive) listing() string {
	var sb strings.Builder
	_ = a.Dump(&sb)
	return sb.String()
}
