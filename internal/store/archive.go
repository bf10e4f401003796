package store

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Extract unpacks a gzipped tar archive of a previous run into dest,
// skipping files that already exist so extracted records never clobber
// ones the current run already wrote. Only regular files land; paths
// escaping dest are rejected.
func Extract(archivePath, dest string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}
	defer gz.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive entry: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		// archives may carry a single top-level directory; flatten it
		name := filepath.Base(filepath.Clean(hdr.Name))
		if name == "." || name == ".." || strings.HasPrefix(name, "/") {
			return fmt.Errorf("archive entry %q escapes destination", hdr.Name)
		}
		target := filepath.Join(dest, name)
		if _, err := os.Stat(target); err == nil {
			continue
		}
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return fmt.Errorf("extract %s: %w", name, err)
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return fmt.Errorf("extract %s: %w", name, err)
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("extract %s: %w", name, err)
		}
	}
}

// Archive packs the run directory's record files into a gzipped tar
// archive at dest. Only .yaml records are included.
func Archive(runPath, dest string) error {
	entries, err := os.ReadDir(runPath)
	if err != nil {
		return fmt.Errorf("read run directory: %w", err)
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("archive %s: %w", e.Name(), err)
		}
		hdr.Name = e.Name()
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("archive %s: %w", e.Name(), err)
		}
		data, err := os.ReadFile(filepath.Join(runPath, e.Name()))
		if err != nil {
			return fmt.Errorf("archive %s: %w", e.Name(), err)
		}
		if _, err := tw.Write(data); err != nil {
			return fmt.Errorf("archive %s: %w", e.Name(), err)
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return f.Close()
}
