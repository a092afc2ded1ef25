package extract

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"wharf/internal/logging"
	"wharf/internal/services"
)

// Result reports what an extraction produced.
type Result struct {
	Files []string
	Bytes int64
}

// Extractor unpacks archive payloads after transfer.
type Extractor struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logging.NewComponentLogger(logger, "extract")}
}

// IsArchive reports whether the filename names a payload the extractor
// can unpack. The host packages multi-file uploads as zip.
func IsArchive(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".zip")
}

// Extract unpacks archive into dest, preserving entry paths. It returns
// the written file paths so the caller can surface or clean them up.
// The archive itself is left in place.
func (e *Extractor) Extract(ctx context.Context, archive, dest string) (*Result, error) {
	logger := logging.WithContext(ctx, e.logger)

	reader, err := zip.OpenReader(archive)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, services.StageExtract, "open archive", "archive is not a readable zip", err)
	}
	defer reader.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, services.StageExtract, "prepare destination", "create destination dir", err)
	}

	result := &Result{}
	for _, entry := range reader.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		target, err := entryPath(dest, entry.Name)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, services.StageExtract, "unpack", fmt.Sprintf("archive entry %q escapes destination", entry.Name), nil)
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, services.Wrap(services.ErrTransient, services.StageExtract, "unpack", "create entry dir", err)
			}
			continue
		}
		written, err := writeEntry(entry, target)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, services.StageExtract, "unpack", fmt.Sprintf("write entry %q", entry.Name), err)
		}
		result.Files = append(result.Files, target)
		result.Bytes += written
	}
	if len(result.Files) == 0 {
		return nil, services.Wrap(services.ErrValidation, services.StageExtract, "unpack", "archive contained no files", nil)
	}

	logger.Info("archive extracted",
		logging.String("archive", filepath.Base(archive)),
		logging.Int("files", len(result.Files)),
		logging.Int64("bytes", result.Bytes))
	return result, nil
}

func writeEntry(entry *zip.File, target string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}
	in, err := entry.Open()
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	written, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return written, err
	}
	return written, out.Close()
}

// entryPath joins an archive entry name onto dest, refusing names that
// would land outside it.
func entryPath(dest, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || clean == ".." || filepath.IsAbs(clean) || strings.HasPrefix(clean, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("unsafe entry name %q", name)
	}
	return filepath.Join(dest, clean), nil
}
