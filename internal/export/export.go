// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/copilot-engine/internal/model"
	"github.com/jeranaias/copilot-engine/internal/util"
)

// ErrUnknownFormat is returned by ForFormat.
var ErrUnknownFormat = errors.New("unknown export format")

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter converts a conversation to one file format.
type Exporter interface {
	// Export converts a conversation to the target format.
	Export(conv *model.Conversation) ([]byte, error)

	// FileExtension returns the file extension, including the dot.
	FileExtension() string

	// MimeType returns the MIME type of the output.
	MimeType() string
}

// Options configures export behaviour.
type Options struct {
	// IncludeMetadata adds a metadata header (surface, dates, turn count).
	IncludeMetadata bool

	// Theme for HTML export ("light" or "dark").
	Theme string
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		IncludeMetadata: true,
		Theme:           "dark",
	}
}

// ForFormat returns the exporter for a format name: md/markdown, json or
// html.
func ForFormat(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "md", "markdown":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(), nil
	case "html", "htm":
		return NewHTMLExporter(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q (want markdown, json or html)", ErrUnknownFormat, format)
	}
}

// =============================================================================
// FILE OUTPUT
// =============================================================================

// ToFile exports conv into dir and returns the written path. The file name
// is derived from the title and the current time.
func ToFile(conv *model.Conversation, exporter Exporter, dir string) (string, error) {
	if err := validate(conv); err != nil {
		return "", err
	}
	content, err := exporter.Export(conv)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	if dir == "" {
		dir = "."
	}
	filename := fmt.Sprintf("%s_%s_%s%s",
		conv.Surface,
		sanitizeFilename(conv.DisplayTitle()),
		time.Now().Format("20060102_150405"),
		exporter.FileExtension(),
	)
	path := filepath.Join(dir, filename)
	if err := util.AtomicWriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

func validate(conv *model.Conversation) error {
	if conv == nil {
		return errors.New("conversation is nil")
	}
	if len(conv.Turns) == 0 {
		return errors.New("conversation has no turns")
	}
	return nil
}

// sanitizeFilename replaces characters that are invalid in file names on
// common platforms and bounds the length.
func sanitizeFilename(s string) string {
	const maxLen = 50
	s = util.TruncateRunes(s, maxLen)

	var b strings.Builder
	for _, r := range s {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			b.WriteRune('_')
		case strings.ContainsRune(`/\:*?"<>|`, r), r < 32, r == 127:
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "conversation"
	}
	return b.String()
}
