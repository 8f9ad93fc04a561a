// Package attachments converts inbound Telegram media into Anthropic content
// blocks and coalesces albums into single batches.
package attachments

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/go-telegram/bot/models"

	"github.com/teleclaude/teleclaude/pkg/claudecode"
)

// Downloader fetches file bytes from the messaging platform by file id.
type Downloader interface {
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// Attachment is one processed media item ready for submission.
type Attachment struct {
	Block     claudecode.ContentBlock
	Filename  string
	Size      int
	MediaType string
}

// UnsupportedAttachmentError names a file the pipeline cannot convert.
type UnsupportedAttachmentError struct {
	Filename string
	MIME     string
}

func (e *UnsupportedAttachmentError) Error() string {
	ext := strings.ToUpper(strings.TrimPrefix(filepath.Ext(e.Filename), "."))
	if ext == "" {
		ext = "this type of"
	}
	return fmt.Sprintf("Can't process %s files. Try sending as PDF or pasting the content as text.", ext)
}

// textExtensions is the allow-list of extensions treated as inline text when
// the declared MIME type is not conclusive.
var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".rst": true,
	".py": true, ".go": true, ".js": true, ".ts": true, ".jsx": true,
	".tsx": true, ".java": true, ".c": true, ".h": true, ".cpp": true,
	".hpp": true, ".rs": true, ".rb": true, ".php": true, ".swift": true,
	".kt": true, ".sh": true, ".bash": true, ".zsh": true, ".fish": true,
	".html": true, ".htm": true, ".css": true, ".scss": true, ".xml": true,
	".json": true, ".yaml": true, ".yml": true, ".toml": true, ".ini": true,
	".cfg": true, ".conf": true, ".env": true, ".properties": true,
	".log": true, ".csv": true, ".tsv": true, ".sql": true, ".diff": true,
	".patch": true, ".dockerfile": true, ".makefile": true, ".gradle": true,
}

// ProcessPhoto downloads the largest available size of a photo and wraps it
// as a base64 image block. Unrecognized image bytes default to JPEG, which is
// what Telegram serves for photos.
func ProcessPhoto(ctx context.Context, dl Downloader, sizes []models.PhotoSize) (*Attachment, error) {
	if len(sizes) == 0 {
		return nil, fmt.Errorf("photo update carries no sizes")
	}
	largest := sizes[0]
	for _, s := range sizes[1:] {
		if s.Width*s.Height > largest.Width*largest.Height {
			largest = s
		}
	}

	data, err := dl.Download(ctx, largest.FileID)
	if err != nil {
		return nil, fmt.Errorf("download photo: %w", err)
	}

	mediaType := detectImageType(data)
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	return &Attachment{
		Block:     claudecode.ImageBlock(mediaType, base64.StdEncoding.EncodeToString(data)),
		Filename:  "photo.jpg",
		Size:      len(data),
		MediaType: mediaType,
	}, nil
}

// ProcessDocument downloads a document and resolves it in strict order:
// image by magic bytes, image by declared MIME, PDF by signature or MIME,
// text by MIME or extension, then a last-resort UTF-8 decode.
func ProcessDocument(ctx context.Context, dl Downloader, doc *models.Document) (*Attachment, error) {
	data, err := dl.Download(ctx, doc.FileID)
	if err != nil {
		return nil, fmt.Errorf("download document: %w", err)
	}

	name := doc.FileName
	if name == "" {
		name = "document"
	}
	mime := doc.MimeType

	if imageType := detectImageType(data); imageType != "" {
		return imageAttachment(name, imageType, data), nil
	}
	if strings.HasPrefix(mime, "image/") {
		return imageAttachment(name, mime, data), nil
	}

	if bytes.HasPrefix(data, []byte("%PDF-")) || mime == "application/pdf" {
		return &Attachment{
			Block:     claudecode.DocumentBlock(name, base64.StdEncoding.EncodeToString(data)),
			Filename:  name,
			Size:      len(data),
			MediaType: "application/pdf",
		}, nil
	}

	ext := strings.ToLower(filepath.Ext(name))
	if strings.HasPrefix(mime, "text/") || mime == "application/json" || textExtensions[ext] {
		if utf8.Valid(data) {
			return textAttachment(name, mime, data), nil
		}
	}

	// Last resort: many code files arrive with a generic MIME type.
	if utf8.Valid(data) {
		return textAttachment(name, mime, data), nil
	}

	return nil, &UnsupportedAttachmentError{Filename: name, MIME: mime}
}

func imageAttachment(name, mediaType string, data []byte) *Attachment {
	return &Attachment{
		Block:     claudecode.ImageBlock(mediaType, base64.StdEncoding.EncodeToString(data)),
		Filename:  name,
		Size:      len(data),
		MediaType: mediaType,
	}
}

func textAttachment(name, mime string, data []byte) *Attachment {
	text := fmt.Sprintf("File: %s\n\n%s", name, string(data))
	return &Attachment{
		Block:     claudecode.TextBlock(text),
		Filename:  name,
		Size:      len(data),
		MediaType: mime,
	}
}

// detectImageType sniffs image magic bytes, returning "" when unrecognized.
func detectImageType(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return "image/png"
	case bytes.HasPrefix(data, []byte("\xff\xd8\xff")):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")):
		return "image/gif"
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	default:
		return ""
	}
}
