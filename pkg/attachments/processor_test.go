package attachments

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDownloader struct {
	files map[string][]byte
}

func (f *fakeDownloader) Download(_ context.Context, fileID string) ([]byte, error) {
	return f.files[fileID], nil
}

var (
	pngBytes  = []byte("\x89PNG\r\n\x1a\nrest-of-image")
	jpegBytes = []byte("\xff\xd8\xffrest-of-image")
	webpBytes = []byte("RIFF\x00\x00\x00\x00WEBPrest")
)

func TestProcessPhoto_PicksLargestSize(t *testing.T) {
	dl := &fakeDownloader{files: map[string][]byte{"big": pngBytes, "small": jpegBytes}}
	sizes := []models.PhotoSize{
		{FileID: "small", Width: 90, Height: 90},
		{FileID: "big", Width: 1280, Height: 960},
	}

	att, err := ProcessPhoto(context.Background(), dl, sizes)
	require.NoError(t, err)

	assert.Equal(t, "image/png", att.MediaType)
	assert.Equal(t, "image", att.Block.Type)
	assert.Equal(t, base64.StdEncoding.EncodeToString(pngBytes), att.Block.Source.Data)
	assert.Equal(t, len(pngBytes), att.Size)
}

func TestProcessPhoto_UnknownBytesDefaultToJPEG(t *testing.T) {
	dl := &fakeDownloader{files: map[string][]byte{"p": []byte("mystery-bytes")}}

	att, err := ProcessPhoto(context.Background(), dl, []models.PhotoSize{{FileID: "p", Width: 1, Height: 1}})
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", att.MediaType)
}

func TestProcessDocument_ImageByMagicBytes(t *testing.T) {
	dl := &fakeDownloader{files: map[string][]byte{"d": webpBytes}}
	doc := &models.Document{FileID: "d", FileName: "pic.bin", MimeType: "application/octet-stream"}

	att, err := ProcessDocument(context.Background(), dl, doc)
	require.NoError(t, err)
	assert.Equal(t, "image/webp", att.MediaType)
	assert.Equal(t, "image", att.Block.Type)
	assert.Equal(t, "pic.bin", att.Filename)
}

func TestProcessDocument_PDFBySignature(t *testing.T) {
	pdf := []byte("%PDF-1.7 content")
	dl := &fakeDownloader{files: map[string][]byte{"d": pdf}}
	doc := &models.Document{FileID: "d", FileName: "report.pdf", MimeType: "application/octet-stream"}

	att, err := ProcessDocument(context.Background(), dl, doc)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", att.MediaType)
	assert.Equal(t, "document", att.Block.Type)
	assert.Equal(t, "report.pdf", att.Block.Title)
	assert.Equal(t, base64.StdEncoding.EncodeToString(pdf), att.Block.Source.Data)
}

func TestProcessDocument_TextByExtension(t *testing.T) {
	dl := &fakeDownloader{files: map[string][]byte{"d": []byte("package main")}}
	doc := &models.Document{FileID: "d", FileName: "main.go", MimeType: "application/octet-stream"}

	att, err := ProcessDocument(context.Background(), dl, doc)
	require.NoError(t, err)
	assert.Equal(t, "text", att.Block.Type)
	assert.Contains(t, att.Block.Text, "File: main.go")
	assert.Contains(t, att.Block.Text, "package main")
}

func TestProcessDocument_TextByMIME(t *testing.T) {
	dl := &fakeDownloader{files: map[string][]byte{"d": []byte(`{"k":1}`)}}
	doc := &models.Document{FileID: "d", FileName: "data", MimeType: "application/json"}

	att, err := ProcessDocument(context.Background(), dl, doc)
	require.NoError(t, err)
	assert.Equal(t, "text", att.Block.Type)
}

func TestProcessDocument_LastResortUTF8(t *testing.T) {
	dl := &fakeDownloader{files: map[string][]byte{"d": []byte("plain words")}}
	doc := &models.Document{FileID: "d", FileName: "notes.weird", MimeType: "application/octet-stream"}

	att, err := ProcessDocument(context.Background(), dl, doc)
	require.NoError(t, err)
	assert.Equal(t, "text", att.Block.Type)
}

func TestProcessDocument_Unsupported(t *testing.T) {
	binary := []byte{0x00, 0xff, 0xfe, 0x00, 0x80, 0x81}
	dl := &fakeDownloader{files: map[string][]byte{"d": binary}}
	doc := &models.Document{FileID: "d", FileName: "archive.zip", MimeType: "application/zip"}

	_, err := ProcessDocument(context.Background(), dl, doc)
	require.Error(t, err)

	var unsupported *UnsupportedAttachmentError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "archive.zip", unsupported.Filename)
	assert.Contains(t, err.Error(), "ZIP")
	assert.Contains(t, err.Error(), "PDF")
}

func TestDetectImageType(t *testing.T) {
	assert.Equal(t, "image/png", detectImageType(pngBytes))
	assert.Equal(t, "image/jpeg", detectImageType(jpegBytes))
	assert.Equal(t, "image/gif", detectImageType([]byte("GIF89a...")))
	assert.Equal(t, "image/webp", detectImageType(webpBytes))
	assert.Empty(t, detectImageType([]byte("nope")))
	assert.Empty(t, detectImageType(nil))
}
