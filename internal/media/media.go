// Package media copies provider image URLs, which expire, into durable
// object storage.
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	storage_go "github.com/supabase-community/storage-go"
	supabase "github.com/supabase-community/supabase-go"
)

const maxImageBytes = 20 << 20

// Uploader stores an object and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// Transcoder re-encodes image bytes.
type Transcoder interface {
	Optimize(buffer []byte) ([]byte, error)
	ContentType() string
}

// Mirror downloads an image, optionally re-encodes it and uploads the result.
type Mirror struct {
	Client     *http.Client
	Transcoder Transcoder // optional
	Uploader   Uploader
	Prefix     string
	now        func() time.Time
}

func NewMirror(uploader Uploader, transcoder Transcoder) *Mirror {
	return &Mirror{
		Client:     &http.Client{Timeout: time.Minute},
		Transcoder: transcoder,
		Uploader:   uploader,
		Prefix:     "articles",
		now:        time.Now,
	}
}

// Mirror returns the public URL of the stored copy of url.
func (m *Mirror) Mirror(ctx context.Context, url string) (string, error) {
	data, contentType, err := m.download(ctx, url)
	if err != nil {
		return "", err
	}

	if m.Transcoder != nil {
		optimized, err := m.Transcoder.Optimize(data)
		if err != nil {
			log.Printf("[media] uploading original of %s: %v", url, err)
		} else {
			data, contentType = optimized, m.Transcoder.ContentType()
		}
	}

	now := time.Now
	if m.now != nil {
		now = m.now
	}
	name := path.Join(m.Prefix, now().UTC().Format("2006/01/02"), uuid.NewString()+extension(contentType))
	return m.Uploader.Upload(ctx, name, data, contentType)
}

func (m *Mirror) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download failed with status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", fmt.Errorf("unexpected content type %q", contentType)
	}
	return data, contentType, nil
}

func extension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch mediaType {
	case "image/webp":
		return ".webp"
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	}
	if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
		return exts[0]
	}
	return ""
}

// Supabase uploads objects to a Supabase Storage bucket.
type Supabase struct {
	client *supabase.Client
	bucket string
}

func NewSupabase(projectURL, serviceKey, bucket string) (*Supabase, error) {
	client, err := supabase.NewClient(projectURL, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("initialize supabase SDK: %w", err)
	}
	return &Supabase{client: client, bucket: bucket}, nil
}

func (s *Supabase) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cacheControl := "public, max-age=31536000"
	upsert := false
	_, err := s.client.Storage.UploadFile(s.bucket, name, bytes.NewReader(data), storage_go.FileOptions{
		ContentType:  &contentType,
		CacheControl: &cacheControl,
		Upsert:       &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s to bucket %s: %w", name, s.bucket, err)
	}
	return s.client.Storage.GetPublicUrl(s.bucket, name).SignedURL, nil
}
