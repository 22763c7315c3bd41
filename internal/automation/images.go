package automation

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/models"
	"github.com/ncleton-petitmaker/post-veille-ia/pkg/util"
)

const defaultImageName = "post-image.png"

// DataURL encodes data as a base64 data URL.
func DataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// decodeDataURL reads a base64 data URL.
func decodeDataURL(raw string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(raw, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data url")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data url")
	}

	mimeType := "image/png"
	isBase64 := false
	for i, part := range strings.Split(meta, ";") {
		switch {
		case i == 0 && part != "":
			mimeType = part
		case part == "base64":
			isBase64 = true
		}
	}

	if !isBase64 {
		decoded, err := url.PathUnescape(payload)
		if err != nil {
			return "", nil, fmt.Errorf("decode data url: %w", err)
		}
		return mimeType, []byte(decoded), nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data url: %w", err)
	}
	return mimeType, data, nil
}

// loadImage turns an image reference from the payload into a file.
func (a *Agent) loadImage(ctx context.Context, post models.PostPayload, ref string) (File, error) {
	if strings.HasPrefix(ref, "data:") {
		mimeType, data, err := decodeDataURL(ref)
		if err != nil {
			return File{}, err
		}
		return File{Name: inlineImageName(post.Title, mimeType), MIME: mimeType, Data: data}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return File{}, fmt.Errorf("build image request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return File{}, fmt.Errorf("fetch image: %v: %w", err, models.ErrNetwork)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return File{}, fmt.Errorf("fetch image: status %d: %w", resp.StatusCode, models.ErrNetwork)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return File{}, fmt.Errorf("read image: %w", err)
	}

	name := util.FileNameFromURL(ref, defaultImageName)
	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = mime.TypeByExtension(path.Ext(name))
	}
	return File{Name: name, MIME: mimeType, Data: data}, nil
}

func inlineImageName(title, mimeType string) string {
	slug := util.GenerateSlug(title)
	if slug == "" {
		return defaultImageName
	}
	ext, ok := imageExtensions[mimeType]
	if !ok {
		ext = ".png"
	}
	return slug + ext
}

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// uploadImage attaches an image through the composer's media picker.
func (a *Agent) uploadImage(ctx context.Context, post models.PostPayload, ref string) error {
	d := a.cfg.Delays

	addMedia, err := a.wait(ctx, AddMedia, a.cfg.MediaTimeout)
	if err != nil {
		return err
	}
	if err := a.page.Click(ctx, *addMedia); err != nil {
		return err
	}
	if err := a.sleep(ctx, d.MediaOpen); err != nil {
		return err
	}

	input, err := a.wait(ctx, FileInput, a.cfg.FileInputTimeout)
	if err != nil {
		return err
	}

	file, err := a.loadImage(ctx, post, ref)
	if err != nil {
		return err
	}
	a.logger.Debug("Uploading image", zap.String("name", file.Name), zap.Int("bytes", len(file.Data)))

	if err := a.page.UploadFile(ctx, *input, file); err != nil {
		return err
	}
	if err := a.page.Dispatch(ctx, *input, "change"); err != nil {
		return err
	}
	return a.sleep(ctx, d.UploadSettle)
}
