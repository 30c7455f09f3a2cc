package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/sync/errgroup"

	"github.com/boomware/crosslist/internal/config"
	"github.com/boomware/crosslist/pkg/models"
)

// PlatformImageSizes maps each marketplace to its maximum image dimension.
var PlatformImageSizes = map[models.Platform]int{
	models.PlatformEbay:     1600,
	models.PlatformFacebook: 1200,
	models.PlatformMercari:  1080,
	models.PlatformPoshmark: 1280,
	models.PlatformOfferUp:  1024,
}

// EnhanceOptions controls the cleanup pass applied before platform resizing.
// Brighten and Contrast are percentage adjustments, zero means untouched.
type EnhanceOptions struct {
	Sharpen   bool    `json:"sharpen"`
	Brighten  float64 `json:"brighten"`
	Contrast  float64 `json:"contrast"`
	AutoLevel bool    `json:"autoLevel"`
	Quality   int     `json:"quality"`
}

// DefaultEnhanceOptions matches the standard listing-photo cleanup.
func DefaultEnhanceOptions() EnhanceOptions {
	return EnhanceOptions{Sharpen: true, AutoLevel: true, Quality: 90}
}

// GalleryOptions selects which stages ProcessGallery runs on each photo.
type GalleryOptions struct {
	Enhance          EnhanceOptions `json:"enhance"`
	RemoveBackground bool           `json:"removeBackground"`
	WatermarkText    string         `json:"watermarkText,omitempty"`
}

func DefaultGalleryOptions() GalleryOptions {
	return GalleryOptions{Enhance: DefaultEnhanceOptions()}
}

// ImageProcessorService prepares listing photos: enhancement, per-platform
// resizing, background removal, watermarking and thumbnails. Every operation
// is content-addressed into the cache directory so repeat runs are free.
type ImageProcessorService struct {
	cfg        config.ImageConfig
	logger     *logrus.Logger
	httpClient *http.Client
}

func NewImageProcessorService(cfg config.ImageConfig, logger *logrus.Logger) *ImageProcessorService {
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 90
	}
	return &ImageProcessorService{
		cfg:    cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Enhance applies sharpening and level normalization and writes the result
// to the cache directory.
func (s *ImageProcessorService) Enhance(ctx context.Context, path string, opts EnhanceOptions) (string, error) {
	if opts.Quality <= 0 {
		opts.Quality = s.cfg.JPEGQuality
	}

	return s.cached(path, "enhance", opts, func(img image.Image) (image.Image, error) {
		out := img
		if opts.AutoLevel {
			out = autoLevel(out)
		}
		if opts.Brighten != 0 {
			out = imaging.AdjustBrightness(out, opts.Brighten)
		}
		if opts.Contrast != 0 {
			out = imaging.AdjustContrast(out, opts.Contrast)
		}
		if opts.Sharpen {
			out = imaging.Sharpen(out, 1.0)
		}
		return out, nil
	}, opts.Quality)
}

// ProcessForPlatform scales the image down to fit the platform's maximum
// dimension. The aspect ratio is preserved and images already within the
// limit pass through at their original size.
func (s *ImageProcessorService) ProcessForPlatform(ctx context.Context, path string, platform models.Platform) (string, error) {
	size, ok := PlatformImageSizes[platform]
	if !ok {
		return "", fmt.Errorf("unknown platform: %q", platform)
	}

	opts := map[string]int{"size": size}
	return s.cached(path, "platform_"+string(platform), opts, func(img image.Image) (image.Image, error) {
		return imaging.Fit(img, size, size, imaging.Lanczos), nil
	}, s.cfg.JPEGQuality)
}

// RemoveBackground calls the remove.bg API and caches the cutout composited
// onto white. Requires an API key.
func (s *ImageProcessorService) RemoveBackground(ctx context.Context, path string) (string, error) {
	if s.cfg.RemoveBgAPIKey == "" {
		return "", fmt.Errorf("background removal not configured")
	}

	outPath, exists, err := s.cachePath(path, "removebg", nil)
	if err != nil {
		return "", err
	}
	if exists {
		return outPath, nil
	}

	cutout, err := s.callRemoveBg(ctx, path)
	if err != nil {
		return "", fmt.Errorf("background removal failed: %w", err)
	}

	canvas := imaging.New(cutout.Bounds().Dx(), cutout.Bounds().Dy(), color.White)
	composed := imaging.OverlayCenter(canvas, cutout, 1.0)

	if err := imaging.Save(composed, outPath, imaging.JPEGQuality(s.cfg.JPEGQuality)); err != nil {
		return "", fmt.Errorf("failed to save processed image: %w", err)
	}
	return outPath, nil
}

// Watermark stamps text in the bottom-right corner.
func (s *ImageProcessorService) Watermark(ctx context.Context, path, text string) (string, error) {
	opts := map[string]string{"text": text}
	return s.cached(path, "watermark", opts, func(img image.Image) (image.Image, error) {
		return stampText(img, text), nil
	}, s.cfg.JPEGQuality)
}

// Thumbnail produces a small square preview.
func (s *ImageProcessorService) Thumbnail(ctx context.Context, path string, size int) (string, error) {
	if size <= 0 {
		size = 200
	}
	opts := map[string]int{"size": size}
	return s.cached(path, "thumbnail", opts, func(img image.Image) (image.Image, error) {
		return imaging.Thumbnail(img, size, size, imaging.Lanczos), nil
	}, 80)
}

// ProcessGallery runs the configured stages over every photo concurrently,
// preserving input order. Background removal and watermarking only run when
// requested.
func (s *ImageProcessorService) ProcessGallery(ctx context.Context, paths []string, opts GalleryOptions) ([]string, error) {
	out := make([]string, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			current := path
			var err error
			if opts.RemoveBackground {
				if current, err = s.RemoveBackground(ctx, current); err != nil {
					return fmt.Errorf("image %d: %w", i, err)
				}
			}
			if current, err = s.Enhance(ctx, current, opts.Enhance); err != nil {
				return fmt.Errorf("image %d: %w", i, err)
			}
			if opts.WatermarkText != "" {
				if current, err = s.Watermark(ctx, current, opts.WatermarkText); err != nil {
					return fmt.Errorf("image %d: %w", i, err)
				}
			}
			out[i] = current
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ProcessForAllPlatforms enhances the gallery once, then sizes every image
// for every marketplace. Each platform gets a full image set in input order.
func (s *ImageProcessorService) ProcessForAllPlatforms(ctx context.Context, paths []string, opts GalleryOptions) (map[models.Platform][]string, error) {
	gallery, err := s.ProcessGallery(ctx, paths, opts)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	out := make(map[models.Platform][]string, len(models.AllPlatforms))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, platform := range models.AllPlatforms {
		platform := platform
		g.Go(func() error {
			sized := make([]string, len(gallery))
			for i, p := range gallery {
				processed, err := s.ProcessForPlatform(ctx, p, platform)
				if err != nil {
					return fmt.Errorf("%s: %w", platform, err)
				}
				sized[i] = processed
			}
			mu.Lock()
			out[platform] = sized
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// CacheStats reports how much disk the processed-image cache occupies.
type CacheStats struct {
	Files int   `json:"files"`
	Bytes int64 `json:"bytes"`
}

func (s *ImageProcessorService) CacheStats() (CacheStats, error) {
	var stats CacheStats
	entries, err := os.ReadDir(s.cfg.CacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return stats, fmt.Errorf("failed to read cache dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		stats.Files++
		stats.Bytes += info.Size()
	}
	return stats, nil
}

// ClearCache deletes every processed image. Source files are untouched.
func (s *ImageProcessorService) ClearCache() error {
	entries, err := os.ReadDir(s.cfg.CacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read cache dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.cfg.CacheDir, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// FileHash returns a short content hash used in vision cache keys.
func (s *ImageProcessorService) FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash image: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}

func (s *ImageProcessorService) cached(path, op string, opts interface{}, transform func(image.Image) (image.Image, error), quality int) (string, error) {
	outPath, exists, err := s.cachePath(path, op, opts)
	if err != nil {
		return "", err
	}
	if exists {
		s.logger.WithFields(logrus.Fields{
			"operation": op,
			"path":      path,
		}).Debug("Image cache hit")
		return outPath, nil
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("failed to open image %s: %w", path, err)
	}

	out, err := transform(img)
	if err != nil {
		return "", err
	}

	if err := imaging.Save(out, outPath, imaging.JPEGQuality(quality)); err != nil {
		return "", fmt.Errorf("failed to save processed image: %w", err)
	}
	return outPath, nil
}

// cachePath derives the deterministic output path for an operation. The key
// covers the source path, operation name and the serialized options so any
// parameter change produces a fresh file.
func (s *ImageProcessorService) cachePath(path, op string, opts interface{}) (string, bool, error) {
	if err := os.MkdirAll(s.cfg.CacheDir, 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create cache dir: %w", err)
	}

	serialized, err := json.Marshal(opts)
	if err != nil {
		return "", false, fmt.Errorf("failed to serialize options: %w", err)
	}
	sum := sha256.Sum256([]byte(path + "|" + op + "|" + string(serialized)))
	name := fmt.Sprintf("%s_%s.jpg", op, hex.EncodeToString(sum[:])[:16])
	outPath := filepath.Join(s.cfg.CacheDir, name)

	if _, err := os.Stat(outPath); err == nil {
		return outPath, true, nil
	}
	return outPath, false, nil
}

func (s *ImageProcessorService) callRemoveBg(ctx context.Context, path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image_file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if err := writer.WriteField("size", "auto"); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.remove.bg/v1.0/removebg", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Api-Key", s.cfg.RemoveBgAPIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("remove.bg returned %d: %s", resp.StatusCode, string(data))
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cutout: %w", err)
	}
	return img, nil
}

// autoLevel stretches each channel's histogram to the full range, the same
// normalization pass photo tools call "auto levels".
func autoLevel(img image.Image) image.Image {
	bounds := img.Bounds()
	nrgba := imaging.Clone(img)

	minV, maxV := uint8(255), uint8(0)
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			i := nrgba.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := nrgba.Pix[i+c]
				if v < minV {
					minV = v
				}
				if v > maxV {
					maxV = v
				}
			}
		}
	}
	if maxV <= minV {
		return nrgba
	}

	scale := 255.0 / float64(maxV-minV)
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			i := nrgba.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := float64(nrgba.Pix[i+c]-minV) * scale
				if v > 255 {
					v = 255
				}
				nrgba.Pix[i+c] = uint8(v)
			}
		}
	}
	return nrgba
}

func stampText(img image.Image, text string) image.Image {
	nrgba := imaging.Clone(img)
	face := basicfont.Face7x13

	margin := 12
	width := font.MeasureString(face, text).Ceil()
	x := nrgba.Bounds().Dx() - width - margin
	y := nrgba.Bounds().Dy() - margin
	if x < margin {
		x = margin
	}

	drawer := &font.Drawer{
		Dst:  nrgba,
		Src:  image.NewUniform(color.NRGBA{255, 255, 255, 200}),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	drawer.DrawString(text)
	return nrgba
}
