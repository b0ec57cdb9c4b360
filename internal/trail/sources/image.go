package sources

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/url"
	"strings"

	_ "golang.org/x/image/webp"

	"github.com/i474232898/trail-status/internal/common"
	"github.com/i474232898/trail-status/internal/fetch"
	"github.com/i474232898/trail-status/internal/trail"
)

// Hue is the dominant color category of a sampled image.
type Hue string

const (
	HueBlue    Hue = "blue"
	HueGreen   Hue = "green"
	HueRed     Hue = "red"
	HueYellow  Hue = "yellow"
	HueUnknown Hue = "unknown"
)

const (
	descImageFailed = "Unable to determine trail status. Check the Facebook page directly."
	descRateLimited = "Rate limited - please try again later."
	maxImageBytes   = 10 << 20
	sampleStride    = 2
	graphPictureURL = "https://graph.facebook.com/%s/picture?type=large"
)

var hueStatus = map[Hue]trail.Status{
	HueGreen:  trail.StatusOpen,
	HueRed:    trail.StatusClosed,
	HueYellow: trail.StatusCaution,
	HueBlue:   trail.StatusFreezeThaw,
}

var hueDescription = map[Hue]string{
	HueGreen:  "Trails are open and in good condition",
	HueRed:    "Trails are currently closed",
	HueYellow: "Caution - Trails may be wet or have hazards",
	HueBlue:   "Freeze/Thaw conditions - Exercise caution",
}

// Image reads trail status from the background color of a profile picture.
type Image struct {
	name    string
	url     string
	fetcher *fetch.Fetcher
	logger  *slog.Logger
}

// NewImage creates an image source. locator is either an image URL or a page
// identifier whose large profile picture is used.
func NewImage(name, locator string, fetcher *fetch.Fetcher, logger *slog.Logger) *Image {
	return &Image{
		name:    name,
		url:     ImageURL(locator),
		fetcher: fetcher,
		logger:  logger,
	}
}

// ImageURL resolves a source locator to the picture URL to download.
func ImageURL(locator string) string {
	locator = strings.TrimSpace(locator)
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		return locator
	}
	return fmt.Sprintf(graphPictureURL, url.PathEscape(locator))
}

func (i *Image) Name() string {
	return i.name
}

// ExtractStatus downloads and classifies the picture. A 429 becomes StatusError;
// any other failure becomes StatusUnknown.
func (i *Image) ExtractStatus(ctx context.Context) trail.StatusResult {
	img, err := i.fetchImage(ctx)
	if err != nil {
		i.logger.Error("image fetch failed", "trail", i.name, "url", i.url, "error", err)
		if fetch.IsRateLimited(err) {
			return trail.StatusResult{Status: trail.StatusError, Description: descRateLimited}
		}
		return trail.StatusResult{Status: trail.StatusUnknown, Description: descImageFailed}
	}

	rgb, err := SampleAverage(img)
	if err != nil {
		i.logger.Error("image sampling failed", "trail", i.name, "error", err)
		return trail.StatusResult{Status: trail.StatusUnknown, Description: descImageFailed}
	}

	hue := ClassifyHue(rgb)
	i.logger.Debug("image classified", "trail", i.name, "hue", hue, "r", rgb.R, "g", rgb.G, "b", rgb.B)

	return trail.StatusResult{
		Status:        HueStatus(hue),
		Description:   HueDescription(hue),
		DetectedColor: string(hue),
		RGB:           &rgb,
	}
}

func (i *Image) fetchImage(ctx context.Context) (image.Image, error) {
	resp, err := i.fetcher.Get(ctx, i.url, map[string]string{"User-Agent": fetch.BrowserUserAgent})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := fetch.CheckStatus(resp); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", ErrParse, err)
	}
	return img, nil
}

// SampleAverage averages every second pixel of every second row across the whole
// image, returning rounded 8-bit channel means.
func SampleAverage(img image.Image) (trail.RGB, error) {
	b := img.Bounds()
	var rSum, gSum, bSum, n int64

	for x := b.Min.X; x < b.Max.X; x += sampleStride {
		for y := b.Min.Y; y < b.Max.Y; y += sampleStride {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			rSum += int64(c.R)
			gSum += int64(c.G)
			bSum += int64(c.B)
			n++
		}
	}
	if n == 0 {
		return trail.RGB{}, fmt.Errorf("%w: empty image", ErrParse)
	}

	return trail.RGB{
		R: common.RoundHalfUp(float64(rSum) / float64(n)),
		G: common.RoundHalfUp(float64(gSum) / float64(n)),
		B: common.RoundHalfUp(float64(bSum) / float64(n)),
	}, nil
}

// ClassifyHue picks the dominant hue from each channel's deviation from the mean.
// The thresholds are tuned against the live profile pictures and must not drift.
func ClassifyHue(c trail.RGB) Hue {
	avg := float64(c.R+c.G+c.B) / 3
	rDiff := float64(c.R) - avg
	gDiff := float64(c.G) - avg
	bDiff := float64(c.B) - avg

	switch {
	case bDiff > 3 && bDiff > rDiff && bDiff > gDiff:
		return HueBlue
	case gDiff > 5 && gDiff > rDiff && gDiff > bDiff:
		return HueGreen
	case rDiff > 5 && rDiff > bDiff:
		if gDiff > 0 && bDiff < -5 {
			return HueYellow
		}
		return HueRed
	default:
		return HueUnknown
	}
}

func HueStatus(h Hue) trail.Status {
	if s, ok := hueStatus[h]; ok {
		return s
	}
	return trail.StatusUnknown
}

func HueDescription(h Hue) string {
	if d, ok := hueDescription[h]; ok {
		return d
	}
	return descImageFailed
}
