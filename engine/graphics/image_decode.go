package graphics

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
	"github.com/h2non/filetype/types"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageKind is the encoding DetectImageKind recognized.
type ImageKind int

const (
	ImageKindUnknown ImageKind = iota
	ImageKindDDS
	ImageKindKTX
	ImageKindHDR
	ImageKindPNG
	ImageKindJPEG
	ImageKindGIF
	ImageKindBMP
	ImageKindTIFF
	ImageKindWebP
	ImageKindZIP
	ImageKindZlib
)

var imageKindNames = [...]string{"unknown", "dds", "ktx", "hdr", "png", "jpeg", "gif", "bmp", "tiff", "webp", "zip", "zlib"}

func (k ImageKind) String() string {
	if k < 0 || int(k) >= len(imageKindNames) {
		return "unknown"
	}
	return imageKindNames[k]
}

// Image is a decoded image: tightly packed levels of one format, level 0 first.
type Image struct {
	Width  int
	Height int
	Format TextureFormat
	Levels [][]byte
}

// maxNestedDecode bounds zip/zlib wrapping.
const maxNestedDecode = 4

var (
	typeDDS  = filetype.NewType("dds", "image/vnd-ms.dds")
	typeKTX  = filetype.NewType("ktx", "image/ktx")
	typeHDR  = filetype.NewType("hdr", "image/vnd.radiance")
	typeZlib = filetype.NewType("zlib", "application/zlib")
)

func init() {
	filetype.AddMatcher(typeDDS, isDDS)
	filetype.AddMatcher(typeKTX, isKTX)
	filetype.AddMatcher(typeHDR, isHDR)
	filetype.AddMatcher(typeZlib, isZlib)
}

var builtinKinds = map[types.Type]ImageKind{
	matchers.TypePng:  ImageKindPNG,
	matchers.TypeJpeg: ImageKindJPEG,
	matchers.TypeGif:  ImageKindGIF,
	matchers.TypeBmp:  ImageKindBMP,
	matchers.TypeTiff: ImageKindTIFF,
	matchers.TypeWebp: ImageKindWebP,
	matchers.TypeZip:  ImageKindZIP,
}

// DetectImageKind sniffs the encoding of data from its content.
//
// Parameters:
//   - data: the raw image bytes
//
// Returns:
//   - ImageKind: the detected encoding, or ImageKindUnknown
func DetectImageKind(data []byte) ImageKind {
	// Custom signatures are checked first; they never collide with the built-in ones.
	switch {
	case isDDS(data):
		return ImageKindDDS
	case isKTX(data):
		return ImageKindKTX
	case isHDR(data):
		return ImageKindHDR
	}
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return ImageKindUnknown
	}
	if kind == typeZlib {
		return ImageKindZlib
	}
	if k, ok := builtinKinds[kind]; ok {
		return k
	}
	return ImageKindUnknown
}

// DecodeImage decodes a raw image blob. LDR images decode to RGBA8UnormSrgb with a single
// level; DDS and KTX keep their stored mip chain.
//
// Parameters:
//   - data: the raw image bytes
//
// Returns:
//   - *Image: the decoded image
//   - error: ErrDecode when the content matches no supported encoding or is malformed
func DecodeImage(data []byte) (*Image, error) {
	return decodeImage(data, 0)
}

func decodeImage(data []byte, depth int) (*Image, error) {
	if depth > maxNestedDecode {
		return nil, decodef("archive nesting deeper than %d", maxNestedDecode)
	}
	kind := DetectImageKind(data)
	switch kind {
	case ImageKindDDS:
		return decodeDDS(data)
	case ImageKindKTX:
		return decodeKTX(data)
	case ImageKindHDR:
		return decodeHDR(data)
	case ImageKindPNG, ImageKindJPEG, ImageKindGIF, ImageKindBMP, ImageKindTIFF, ImageKindWebP:
		return decodeLDR(data)
	case ImageKindZIP:
		return decodeZIP(data, depth)
	case ImageKindZlib:
		return decodeZlib(data, depth)
	default:
		return nil, decodef("no decoder matches %d bytes", len(data))
	}
}

// checkImageSize rejects header dimensions no texture could hold, before any size
// arithmetic uses them.
func checkImageSize(kind string, width, height int) error {
	if width <= 0 || height <= 0 || width > MaxTextureDimension || height > MaxTextureDimension {
		return decodef("%s: unsupported size %dx%d", kind, width, height)
	}
	return nil
}

// decodeLDR decodes the formats registered with the image package.
func decodeLDR(data []byte) (*Image, error) {
	src, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, decodef("%v", err)
	}
	b := src.Bounds()
	if b.Empty() {
		return nil, decodef("%s image is empty", name)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return &Image{
		Width:  b.Dx(),
		Height: b.Dy(),
		Format: TextureFormatRGBA8UnormSrgb,
		Levels: [][]byte{dst.Pix},
	}, nil
}
