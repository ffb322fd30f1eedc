// Package barcode decodes barcode symbols from still images. Symbology
// support is delegated to gozxing (a zxing port); this package only adapts
// its results to a compact form usable inside a capture tick.
package barcode

import (
	"image"
	"math"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/multi"
)

// Symbol 单次解码出的一个条码
type Symbol struct {
	Payload string          `json:"payload"`
	Format  string          `json:"format"`
	Region  image.Rectangle `json:"region"`
}

// Decoder 无状态解码器，同一帧内不去重，跨帧去重由上层会话负责
type Decoder struct {
	reader *multi.GenericMultipleBarcodeReader
	hints  map[gozxing.DecodeHintType]interface{}
}

func NewDecoder() *Decoder {
	return &Decoder{
		reader: multi.NewGenericMultipleBarcodeReader(gozxing.NewMultiFormatReader()),
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// Decode 返回图像中找到的全部条码，按解码顺序排列。
// 未找到条码或解码失败都返回空切片，解码失败从不中断采集
func (d *Decoder) Decode(img image.Image) []Symbol {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil
	}
	results, err := d.reader.DecodeMultiple(bmp, d.hints)
	if err != nil {
		return nil
	}

	symbols := make([]Symbol, 0, len(results))
	for _, r := range results {
		if r.GetText() == "" {
			continue
		}
		symbols = append(symbols, Symbol{
			Payload: r.GetText(),
			Format:  r.GetBarcodeFormat().String(),
			Region:  boundingBox(r.GetResultPoints()),
		})
	}
	return symbols
}

// boundingBox 由定位点求外接矩形，用于叠加显示
func boundingBox(points []gozxing.ResultPoint) image.Rectangle {
	if len(points) == 0 {
		return image.Rectangle{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX = math.Min(minX, p.GetX())
		minY = math.Min(minY, p.GetY())
		maxX = math.Max(maxX, p.GetX())
		maxY = math.Max(maxY, p.GetY())
	}
	return image.Rect(int(minX), int(minY), int(math.Ceil(maxX)), int(math.Ceil(maxY)))
}
