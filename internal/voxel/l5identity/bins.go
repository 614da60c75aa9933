package l5identity

import (
	"fmt"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Bin is one of the twelve colour classes a sample can fall into.
type Bin int

const (
	BinBlack Bin = iota
	BinGrey
	BinGreyRed
	BinGreyGreen
	BinGreyBlue
	BinWhite
	BinRed
	BinYellow
	BinGreen
	BinCyan
	BinBlue
	BinMagenta

	// NumBins is the histogram length.
	NumBins = 12
)

var binNames = [NumBins]string{
	"black", "grey", "grey-red", "grey-green", "grey-blue", "white",
	"red", "yellow", "green", "cyan", "blue", "magenta",
}

func (b Bin) String() string {
	if b < 0 || int(b) >= NumBins {
		return fmt.Sprintf("bin(%d)", int(b))
	}
	return binNames[b]
}

// BinThresholds holds the brightness, saturation and hue borders used by
// Classify. Hue runs over the full 0..255 range with red at both ends.
type BinThresholds struct {
	Black      uint8 // brightness below this is black
	Grey       uint8 // brightness above this uses the grey-tinted bins
	Saturation uint8 // saturation below this is untinted

	// Hue borders for the grey-tinted bins.
	GreyRedGreen  uint8
	GreyGreenBlue uint8
	GreyBlueRed   uint8

	// Hue borders for the saturated colour bins.
	RedYellow   uint8
	YellowGreen uint8
	GreenCyan   uint8
	CyanBlue    uint8
	BlueMagenta uint8
	MagentaRed  uint8
}

// DefaultBinThresholds returns the tuned production thresholds.
func DefaultBinThresholds() BinThresholds {
	return BinThresholds{
		Black:         50,
		Grey:          128,
		Saturation:    25,
		GreyRedGreen:  43,
		GreyGreenBlue: 128,
		GreyBlueRed:   213,
		RedYellow:     64,
		YellowGreen:   85,
		GreenCyan:     107,
		CyanBlue:      128,
		BlueMagenta:   170,
		MagentaRed:    212,
	}
}

// Validate checks that both sets of hue borders are increasing.
func (t BinThresholds) Validate() error {
	if t.Black > t.Grey {
		return fmt.Errorf("black threshold %d above grey threshold %d", t.Black, t.Grey)
	}
	grey := []uint8{t.GreyRedGreen, t.GreyGreenBlue, t.GreyBlueRed}
	colour := []uint8{t.RedYellow, t.YellowGreen, t.GreenCyan, t.CyanBlue, t.BlueMagenta, t.MagentaRed}
	for _, borders := range [][]uint8{grey, colour} {
		for i := 1; i < len(borders); i++ {
			if borders[i] <= borders[i-1] {
				return fmt.Errorf("hue borders must increase, got %v", borders)
			}
		}
	}
	return nil
}

// Classify maps an HSV sample (all channels 0..255) to its bin. Every
// border is half-open, so each sample lands in exactly one bin.
func Classify(h, s, v uint8, t BinThresholds) Bin {
	switch {
	case v < t.Black:
		return BinBlack
	case v > t.Grey:
		switch {
		case s < t.Saturation:
			return BinGrey
		case h >= t.GreyBlueRed || h < t.GreyRedGreen:
			return BinGreyRed
		case h < t.GreyGreenBlue:
			return BinGreyGreen
		default:
			return BinGreyBlue
		}
	case s < t.Saturation:
		return BinWhite
	case h >= t.MagentaRed || h < t.RedYellow:
		return BinRed
	case h < t.YellowGreen:
		return BinYellow
	case h < t.GreenCyan:
		return BinGreen
	case h < t.CyanBlue:
		return BinCyan
	case h < t.BlueMagenta:
		return BinBlue
	default:
		return BinMagenta
	}
}

// HSV converts c to 8-bit hue, saturation and value. Hue is scaled from
// degrees onto 0..255. Fully transparent colours read as black.
func HSV(c color.Color) (h, s, v uint8) {
	cf, ok := colorful.MakeColor(c)
	if !ok {
		return 0, 0, 0
	}
	hd, sf, vf := cf.Hsv()
	return scale8(hd / 360), scale8(sf), scale8(vf)
}

func scale8(f float64) uint8 {
	return uint8(math.Round(math.Min(math.Max(f, 0), 1) * 255))
}
