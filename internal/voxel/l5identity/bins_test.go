package l5identity

import (
	"image/color"
	"testing"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	th := DefaultBinThresholds()
	tests := []struct {
		h, s, v uint8
		want    Bin
	}{
		{0, 0, 49, BinBlack},
		{200, 255, 0, BinBlack},
		{0, 0, 50, BinWhite},
		{100, 24, 128, BinWhite},
		{0, 0, 129, BinGrey},
		{0, 200, 129, BinGreyRed},
		{42, 200, 255, BinGreyRed},
		{43, 200, 255, BinGreyGreen},
		{127, 200, 255, BinGreyGreen},
		{128, 200, 255, BinGreyBlue},
		{212, 200, 255, BinGreyBlue},
		{213, 200, 255, BinGreyRed},
		{0, 200, 128, BinRed},
		{63, 200, 128, BinRed},
		{64, 200, 128, BinYellow},
		{85, 200, 128, BinGreen},
		{107, 200, 128, BinCyan},
		{128, 200, 128, BinBlue},
		{169, 200, 128, BinBlue},
		{170, 200, 128, BinMagenta},
		{211, 200, 128, BinMagenta},
		{212, 200, 128, BinRed},
		{255, 200, 128, BinRed},
	}
	for _, tt := range tests {
		if got := Classify(tt.h, tt.s, tt.v, th); got != tt.want {
			t.Errorf("Classify(%d, %d, %d) = %s, want %s", tt.h, tt.s, tt.v, got, tt.want)
		}
	}
}

func TestClassify_EveryBinReachable(t *testing.T) {
	t.Parallel()

	th := DefaultBinThresholds()
	seen := make(map[Bin]bool)
	for h := 0; h < 256; h++ {
		for _, s := range []uint8{0, 24, 25, 255} {
			for _, v := range []uint8{0, 49, 50, 128, 129, 255} {
				b := Classify(uint8(h), s, v, th)
				if b < 0 || int(b) >= NumBins {
					t.Fatalf("Classify(%d, %d, %d) = %d, out of range", h, s, v, b)
				}
				seen[b] = true
			}
		}
	}
	if len(seen) != NumBins {
		t.Errorf("reached %d bins, want %d", len(seen), NumBins)
	}
}

func TestHSV(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		c       color.Color
		h, s, v uint8
	}{
		{"bright red", color.RGBA{R: 255, A: 255}, 0, 255, 255},
		{"dark green", color.RGBA{G: 100, A: 255}, 85, 255, 100},
		{"mid grey", color.Gray{Y: 128}, 0, 0, 128},
		{"transparent", color.RGBA{}, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, s, v := HSV(tt.c)
			if h != tt.h || s != tt.s || v != tt.v {
				t.Errorf("HSV = (%d, %d, %d), want (%d, %d, %d)", h, s, v, tt.h, tt.s, tt.v)
			}
		})
	}
}

func TestBinThresholds_Validate(t *testing.T) {
	t.Parallel()

	if err := DefaultBinThresholds().Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}

	bad := DefaultBinThresholds()
	bad.CyanBlue = bad.GreenCyan
	if bad.Validate() == nil {
		t.Error("expected error for collapsed hue border")
	}

	bad = DefaultBinThresholds()
	bad.Black = 200
	if bad.Validate() == nil {
		t.Error("expected error for black above grey")
	}
}

func TestBinString(t *testing.T) {
	for b, want := range map[Bin]string{BinGreyBlue: "grey-blue", BinMagenta: "magenta", Bin(12): "bin(12)"} {
		if got := b.String(); got != want {
			t.Errorf("Bin(%d).String() = %q, want %q", int(b), got, want)
		}
	}
}
