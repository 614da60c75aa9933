package l1cameras

import (
	"encoding/json"
	"fmt"
	"image"
	"path/filepath"

	"github.com/banshee-data/voxel.report/internal/fsutil"
)

// maxCalibrationSize bounds calibration files read from disk.
const maxCalibrationSize = 1 * 1024 * 1024

// CameraCalibration is one camera's entry in a calibration file. Either
// Rotation (row-major 3x3) or RotationVector (axis-angle) must be set.
type CameraCalibration struct {
	ID             string    `json:"id"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	Fx             float64   `json:"fx"`
	Fy             float64   `json:"fy"`
	Cx             float64   `json:"cx"`
	Cy             float64   `json:"cy"`
	Distortion     []float64 `json:"distortion,omitempty"` // k1, k2, p1, p2, k3
	Rotation       []float64 `json:"rotation,omitempty"`
	RotationVector []float64 `json:"rvec,omitempty"`
	Translation    []float64 `json:"translation"`
}

// Calibration lists every camera of a rig.
type Calibration struct {
	Cameras []CameraCalibration `json:"cameras"`
}

// LoadCalibration reads and validates a JSON calibration file.
func LoadCalibration(fsys fsutil.FileSystem, path string) (*Calibration, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("calibration file must have .json extension, got %q", ext)
	}

	info, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat calibration file: %w", err)
	}
	if info.Size() > maxCalibrationSize {
		return nil, fmt.Errorf("calibration file too large: %d bytes (max %d)", info.Size(), maxCalibrationSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read calibration file: %w", err)
	}

	var cal Calibration
	if err := json.Unmarshal(data, &cal); err != nil {
		return nil, fmt.Errorf("failed to parse calibration JSON: %w", err)
	}
	if err := cal.Validate(); err != nil {
		return nil, fmt.Errorf("invalid calibration: %w", err)
	}
	return &cal, nil
}

// Validate checks that every camera entry is usable.
func (c *Calibration) Validate() error {
	if len(c.Cameras) == 0 {
		return fmt.Errorf("no cameras defined")
	}
	seen := make(map[string]bool, len(c.Cameras))
	for i, cam := range c.Cameras {
		if cam.ID == "" {
			return fmt.Errorf("camera %d: id is required", i)
		}
		if seen[cam.ID] {
			return fmt.Errorf("camera %q defined twice", cam.ID)
		}
		seen[cam.ID] = true
		if cam.Width <= 0 || cam.Height <= 0 {
			return fmt.Errorf("camera %q: image size must be positive, got %dx%d", cam.ID, cam.Width, cam.Height)
		}
		if len(cam.Translation) != 3 {
			return fmt.Errorf("camera %q: translation needs 3 values, got %d", cam.ID, len(cam.Translation))
		}
		switch {
		case len(cam.Rotation) == 9:
		case len(cam.RotationVector) == 3:
		default:
			return fmt.Errorf("camera %q: need rotation (9 values) or rvec (3 values)", cam.ID)
		}
		if len(cam.Distortion) > 5 {
			return fmt.Errorf("camera %q: at most 5 distortion coefficients, got %d", cam.ID, len(cam.Distortion))
		}
	}
	return nil
}

// Size returns the image-plane size.
func (c CameraCalibration) Size() image.Point { return image.Pt(c.Width, c.Height) }

// Pinhole builds the projection model described by this entry.
func (c CameraCalibration) Pinhole() (*Pinhole, error) {
	var rot [9]float64
	if len(c.Rotation) == 9 {
		copy(rot[:], c.Rotation)
	} else if len(c.RotationVector) == 3 {
		rot = RotationFromRodrigues([3]float64{c.RotationVector[0], c.RotationVector[1], c.RotationVector[2]})
	} else {
		return nil, fmt.Errorf("camera %q: missing rotation", c.ID)
	}

	var coeffs [5]float64
	copy(coeffs[:], c.Distortion)

	var trans [3]float64
	copy(trans[:], c.Translation)

	p, err := NewPinhole(
		Intrinsics{Fx: c.Fx, Fy: c.Fy, Cx: c.Cx, Cy: c.Cy},
		Distortion{K1: coeffs[0], K2: coeffs[1], P1: coeffs[2], P2: coeffs[3], K3: coeffs[4]},
		rot, trans,
	)
	if err != nil {
		return nil, fmt.Errorf("camera %q: %w", c.ID, err)
	}
	return p, nil
}
