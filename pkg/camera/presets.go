package camera

// Preset names for common capture formats
const (
	PresetDefault = "default"
	PresetLow     = "low"
	Preset720p    = "720p"
	Preset1080p   = "1080p"
	Preset4K      = "4k"
	PresetRaw     = "raw"
)

// Presets returns all named capture formats.
func Presets() map[string]CameraFormat {
	return map[string]CameraFormat{
		PresetDefault: DefaultFormat(),
		PresetLow:     LowFormat(),
		Preset720p:    HD720Format(),
		Preset1080p:   HD1080Format(),
		Preset4K:      UHD4KFormat(),
		PresetRaw:     RawFormat(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetDefault,
		PresetLow,
		Preset720p,
		Preset1080p,
		Preset4K,
		PresetRaw,
	}
}

// GetPreset returns a preset format by name, or nil if not found.
func GetPreset(name string) *CameraFormat {
	presets := Presets()
	if format, ok := presets[name]; ok {
		return &format
	}
	return nil
}

// DefaultFormat returns VGA MJPEG at 30fps, which almost every UVC
// camera supports.
func DefaultFormat() CameraFormat {
	return CameraFormat{
		Resolution:  Resolution{Width: 640, Height: 480},
		FrameFormat: FormatMJPEG,
		FrameRate:   30,
	}
}

// LowFormat returns QVGA for constrained links.
func LowFormat() CameraFormat {
	format := DefaultFormat()
	format.Resolution = Resolution{Width: 320, Height: 240}
	return format
}

// HD720Format returns 720p HD.
// Good balance of quality and performance.
func HD720Format() CameraFormat {
	format := DefaultFormat()
	format.Resolution = Resolution{Width: 1280, Height: 720}
	return format
}

// HD1080Format returns 1080p Full HD.
func HD1080Format() CameraFormat {
	format := DefaultFormat()
	format.Resolution = Resolution{Width: 1920, Height: 1080}
	return format
}

// UHD4KFormat returns 4K UHD.
// Maximum quality, higher CPU usage.
func UHD4KFormat() CameraFormat {
	format := DefaultFormat()
	format.Resolution = Resolution{Width: 3840, Height: 2160}
	format.FrameRate = 15 // Lower framerate for 4K
	return format
}

// RawFormat returns uncompressed BGR at VGA, for pipelines that decode
// frames themselves.
func RawFormat() CameraFormat {
	format := DefaultFormat()
	format.FrameFormat = FormatBGR
	return format
}
