package vfs

import "runtime"

// Platform identifies the host OS for timestamp enrichment. It is computed
// once at startup with DetectPlatform and passed to every RealFile.
type Platform int

const (
	PlatformOther Platform = iota
	PlatformLinux
	PlatformDarwin
	PlatformWindows
)

func (p Platform) String() string {
	switch p {
	case PlatformLinux:
		return "linux"
	case PlatformDarwin:
		return "darwin"
	case PlatformWindows:
		return "windows"
	default:
		return "other"
	}
}

// DetectPlatform maps runtime.GOOS to a Platform.
func DetectPlatform() Platform {
	return platformFor(runtime.GOOS)
}

func platformFor(goos string) Platform {
	switch goos {
	case "linux", "android":
		return PlatformLinux
	case "darwin", "ios":
		return PlatformDarwin
	case "windows":
		return PlatformWindows
	default:
		return PlatformOther
	}
}

// supportsTimes reports whether this build can look up OS timestamps for p.
func (p Platform) supportsTimes() bool {
	return p == nativePlatform
}
