package utils

import (
	"path"
	"path/filepath"
	"strings"
)

const (
	sampleName  = "sample"
	previewName = "preview.mp3"
	fullName    = "full.mp3"
)

// SupportAudioExt checks if voice sample ext is supported
func SupportAudioExt(ext string) bool {
	return ext == ".wav" || ext == ".mp3" || ext == ".m4a" || ext == ".webm" || ext == ".ogg"
}

// AudioExt returns normalized file extension
func AudioExt(fileName string) string {
	return strings.ToLower(filepath.Ext(fileName))
}

// SampleKey returns storage key for the voice sample of the song
func SampleKey(id, fileName string) string {
	return path.Join(id, sampleName+AudioExt(fileName))
}

// PreviewKey returns storage key for the preview audio
func PreviewKey(id string) string {
	return path.Join(id, previewName)
}

// FullKey returns storage key for the full song audio
func FullKey(id string) string {
	return path.Join(id, fullName)
}

// ParamTrue - returns true if string param indicates true value
func ParamTrue(prm string) bool {
	return strings.ToLower(prm) == "true" || prm == "1"
}
