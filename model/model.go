// Package model manages the whisper.cpp model files behind the local
// fallback recognizer: a small catalog of known ggml builds and a
// fetcher that installs them under the data directory.
package model

import (
	"path/filepath"
	"strings"
)

// Model is one downloadable whisper.cpp model build.
type Model struct {
	ID       string
	FileName string
	URL      string
	Size     string // approximate download size
}

// Catalog lists the known ggml models, smallest first. Memos are short
// 16kHz mono clips; tiny and base are usually enough.
var Catalog = []Model{
	{
		ID:       "tiny.en",
		FileName: "ggml-tiny.en.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny.en.bin",
		Size:     "~75 MB",
	},
	{
		ID:       "tiny",
		FileName: "ggml-tiny.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny.bin",
		Size:     "~75 MB",
	},
	{
		ID:       "base.en",
		FileName: "ggml-base.en.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.en.bin",
		Size:     "~142 MB",
	},
	{
		ID:       "base",
		FileName: "ggml-base.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.bin",
		Size:     "~142 MB",
	},
	{
		ID:       "small.en",
		FileName: "ggml-small.en.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small.en.bin",
		Size:     "~466 MB",
	},
	{
		ID:       "small",
		FileName: "ggml-small.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small.bin",
		Size:     "~466 MB",
	},
	{
		ID:       "medium.en",
		FileName: "ggml-medium.en.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-medium.en.bin",
		Size:     "~1.5 GB",
	},
	{
		ID:       "medium",
		FileName: "ggml-medium.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-medium.bin",
		Size:     "~1.5 GB",
	},
	{
		ID:       "large-v3",
		FileName: "ggml-large-v3.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-large-v3.bin",
		Size:     "~2.9 GB",
	},
	{
		ID:       "large-v3-turbo",
		FileName: "ggml-large-v3-turbo.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-large-v3-turbo.bin",
		Size:     "~1.6 GB",
	},
}

// ByID finds a catalog model. Nil means unknown.
func ByID(id string) *Model {
	for i := range Catalog {
		if Catalog[i].ID == id {
			return &Catalog[i]
		}
	}
	return nil
}

// Resolve maps a configured model value to a file path. Values that
// look like paths pass through untouched; bare catalog ids resolve to
// their install location under dir.
func Resolve(value, dir string) string {
	if value == "" {
		return ""
	}
	if strings.ContainsAny(value, `/\`) || strings.HasSuffix(value, ".bin") {
		return value
	}
	if m := ByID(value); m != nil {
		return filepath.Join(dir, m.FileName)
	}
	return value
}
