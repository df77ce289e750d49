package audio

import (
	"net/url"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var formatMime = map[string]string{
	"wav":  "audio/wav",
	"wave": "audio/wav",
	"mp3":  "audio/mpeg",
	"mpeg": "audio/mpeg",
	"m4a":  "audio/mp4",
	"mp4":  "audio/mp4",
	"aac":  "audio/aac",
	"webm": "audio/webm",
	"ogg":  "audio/ogg",
	"opus": "audio/ogg",
	"flac": "audio/flac",
	"amr":  "audio/amr",
}

var mimeExtension = map[string]string{
	"audio/wav":  ".wav",
	"audio/mpeg": ".mp3",
	"audio/mp4":  ".m4a",
	"audio/aac":  ".aac",
	"audio/webm": ".webm",
	"audio/ogg":  ".ogg",
	"audio/flac": ".flac",
	"audio/amr":  ".amr",
}

// MimeForFormat maps a declared format ("webm", ".m4a", "audio/wav") to a
// MIME type. Unknown formats return "".
func MimeForFormat(format string) string {
	f := strings.ToLower(strings.TrimSpace(format))
	if f == "" {
		return ""
	}
	if strings.HasPrefix(f, "audio/") {
		if i := strings.IndexByte(f, ';'); i >= 0 {
			f = strings.TrimSpace(f[:i])
		}
		if f == "audio/x-wav" || f == "audio/wave" {
			return "audio/wav"
		}
		return f
	}
	return formatMime[strings.TrimPrefix(f, ".")]
}

func extensionFor(mimeType string) string {
	if ext, ok := mimeExtension[mimeType]; ok {
		return ext
	}
	return ".bin"
}

func mimeFromPath(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	if m := MimeForFormat(path.Ext(p)); m != "" {
		return m
	}
	return DefaultMimeType
}

// sniff identifies audio from its leading bytes. Containers that mimetype
// reports as video or generic application types are narrowed to their audio
// form.
func sniff(data []byte) string {
	m := mimetype.Detect(data)
	switch {
	case m.Is("video/webm"):
		return "audio/webm"
	case m.Is("application/ogg"):
		return "audio/ogg"
	case m.Is("video/mp4"), m.Is("audio/x-m4a"):
		return "audio/mp4"
	case m.Is("audio/x-wav"), m.Is("audio/wav"):
		return "audio/wav"
	case m.Is("audio/x-flac"):
		return "audio/flac"
	}
	if s := m.String(); strings.HasPrefix(s, "audio/") {
		if i := strings.IndexByte(s, ';'); i >= 0 {
			s = s[:i]
		}
		return s
	}
	return ""
}
