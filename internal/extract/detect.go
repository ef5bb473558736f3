package extract

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var extKinds = map[string]Kind{
	".png":  KindImage,
	".jpg":  KindImage,
	".jpeg": KindImage,
	".bmp":  KindImage,
	".gif":  KindImage,
	".pdf":  KindPDF,
	".mp3":  KindAudio,
	".wav":  KindAudio,
	".m4a":  KindAudio,
	".ogg":  KindAudio,
	".flac": KindAudio,
	".txt":  KindText,
	".md":   KindText,
}

// DetectKind decides how an upload is extracted. The file extension wins;
// content sniffing only covers uploads without a known extension.
func DetectKind(filename string, data []byte) (Kind, error) {
	if k, ok := extKinds[strings.ToLower(filepath.Ext(filename))]; ok {
		return k, nil
	}
	mime := detectMIME(data)
	switch {
	case strings.HasPrefix(mime, "image/"):
		return KindImage, nil
	case strings.HasPrefix(mime, "application/pdf"):
		return KindPDF, nil
	case strings.HasPrefix(mime, "audio/"):
		return KindAudio, nil
	case strings.HasPrefix(mime, "text/plain"):
		return KindText, nil
	default:
		return "", ErrUnsupportedKind
	}
}

// detectMIME tries stdlib sniffing first and falls back to the broader
// mimetype table when the result is ambiguous.
func detectMIME(head []byte) string {
	if len(head) == 0 {
		return "application/octet-stream"
	}
	if len(head) > 3072 {
		head = head[:3072]
	}
	mt := http.DetectContentType(head)
	if mt != "application/octet-stream" {
		return mt
	}
	return mimetype.Detect(head).String()
}
