package extract

import (
	"fmt"
)

// Set holds one extractor per input kind.
type Set struct {
	Image   Extractor
	PDF     Extractor
	Audio   Extractor
	YouTube Extractor
	Text    Extractor
}

func (s Set) For(k Kind) Extractor {
	var e Extractor
	switch k {
	case KindImage:
		e = s.Image
	case KindPDF:
		e = s.PDF
	case KindAudio:
		e = s.Audio
	case KindYouTube:
		e = s.YouTube
	case KindText:
		e = s.Text
		if e == nil {
			e = Text{}
		}
	}
	if e == nil {
		return Unavailable{Kind: k, Reason: fmt.Sprintf("no %s extractor configured", k)}
	}
	return e
}

// Source detects an upload's kind and builds the matching Source.
func (s Set) Source(filename string, data []byte) (Kind, Source, error) {
	kind, err := DetectKind(filename, data)
	if err != nil {
		return "", Source{}, err
	}
	src := Source{Filename: filename, Data: data}
	if kind == KindText {
		src.Text = string(data)
	}
	return kind, src, nil
}
