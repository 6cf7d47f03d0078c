package postprocess

import (
	"regexp"
	"strings"

	"lhihi/internal/types"
)

// Payloads exclude both brackets so a partial marker cannot swallow a later one.
var markerPattern = regexp.MustCompile(`:::(image|youtube|generating_image)\[([^\[\]]*)\]:::`)

var (
	markerURL   = strings.NewReplacer("[", "%5B", "]", "%5D", "|", "%7C")
	markerTitle = strings.NewReplacer("[", "(", "]", ")")
)

// ParseSegments splits text into ordered segments. Well-formed image, youtube
// and generating_image markers become rich segments; everything else,
// including malformed markers, is kept as text. Adjacent text is merged.
func ParseSegments(text string) []types.Segment {
	var segs []types.Segment
	appendText := func(s string) {
		if s == "" {
			return
		}
		if n := len(segs); n > 0 && segs[n-1].Kind == types.SegmentText {
			segs[n-1].Text += s
			return
		}
		segs = append(segs, types.Segment{Kind: types.SegmentText, Text: s})
	}

	last := 0
	for _, m := range markerPattern.FindAllStringSubmatchIndex(text, -1) {
		kind, payload := text[m[2]:m[3]], text[m[4]:m[5]]
		seg, ok := markerSegment(kind, payload)
		if !ok {
			continue
		}
		appendText(text[last:m[0]])
		segs = append(segs, seg)
		last = m[1]
	}
	appendText(text[last:])
	return segs
}

func markerSegment(kind, payload string) (types.Segment, bool) {
	if strings.Contains(payload, ":::") {
		return types.Segment{}, false
	}
	switch kind {
	case "image":
		if payload == "" || strings.Contains(payload, "|") {
			return types.Segment{}, false
		}
		return types.Segment{Kind: types.SegmentImage, URL: payload}, true
	case "generating_image":
		if payload == "" || strings.Contains(payload, "|") {
			return types.Segment{}, false
		}
		return types.Segment{Kind: types.SegmentPendingImage, Token: payload}, true
	case "youtube":
		// URL|TITLE|THUMB; the title may itself contain '|'.
		first := strings.Index(payload, "|")
		lastSep := strings.LastIndex(payload, "|")
		if first < 0 || first == lastSep || first == 0 {
			return types.Segment{}, false
		}
		return types.Segment{
			Kind:         types.SegmentVideo,
			URL:          payload[:first],
			Title:        payload[first+1 : lastSep],
			ThumbnailURL: payload[lastSep+1:],
		}, true
	}
	return types.Segment{}, false
}

// RenderSegments is the inverse of ParseSegments.
func RenderSegments(segs []types.Segment) string {
	var sb strings.Builder
	for _, s := range segs {
		switch s.Kind {
		case types.SegmentImage:
			sb.WriteString(":::image[" + s.URL + "]:::")
		case types.SegmentVideo:
			sb.WriteString(":::youtube[" + s.URL + "|" + s.Title + "|" + s.ThumbnailURL + "]:::")
		case types.SegmentPendingImage:
			sb.WriteString(":::generating_image[" + s.Token + "]:::")
		default:
			sb.WriteString(s.Text)
		}
	}
	return sb.String()
}

// ImageMarker formats an image URL the way ParseSegments recognises it.
func ImageMarker(url string) string {
	return RenderSegments([]types.Segment{{Kind: types.SegmentImage, URL: markerField(markerURL, url)}})
}

// VideoMarker formats a video reference the way ParseSegments recognises it.
// Brackets in the title become parentheses; URLs are percent-escaped.
func VideoMarker(url, title, thumbnail string) string {
	return RenderSegments([]types.Segment{{
		Kind:         types.SegmentVideo,
		URL:          markerField(markerURL, url),
		Title:        markerField(markerTitle, title),
		ThumbnailURL: markerField(markerURL, thumbnail),
	}})
}

func markerField(r *strings.Replacer, s string) string {
	s = r.Replace(s)
	for strings.Contains(s, ":::") {
		s = strings.ReplaceAll(s, ":::", "::")
	}
	return s
}
