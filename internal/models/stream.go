package models

import (
	"regexp"
	"strings"
)

// Quality is the resolution label attached to a StreamLink
type Quality string

const (
	Quality1080    Quality = "1080"
	Quality720     Quality = "720"
	Quality480     Quality = "480"
	Quality360     Quality = "360"
	QualityAuto    Quality = "auto"
	QualityUnknown Quality = "unknown"
)

// defaultQualityOrder is walked round-robin when upstream does not label links.
var defaultQualityOrder = []Quality{Quality1080, Quality720, Quality480, Quality360}

// DefaultQuality returns the quality assigned to the i-th unlabelled link.
func DefaultQuality(i int) Quality {
	if i < 0 {
		i = -i
	}
	return defaultQualityOrder[i%len(defaultQualityOrder)]
}

var resolutionRe = regexp.MustCompile(`(\d{3,4})\s*[pP]?`)

// ParseQuality maps an upstream resolution label ("1080p", "720", "hls",
// "auto") to a Quality. ok is false when the label carries no usable
// information.
func ParseQuality(label string) (Quality, bool) {
	l := strings.ToLower(strings.TrimSpace(label))
	switch l {
	case "":
		return "", false
	case "auto", "hls", "m3u8", "adaptive", "default":
		return QualityAuto, true
	}
	if m := resolutionRe.FindStringSubmatch(l); m != nil {
		switch m[1] {
		case "1080":
			return Quality1080, true
		case "720":
			return Quality720, true
		case "480":
			return Quality480, true
		case "360":
			return Quality360, true
		}
	}
	return "", false
}

// AssignQualities labels len(labels) links: parsed labels win, anything
// unparseable gets the round-robin default for its position.
func AssignQualities(labels []string) []Quality {
	out := make([]Quality, len(labels))
	for i, l := range labels {
		if q, ok := ParseQuality(l); ok {
			out[i] = q
			continue
		}
		out[i] = DefaultQuality(i)
	}
	return out
}

// SubtitleTrack is an external subtitle file
type SubtitleTrack struct {
	URL   string
	Label string
}

// StreamLink is one playable URL
type StreamLink struct {
	URL             string
	Quality         Quality
	TranslationType TranslationType
}

// StreamServer groups the links decoded from one embed.
type StreamServer struct {
	ServerName      string
	EpisodeTitle    string
	RequiredHeaders map[string]string
	SubtitleTracks  []SubtitleTrack
	Links           []StreamLink
}

// Empty reports whether the server has nothing playable.
func (s StreamServer) Empty() bool { return len(s.Links) == 0 }

// CompactServers drops servers without links, preserving order.
func CompactServers(servers []StreamServer) []StreamServer {
	out := servers[:0:0]
	for _, s := range servers {
		if !s.Empty() {
			out = append(out, s)
		}
	}
	return out
}
