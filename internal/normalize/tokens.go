package normalize

import "strings"

// resolutionRank orders known resolution tags from lowest to highest. The
// scorer awards a bonus for the best tag only, so the rank doubles as the
// bonus value.
var resolutionRank = map[string]int{
	"480p":  1,
	"576p":  2,
	"720p":  3,
	"1080p": 4,
	"1440p": 4,
	"2160p": 5,
	"4k":    5,
	"uhd":   5,
}

// qualityTokens are source/codec markers uploaders append to filenames. They
// never carry title meaning and are stripped during normalization.
var qualityTokens = map[string]struct{}{
	"bluray": {}, "blu": {}, "ray": {}, "bdrip": {}, "brrip": {}, "bd": {},
	"webrip": {}, "webdl": {}, "web": {}, "dl": {}, "hdtv": {}, "dvdrip": {},
	"hdrip": {}, "remux": {}, "hdr": {}, "hdr10": {}, "dv": {}, "sdr": {},
	"hevc": {}, "avc": {}, "h264": {}, "h265": {}, "x264": {}, "x265": {},
	"aac": {}, "ac3": {}, "eac3": {}, "dts": {}, "ddp": {}, "atmos": {},
	"10bit": {}, "8bit": {}, "proper": {}, "repack": {}, "internal": {},
	"complete": {}, "rip": {},
}

// localizationRank orders subtitle/dub markers for the scorer bonus. Like
// resolutions, only the best marker counts.
var localizationRank = map[string]int{
	"subbed":     2,
	"dubbed":     2,
	"vf":         2,
	"vff":        2,
	"vfq":        2,
	"french":     2,
	"truefrench": 3,
	"subfrench":  2,
	"vosta":      3,
	"vostfr":     3,
	"dual":       4,
	"multi":      5,
}

// fileExtensions lists payload suffixes stripped before any other cleaning.
// Dots inside release names are separators, so only known extensions go.
var fileExtensions = map[string]struct{}{
	"mkv": {}, "mp4": {}, "avi": {}, "mov": {}, "wmv": {}, "flv": {},
	"ts": {}, "m2ts": {}, "iso": {}, "webm": {}, "mpg": {}, "mpeg": {},
	"zip": {}, "rar": {}, "7z": {}, "tar": {}, "gz": {},
	"srt": {}, "ass": {}, "sub": {}, "mp3": {}, "flac": {}, "m4a": {},
}

// IsResolutionTag reports whether token is a known resolution marker.
func IsResolutionTag(token string) bool {
	_, ok := resolutionRank[strings.ToLower(token)]
	return ok
}

// ResolutionBonus returns the scorer bonus for a resolution tag, or 0.
func ResolutionBonus(token string) int {
	return resolutionRank[strings.ToLower(token)]
}

// IsLocalizationTag reports whether token is a known subtitle/dub marker.
func IsLocalizationTag(token string) bool {
	_, ok := localizationRank[strings.ToLower(token)]
	return ok
}

// LocalizationBonus returns the scorer bonus for a localization tag, or 0.
func LocalizationBonus(token string) int {
	return localizationRank[strings.ToLower(token)]
}

func isQualityToken(token string) bool {
	if _, ok := qualityTokens[token]; ok {
		return true
	}
	return IsResolutionTag(token)
}

func isKnownExtension(ext string) bool {
	_, ok := fileExtensions[strings.ToLower(ext)]
	return ok
}
