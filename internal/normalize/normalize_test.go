package normalize

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		title   string
		season  int
		episode int
		year    int
		tags    []string
	}{
		{
			name:  "plain movie with year and quality",
			raw:   "The Shadows Edge (2025) 1080p WEB-DL",
			title: "the shadows edge",
			year:  2025,
			tags:  []string{"1080p", "web", "dl"},
		},
		{
			name:  "dotted release keeps bare year in title",
			raw:   "The.Shadows.Edge.2025.1080p.WEB-DL.mkv",
			title: "the shadows edge 2025",
			year:  2025,
			tags:  []string{"1080p", "web", "dl"},
		},
		{
			name:  "possessive reduces to stem",
			raw:   "The Shadow's Edge 2025",
			title: "the shadow edge 2025",
			year:  2025,
		},
		{
			name:  "plural possessive keeps trailing s",
			raw:   "The Shadows' Edge.mkv",
			title: "the shadows edge",
		},
		{
			name:    "series marker splits title from tags",
			raw:     "show.name.s01e05.vostfr.720p.mkv",
			title:   "show name",
			season:  1,
			episode: 5,
			tags:    []string{"vostfr", "720p"},
		},
		{
			name:    "spaced marker with multi tag",
			raw:     "Show Name S01E05 MULTI 2160p",
			title:   "show name",
			season:  1,
			episode: 5,
			tags:    []string{"multi", "2160p"},
		},
		{
			name:    "cross style marker",
			raw:     "show.name.1x05.final.mp4",
			title:   "show name",
			season:  1,
			episode: 5,
		},
		{
			name:    "episode only marker",
			raw:     "some.anime.ep12.french.mkv",
			title:   "some anime",
			episode: 12,
			tags:    []string{"french"},
		},
		{
			name:   "season pack",
			raw:    "Pack.Name.S02.MULTI.1080p",
			title:  "pack name",
			season: 2,
			tags:   []string{"multi", "1080p"},
		},
		{
			name:  "realistic scene name",
			raw:   "Ocean's.Eleven.2001.720p.BluRay.x264.mkv",
			title: "ocean eleven 2001",
			year:  2001,
			tags:  []string{"720p", "bluray", "x264"},
		},
		{
			name:  "unknown extension is a token",
			raw:   "deep.blue",
			title: "deep blue",
		},
		{
			name:  "quality only normalizes to empty title",
			raw:   "1080p.mkv",
			title: "",
			tags:  []string{"1080p"},
		},
		{
			name:  "mid string parenthesized year",
			raw:   "Heat (1995) Remastered",
			title: "heat remastered",
			year:  1995,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.raw)
			if got.Title != tt.title {
				t.Errorf("Title = %q, want %q", got.Title, tt.title)
			}
			if got.Season != tt.season {
				t.Errorf("Season = %d, want %d", got.Season, tt.season)
			}
			if got.Episode != tt.episode {
				t.Errorf("Episode = %d, want %d", got.Episode, tt.episode)
			}
			if got.Year != tt.year {
				t.Errorf("Year = %d, want %d", got.Year, tt.year)
			}
			if len(got.Tags) != 0 || len(tt.tags) != 0 {
				if !reflect.DeepEqual(got.Tags, tt.tags) {
					t.Errorf("Tags = %v, want %v", got.Tags, tt.tags)
				}
			}
		})
	}
}

func TestParseIsIdempotent(t *testing.T) {
	raws := []string{
		"The Shadows Edge (2025) 1080p WEB-DL",
		"The.Shadow's.Edge.2025.MULTI.2160p.mkv",
		"show.name.s01e05.vostfr.720p.mkv",
		"Ocean's.Eleven.2001.720p.BluRay.x264.mkv",
		"plain title with nothing special",
		"",
	}
	for _, raw := range raws {
		first := Parse(raw)
		second := Parse(first.Title)
		if second.Title != first.Title {
			t.Errorf("Parse(%q): title %q reparsed to %q", raw, first.Title, second.Title)
		}
	}
}

func TestParseDedupesTags(t *testing.T) {
	got := Parse("name.1080p.s01e02.1080p.multi.multi")
	want := []string{"1080p", "multi"}
	if !reflect.DeepEqual(got.Tags, want) {
		t.Errorf("Tags = %v, want %v", got.Tags, want)
	}
}

func TestSECode(t *testing.T) {
	tests := []struct {
		name    string
		season  int
		episode int
		want    string
	}{
		{"both", 2, 5, "S02E05"},
		{"season only", 2, 0, "S02"},
		{"episode only", 0, 12, "E12"},
		{"none", 0, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Result{Season: tt.season, Episode: tt.episode}
			if got := r.SECode(); got != tt.want {
				t.Errorf("SECode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("The Quick, Brown Fox! 1080p")
	want := []string{"the", "quick", "brown", "fox", "1080p"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize() = %v, want %v", got, want)
	}
	if out := Tokenize(""); len(out) != 0 {
		t.Errorf("Tokenize(empty) = %v, want none", out)
	}
}

func TestResolutionBonusOrdering(t *testing.T) {
	if !IsResolutionTag("2160p") || IsResolutionTag("x264") {
		t.Fatal("resolution tag detection is wrong")
	}
	if ResolutionBonus("2160p") <= ResolutionBonus("720p") {
		t.Error("2160p should outrank 720p")
	}
	if ResolutionBonus("4k") != ResolutionBonus("2160p") {
		t.Error("4k and 2160p should rank equally")
	}
	if ResolutionBonus("unknown") != 0 {
		t.Error("unknown token should carry no bonus")
	}
}

func TestLocalizationBonusOrdering(t *testing.T) {
	if !IsLocalizationTag("vostfr") || IsLocalizationTag("1080p") {
		t.Fatal("localization tag detection is wrong")
	}
	if LocalizationBonus("multi") <= LocalizationBonus("vostfr") {
		t.Error("multi should outrank vostfr")
	}
}
