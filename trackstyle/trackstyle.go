// Package trackstyle assigns colors and icons to tracks so the client can
// render a composition without per-track styling input from the caller.
package trackstyle

import "strings"

// NamedColors are the colors accepted by the client's adaptive color
// renderer, preferred over hex since they look correct in light and dark
// mode alike.
var NamedColors = []string{
	"blue", "indigo", "purple", "pink", "red", "orange",
	"yellow", "green", "teal", "cyan", "mint", "gray",
}

var namedColorSet = func() map[string]bool {
	set := make(map[string]bool, len(NamedColors)+1)
	for _, c := range NamedColors {
		set[c] = true
	}
	set["grey"] = true
	return set
}()

// PaletteRotation is the fallback color order used when no role keyword
// matches a track name.
var PaletteRotation = append([]string(nil), NamedColors...)

// CompositionPalette is a perceptually-spaced hex palette for allocating one
// distinct color per instrument within a single composition. Colors are
// ordered to maximise contrast between adjacent entries; callers should pick
// in index order and only cycle after all entries are exhausted.
var CompositionPalette = []string{
	"#E87040", // amber/orange  (warm)
	"#4A9EE8", // sky blue      (cool)
	"#60C264", // sage green    (natural)
	"#B06FD8", // violet        (purple)
	"#E85D75", // rose          (warm red)
	"#40C4C0", // teal          (cyan)
	"#E8C040", // gold          (yellow)
	"#8C8CE8", // periwinkle    (blue-purple)
}

// roleColorMap maps a role/keyword substring to a preferred named color.
var roleColorMap = []struct {
	keyword string
	color   string
}{
	{"piano", "blue"}, {"keys", "blue"}, {"pads", "blue"}, {"pad", "blue"},
	{"synth", "indigo"}, {"electric piano", "indigo"}, {"rhodes", "indigo"},
	{"strings", "purple"}, {"orchestral", "purple"}, {"violin", "purple"},
	{"cello", "purple"}, {"viola", "purple"},
	{"vocal", "pink"}, {"vocals", "pink"}, {"choir", "pink"}, {"voice", "pink"},
	{"drums", "red"}, {"drum", "red"}, {"kick", "red"},
	{"brass", "orange"}, {"horns", "orange"}, {"trumpet", "orange"},
	{"trombone", "orange"}, {"horn", "orange"},
	{"guitar", "yellow"}, {"plucked", "yellow"},
	{"bass", "green"}, {"sub", "green"},
	{"woodwind", "teal"}, {"flute", "teal"}, {"clarinet", "teal"},
	{"saxophone", "teal"}, {"sax", "teal"},
	{"fx", "cyan"}, {"texture", "cyan"}, {"ambient", "cyan"}, {"atmosphere", "cyan"},
	{"perc", "mint"}, {"percussion", "mint"}, {"shaker", "mint"}, {"auxiliary", "mint"},
	{"utility", "gray"}, {"click", "gray"},
}

// iconKeywords maps a keyword substring to an SF Symbol icon name. Order
// matters: longer, more specific keywords must appear before shorter
// substrings they contain (e.g. "electric piano" before "piano").
var iconKeywords = []struct {
	keyword string
	icon    string
}{
	{"acoustic guitar", "guitars"},
	{"electric piano", "pianokeys.inverse"},

	{"drum", "instrument.drum"},
	{"percuss", "instrument.drum"},
	{"perc", "instrument.drum"},
	{"kit", "instrument.drum"},
	{"timpani", "instrument.drum"},
	{"kick", "instrument.drum"},
	{"snare", "instrument.drum"},
	{"hat", "instrument.drum"},
	{"cymbal", "instrument.drum"},

	{"bass", "guitars.fill"},

	{"synth", "pianokeys.inverse"},
	{"rhodes", "pianokeys.inverse"},

	{"organ", "pianokeys"},

	{"guitar", "guitars.fill"},
	{"banjo", "guitars.fill"},
	{"mandolin", "guitars.fill"},

	{"piano", "pianokeys"},
	{"key", "pianokeys"},
	{"keys", "pianokeys"},
	{"chord", "pianokeys"},
	{"clavi", "pianokeys"},

	{"pad", "waveform"},
	{"texture", "waveform"},
	{"ambient", "waveform"},

	{"harp", "instrument.harp"},

	{"string", "instrument.violin"},
	{"violin", "instrument.violin"},
	{"cello", "instrument.violin"},
	{"viola", "instrument.violin"},
	{"orchestra", "instrument.violin"},

	{"brass", "instrument.trumpet"},
	{"trumpet", "instrument.trumpet"},
	{"trombone", "instrument.trumpet"},
	{"horn", "instrument.trumpet"},
	{"tuba", "instrument.trumpet"},

	{"sax", "instrument.saxophone"},
	{"clarinet", "instrument.saxophone"},
	{"oboe", "instrument.saxophone"},
	{"reed", "instrument.saxophone"},

	{"flute", "instrument.flute"},
	{"pipe", "instrument.flute"},
	{"recorder", "instrument.flute"},

	{"vocal", "music.mic"},
	{"voice", "music.mic"},
	{"sing", "music.mic"},
	{"choir", "music.mic"},
	{"aah", "music.mic"},
	{"mic", "music.mic"},

	{"ensemble", "music.note.list"},
	{"harmony", "music.note.list"},

	{"bell", "instrument.xylophone"},
	{"marimba", "instrument.xylophone"},
	{"xylophone", "instrument.xylophone"},
	{"vibraphone", "instrument.xylophone"},
	{"mallet", "instrument.xylophone"},
	{"chrom", "instrument.xylophone"},

	{"fx", "sparkles"},
	{"effect", "sparkles"},
	{"atmosphere", "sparkles"},

	{"melody", "music.note"},
	{"lead", "music.note"},
	{"solo", "music.note"},
	{"arp", "music.quarternote.3"},
}

// DefaultIcon is returned when no keyword in the track name matches.
const DefaultIcon = "music.note"

// NormalizeColor validates and passes through a client-safe color value,
// returning "" if raw is neither a recognised named color nor a valid
// "#RRGGBB" hex string.
func NormalizeColor(raw string) string {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	if cleaned == "" {
		return ""
	}
	if namedColorSet[cleaned] {
		if cleaned == "grey" {
			return "gray"
		}
		return cleaned
	}
	trimmed := strings.TrimSpace(raw)
	if isHexColor(trimmed) {
		return trimmed
	}
	return ""
}

func isHexColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, c := range s[1:] {
		isHexDigit := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
		if !isHexDigit {
			return false
		}
	}
	return true
}

// ColorForRole picks a named color based on the track name, falling back to
// the palette rotation at rotationIndex when no keyword matches.
func ColorForRole(trackName string, rotationIndex int) string {
	lower := strings.ToLower(trackName)
	for _, entry := range roleColorMap {
		if strings.Contains(lower, entry.keyword) {
			return entry.color
		}
	}
	return PaletteRotation[rotationIndex%len(PaletteRotation)]
}

// AllocateColors assigns one hex color per instrument name, guaranteed not
// to repeat until CompositionPalette is exhausted. Order is preserved so
// adjacent instruments get maximally distinct colors.
func AllocateColors(instrumentNames []string) map[string]string {
	out := make(map[string]string, len(instrumentNames))
	for i, name := range instrumentNames {
		out[name] = CompositionPalette[i%len(CompositionPalette)]
	}
	return out
}

// InferIcon infers an SF Symbol icon name from keywords in trackName.
func InferIcon(trackName string) string {
	if trackName == "" {
		return DefaultIcon
	}
	lower := strings.ToLower(trackName)
	for _, entry := range iconKeywords {
		if strings.Contains(lower, entry.keyword) {
			return entry.icon
		}
	}
	return DefaultIcon
}

// Styling bundles the color and icon assigned to a single track.
type Styling struct {
	Color string
	Icon  string
}

// StylingFor returns both color and icon for a track name, falling back to
// the palette rotation at rotationIndex for the color when no role keyword
// matches.
func StylingFor(trackName string, rotationIndex int) Styling {
	return Styling{
		Color: ColorForRole(trackName, rotationIndex),
		Icon:  InferIcon(trackName),
	}
}
