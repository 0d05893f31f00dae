// Package gmguidance supplies General MIDI program guidance for instrument
// roles. It is advisory only: guidance text is attached to an
// InstrumentContract for prompting purposes and is excluded from contract
// hashing.
package gmguidance

import (
	"strconv"
	"strings"
)

// Program describes one General MIDI program number.
type Program struct {
	Number   int
	Name     string
	Category string
	Aliases  []string
}

// DrumChannel is the MIDI channel (1-indexed, GM convention) reserved for
// percussion across the whole General MIDI standard.
const DrumChannel = 10

// Programs is the full GM 0-127 program table, grouped by the standard's
// sixteen instrument categories. Program numbers are zero-indexed per the
// GM spec (Acoustic Grand Piano = 0).
var Programs = []Program{
	// Piano (0-7)
	{0, "Acoustic Grand Piano", "Piano", []string{"piano", "grand piano", "acoustic piano"}},
	{1, "Bright Acoustic Piano", "Piano", []string{"bright piano"}},
	{2, "Electric Grand Piano", "Piano", []string{"electric grand"}},
	{3, "Honky-tonk Piano", "Piano", []string{"honky-tonk", "honky tonk"}},
	{4, "Electric Piano 1", "Piano", []string{"electric piano", "rhodes", "ep"}},
	{5, "Electric Piano 2", "Piano", []string{"electric piano 2", "dx piano", "fm piano"}},
	{6, "Harpsichord", "Piano", []string{"harpsichord"}},
	{7, "Clavinet", "Piano", []string{"clavinet", "clavi"}},

	// Chromatic Percussion (8-15)
	{8, "Celesta", "Chromatic Percussion", []string{"celesta"}},
	{9, "Glockenspiel", "Chromatic Percussion", []string{"glockenspiel"}},
	{10, "Music Box", "Chromatic Percussion", []string{"music box"}},
	{11, "Vibraphone", "Chromatic Percussion", []string{"vibraphone", "vibes"}},
	{12, "Marimba", "Chromatic Percussion", []string{"marimba"}},
	{13, "Xylophone", "Chromatic Percussion", []string{"xylophone"}},
	{14, "Tubular Bells", "Chromatic Percussion", []string{"tubular bells", "bells"}},
	{15, "Dulcimer", "Chromatic Percussion", []string{"dulcimer"}},

	// Organ (16-23)
	{16, "Drawbar Organ", "Organ", []string{"organ", "drawbar organ", "hammond"}},
	{17, "Percussive Organ", "Organ", []string{"percussive organ"}},
	{18, "Rock Organ", "Organ", []string{"rock organ"}},
	{19, "Church Organ", "Organ", []string{"church organ", "pipe organ"}},
	{20, "Reed Organ", "Organ", []string{"reed organ"}},
	{21, "Accordion", "Organ", []string{"accordion"}},
	{22, "Harmonica", "Organ", []string{"harmonica"}},
	{23, "Tango Accordion", "Organ", []string{"tango accordion", "bandoneon"}},

	// Guitar (24-31)
	{24, "Acoustic Guitar (nylon)", "Guitar", []string{"nylon guitar", "classical guitar"}},
	{25, "Acoustic Guitar (steel)", "Guitar", []string{"acoustic guitar", "steel guitar"}},
	{26, "Electric Guitar (jazz)", "Guitar", []string{"jazz guitar"}},
	{27, "Electric Guitar (clean)", "Guitar", []string{"clean guitar", "electric guitar"}},
	{28, "Electric Guitar (muted)", "Guitar", []string{"muted guitar"}},
	{29, "Overdriven Guitar", "Guitar", []string{"overdriven guitar", "crunch guitar"}},
	{30, "Distortion Guitar", "Guitar", []string{"distortion guitar", "distorted guitar"}},
	{31, "Guitar Harmonics", "Guitar", []string{"guitar harmonics"}},

	// Bass (32-39)
	{32, "Acoustic Bass", "Bass", []string{"acoustic bass", "upright bass", "double bass"}},
	{33, "Electric Bass (finger)", "Bass", []string{"bass", "finger bass", "electric bass"}},
	{34, "Electric Bass (pick)", "Bass", []string{"pick bass"}},
	{35, "Fretless Bass", "Bass", []string{"fretless bass"}},
	{36, "Slap Bass 1", "Bass", []string{"slap bass"}},
	{37, "Slap Bass 2", "Bass", []string{"slap bass 2"}},
	{38, "Synth Bass 1", "Bass", []string{"synth bass", "sub bass", "sub"}},
	{39, "Synth Bass 2", "Bass", []string{"synth bass 2"}},

	// Strings (40-47)
	{40, "Violin", "Strings", []string{"violin"}},
	{41, "Viola", "Strings", []string{"viola"}},
	{42, "Cello", "Strings", []string{"cello"}},
	{43, "Contrabass", "Strings", []string{"contrabass"}},
	{44, "Tremolo Strings", "Strings", []string{"tremolo strings"}},
	{45, "Pizzicato Strings", "Strings", []string{"pizzicato"}},
	{46, "Orchestral Harp", "Strings", []string{"harp"}},
	{47, "Timpani", "Strings", []string{"timpani"}},

	// Ensemble (48-55)
	{48, "String Ensemble 1", "Ensemble", []string{"strings", "string ensemble", "orchestral strings"}},
	{49, "String Ensemble 2", "Ensemble", []string{"string ensemble 2", "slow strings"}},
	{50, "Synth Strings 1", "Ensemble", []string{"synth strings"}},
	{51, "Synth Strings 2", "Ensemble", []string{"synth strings 2"}},
	{52, "Choir Aahs", "Ensemble", []string{"choir", "aahs", "choir aah"}},
	{53, "Voice Oohs", "Ensemble", []string{"voice oohs", "oohs"}},
	{54, "Synth Voice", "Ensemble", []string{"synth voice", "vocal synth"}},
	{55, "Orchestra Hit", "Ensemble", []string{"orchestra hit"}},

	// Brass (56-63)
	{56, "Trumpet", "Brass", []string{"trumpet"}},
	{57, "Trombone", "Brass", []string{"trombone"}},
	{58, "Tuba", "Brass", []string{"tuba"}},
	{59, "Muted Trumpet", "Brass", []string{"muted trumpet"}},
	{60, "French Horn", "Brass", []string{"french horn", "horn"}},
	{61, "Brass Section", "Brass", []string{"brass", "brass section", "horns"}},
	{62, "Synth Brass 1", "Brass", []string{"synth brass"}},
	{63, "Synth Brass 2", "Brass", []string{"synth brass 2"}},

	// Reed (64-71)
	{64, "Soprano Sax", "Reed", []string{"soprano sax"}},
	{65, "Alto Sax", "Reed", []string{"alto sax"}},
	{66, "Tenor Sax", "Reed", []string{"tenor sax", "sax", "saxophone"}},
	{67, "Baritone Sax", "Reed", []string{"baritone sax", "bari sax"}},
	{68, "Oboe", "Reed", []string{"oboe"}},
	{69, "English Horn", "Reed", []string{"english horn"}},
	{70, "Bassoon", "Reed", []string{"bassoon"}},
	{71, "Clarinet", "Reed", []string{"clarinet", "reed"}},

	// Pipe (72-79)
	{72, "Piccolo", "Pipe", []string{"piccolo"}},
	{73, "Flute", "Pipe", []string{"flute"}},
	{74, "Recorder", "Pipe", []string{"recorder"}},
	{75, "Pan Flute", "Pipe", []string{"pan flute"}},
	{76, "Blown Bottle", "Pipe", []string{"blown bottle"}},
	{77, "Shakuhachi", "Pipe", []string{"shakuhachi"}},
	{78, "Whistle", "Pipe", []string{"whistle"}},
	{79, "Ocarina", "Pipe", []string{"ocarina", "pipe"}},

	// Synth Lead (80-87)
	{80, "Lead 1 (square)", "Synth Lead", []string{"synth lead", "square lead", "lead synth"}},
	{81, "Lead 2 (sawtooth)", "Synth Lead", []string{"sawtooth lead", "saw lead"}},
	{82, "Lead 3 (calliope)", "Synth Lead", []string{"calliope lead"}},
	{83, "Lead 4 (chiff)", "Synth Lead", []string{"chiff lead"}},
	{84, "Lead 5 (charang)", "Synth Lead", []string{"charang"}},
	{85, "Lead 6 (voice)", "Synth Lead", []string{"lead voice"}},
	{86, "Lead 7 (fifths)", "Synth Lead", []string{"fifths lead"}},
	{87, "Lead 8 (bass + lead)", "Synth Lead", []string{"bass and lead"}},

	// Synth Pad (88-95)
	{88, "Pad 1 (new age)", "Synth Pad", []string{"pad", "new age pad", "synth pad"}},
	{89, "Pad 2 (warm)", "Synth Pad", []string{"warm pad"}},
	{90, "Pad 3 (polysynth)", "Synth Pad", []string{"polysynth pad"}},
	{91, "Pad 4 (choir)", "Synth Pad", []string{"choir pad"}},
	{92, "Pad 5 (bowed)", "Synth Pad", []string{"bowed pad"}},
	{93, "Pad 6 (metallic)", "Synth Pad", []string{"metallic pad"}},
	{94, "Pad 7 (halo)", "Synth Pad", []string{"halo pad"}},
	{95, "Pad 8 (sweep)", "Synth Pad", []string{"sweep pad"}},

	// Synth Effects (96-103)
	{96, "FX 1 (rain)", "Synth Effects", []string{"rain fx"}},
	{97, "FX 2 (soundtrack)", "Synth Effects", []string{"soundtrack fx"}},
	{98, "FX 3 (crystal)", "Synth Effects", []string{"crystal fx"}},
	{99, "FX 4 (atmosphere)", "Synth Effects", []string{"atmosphere", "atmosphere fx"}},
	{100, "FX 5 (brightness)", "Synth Effects", []string{"brightness fx"}},
	{101, "FX 6 (goblins)", "Synth Effects", []string{"goblins fx"}},
	{102, "FX 7 (echoes)", "Synth Effects", []string{"echoes fx"}},
	{103, "FX 8 (sci-fi)", "Synth Effects", []string{"sci-fi fx", "fx", "texture"}},

	// Ethnic (104-111)
	{104, "Sitar", "Ethnic", []string{"sitar"}},
	{105, "Banjo", "Ethnic", []string{"banjo"}},
	{106, "Shamisen", "Ethnic", []string{"shamisen"}},
	{107, "Koto", "Ethnic", []string{"koto"}},
	{108, "Kalimba", "Ethnic", []string{"kalimba"}},
	{109, "Bag pipe", "Ethnic", []string{"bagpipe", "bag pipe"}},
	{110, "Fiddle", "Ethnic", []string{"fiddle"}},
	{111, "Shanai", "Ethnic", []string{"shanai"}},

	// Percussive (112-119)
	{112, "Tinkle Bell", "Percussive", []string{"tinkle bell"}},
	{113, "Agogo", "Percussive", []string{"agogo"}},
	{114, "Steel Drums", "Percussive", []string{"steel drums", "steel pan"}},
	{115, "Woodblock", "Percussive", []string{"woodblock"}},
	{116, "Taiko Drum", "Percussive", []string{"taiko"}},
	{117, "Melodic Tom", "Percussive", []string{"melodic tom"}},
	{118, "Synth Drum", "Percussive", []string{"synth drum"}},
	{119, "Reverse Cymbal", "Percussive", []string{"reverse cymbal"}},

	// Sound Effects (120-127)
	{120, "Guitar Fret Noise", "Sound Effects", []string{"fret noise"}},
	{121, "Breath Noise", "Sound Effects", []string{"breath noise"}},
	{122, "Seashore", "Sound Effects", []string{"seashore"}},
	{123, "Bird Tweet", "Sound Effects", []string{"bird tweet"}},
	{124, "Telephone Ring", "Sound Effects", []string{"telephone ring"}},
	{125, "Helicopter", "Sound Effects", []string{"helicopter"}},
	{126, "Applause", "Sound Effects", []string{"applause"}},
	{127, "Gunshot", "Sound Effects", []string{"gunshot"}},
}

var byAlias map[string]Program

func init() {
	byAlias = make(map[string]Program)
	for _, p := range Programs {
		byAlias[strings.ToLower(p.Name)] = p
		for _, a := range p.Aliases {
			byAlias[strings.ToLower(a)] = p
		}
	}
}

// drumKeywords are checked before the alias table since "drums"/"kit" refer
// to GM channel 10, not to any single melodic program number.
var drumKeywords = []string{"drum", "kit", "percussion"}

// ForRole returns the best-matching GM program for a free-text instrument
// role or name, and whether the role should be treated as GM channel 10
// percussion rather than a melodic program. Matching is substring-based
// against the role/program name and alias table, longest alias first so
// "electric piano" matches before "piano".
func ForRole(role string) (program Program, isDrumChannel bool, ok bool) {
	lower := strings.ToLower(strings.TrimSpace(role))
	if lower == "" {
		return Program{}, false, false
	}
	for _, kw := range drumKeywords {
		if strings.Contains(lower, kw) {
			return Program{}, true, true
		}
	}

	var best Program
	bestLen := -1
	found := false
	for alias, p := range byAlias {
		if strings.Contains(lower, alias) && len(alias) > bestLen {
			best = p
			bestLen = len(alias)
			found = true
		}
	}
	if found {
		return best, false, true
	}
	return Program{}, false, false
}

// GuidanceText renders a short prompt-facing guidance string for a role,
// e.g. "General MIDI guidance: use Electric Bass (finger), program 33
// (Bass family)." Returns "" when role doesn't resolve to drums or a known
// program, leaving guidance absent rather than guessing.
func GuidanceText(role string) string {
	program, isDrum, ok := ForRole(role)
	if !ok {
		return ""
	}
	if isDrum {
		return "General MIDI guidance: percussion uses channel 10 and the standard drum map (kick=36, snare=38, closed hi-hat=42)."
	}
	return "General MIDI guidance: use " + program.Name + ", program " + strconv.Itoa(program.Number) + " (" + program.Category + " family)."
}

// GuidanceForProgram renders the same guidance string as GuidanceText but
// for a fixed program number rather than a role lookup, for callers (a
// deployment's own role-to-program preset) that already know the exact GM
// program to pin. Returns "" for a number outside the GM 0-127 range.
func GuidanceForProgram(number int) string {
	if number < 0 || number >= len(Programs) {
		return ""
	}
	program := Programs[number]
	return "General MIDI guidance: use " + program.Name + ", program " + strconv.Itoa(program.Number) + " (" + program.Category + " family)."
}
