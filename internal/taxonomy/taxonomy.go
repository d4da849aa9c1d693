// Package taxonomy derives structured technique metadata from video text.
// Classification is deterministic keyword matching with no external calls;
// Classify is total and never fails.
package taxonomy

import "strings"

// Taxonomy is the structured classification attached to admitted videos.
type Taxonomy struct {
	Type     string
	Position string
	GiOrNogi string
	Tags     []string
}

// Classification values for Taxonomy.Type.
const (
	TypeAttack  = "attack"
	TypeDefense = "defense"
	TypeConcept = "concept"
)

// Classification values for Taxonomy.GiOrNogi.
const (
	GiOnly   = "gi"
	NogiOnly = "nogi"
	GiBoth   = "both"
)

// PositionUniversal is the fallback position category.
const PositionUniversal = "universal"

const maxTags = 10

// Attack indicators are checked before defense indicators; a title like
// "countering the guillotine defense" still reads as an attack when an
// attack keyword appears.
var attackIndicators = []string{
	"submission", "choke", "strangle", "armbar", "arm bar", "triangle",
	"kimura", "americana", "guillotine", "heel hook", "leg lock", "leglock",
	"kneebar", "toe hold", "omoplata", "sweep", "pass", "passing",
	"takedown", "back take", "attack", "finish", "tap",
}

var defenseIndicators = []string{
	"escape", "defense", "defence", "defend", "counter", "survival",
	"prevention", "retention", "recover", "recovery", "block",
}

type positionMapping struct {
	phrase   string
	category string
}

// Ordered: more specific phrases first, first match wins.
var positionMappings = []positionMapping{
	{"closed guard", "guard"},
	{"half guard", "guard"},
	{"open guard", "guard"},
	{"butterfly guard", "guard"},
	{"spider guard", "guard"},
	{"de la riva", "guard"},
	{"x guard", "guard"},
	{"x-guard", "guard"},
	{"rubber guard", "guard"},
	{"lasso", "guard"},
	{"guard", "guard"},
	{"full mount", "mount"},
	{"mount", "mount"},
	{"side control", "side-control"},
	{"kesa gatame", "side-control"},
	{"north south", "side-control"},
	{"north-south", "side-control"},
	{"knee on belly", "side-control"},
	{"back control", "back"},
	{"back take", "back"},
	{"rear naked", "back"},
	{"hooks in", "back"},
	{"turtle", "turtle"},
	{"front headlock", "turtle"},
	{"takedown", "standing"},
	{"wrestling", "standing"},
	{"judo", "standing"},
	{"standing", "standing"},
	{"single leg", "standing"},
	{"double leg", "standing"},
	{"leg entanglement", "leg-entanglement"},
	{"ashi garami", "leg-entanglement"},
	{"50/50", "leg-entanglement"},
	{"saddle", "leg-entanglement"},
}

// No-gi markers are checked before gi markers: "no gi" contains "gi" so
// order is load-bearing here.
var nogiMarkers = []string{"no-gi", "no gi", "nogi", "rashguard", "rash guard"}

var giMarkers = []string{"gi ", " gi", "lapel", "collar", "sleeve", "spider guard", "worm guard", "kimono"}

// Classify maps title/topic text (and an optional category hint) to a
// complete taxonomy.
func Classify(title, topic, category string) Taxonomy {
	text := strings.ToLower(strings.TrimSpace(title + " " + topic))

	return Taxonomy{
		Type:     classifyType(text),
		Position: classifyPosition(text),
		GiOrNogi: classifyGi(text),
		Tags:     collectTags(text, category),
	}
}

func classifyType(text string) string {
	for _, indicator := range attackIndicators {
		if strings.Contains(text, indicator) {
			return TypeAttack
		}
	}
	for _, indicator := range defenseIndicators {
		if strings.Contains(text, indicator) {
			return TypeDefense
		}
	}
	return TypeConcept
}

func classifyPosition(text string) string {
	for _, mapping := range positionMappings {
		if strings.Contains(text, mapping.phrase) {
			return mapping.category
		}
	}
	return PositionUniversal
}

func classifyGi(text string) string {
	for _, marker := range nogiMarkers {
		if strings.Contains(text, marker) {
			return NogiOnly
		}
	}
	for _, marker := range giMarkers {
		if strings.Contains(text, marker) {
			return GiOnly
		}
	}
	return GiBoth
}

func collectTags(text, category string) []string {
	var tags []string
	seen := make(map[string]struct{})

	add := func(tag string) {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			return
		}
		if _, ok := seen[tag]; ok {
			return
		}
		if len(tags) >= maxTags {
			return
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	for _, mapping := range positionMappings {
		if strings.Contains(text, mapping.phrase) {
			add(mapping.phrase)
		}
	}
	for _, indicator := range attackIndicators {
		if strings.Contains(text, indicator) {
			add(indicator)
		}
	}
	for _, indicator := range defenseIndicators {
		if strings.Contains(text, indicator) {
			add(indicator)
		}
	}
	add(category)

	return tags
}
