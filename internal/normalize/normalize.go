// Package normalize maps raw extracted fields into canonical pet records.
package normalize

import (
	"regexp"
	"strings"

	"github.com/petlife-ingest/pet-crawler/internal/pet"
)

// breedAlias maps a marker substring found in raw breed text to the
// canonical breed name. Entries are checked in order; first match wins.
type breedAlias struct {
	marker    string
	canonical string
}

var dogBreedAliases = []breedAlias{
	{"柴", "柴犬"},
	{"シバ", "柴犬"},
	{"shiba", "柴犬"},
	{"トイプードル", "トイ・プードル"},
	{"プードル", "トイ・プードル"},
	{"チワワ", "チワワ"},
	{"ダックス", "ミニチュア・ダックスフンド"},
	{"ポメ", "ポメラニアン"},
	{"レトリバー", "ゴールデン・レトリバー"},
	{"レトリーバー", "ゴールデン・レトリバー"},
	{"ミックス", "雑種"},
	{"mix", "雑種"},
	{"雑種", "雑種"},
}

var catBreedAliases = []breedAlias{
	{"アメショ", "アメリカンショートヘア"},
	{"アメリカンショート", "アメリカンショートヘア"},
	{"スコティッシュ", "スコティッシュフォールド"},
	{"マンチカン", "マンチカン"},
	{"ロシアンブルー", "ロシアンブルー"},
	{"キジトラ", "雑種"},
	{"サバトラ", "雑種"},
	{"茶トラ", "雑種"},
	{"ミックス", "雑種"},
	{"mix", "雑種"},
	{"雑種", "雑種"},
}

// mixedLabel is the type-specific fallback when no breed was extracted.
var mixedLabel = map[pet.Type]string{
	pet.TypeDog: "雑種",
	pet.TypeCat: "雑種",
}

// personalityMarkers derive coarse personality tags from description text.
var personalityMarkers = []struct {
	marker string
	tag    string
}{
	{"人懐", "friendly"},
	{"甘えん坊", "affectionate"},
	{"おとなしい", "calm"},
	{"大人しい", "calm"},
	{"元気", "energetic"},
	{"活発", "energetic"},
	{"臆病", "shy"},
	{"怖がり", "shy"},
	{"賢い", "smart"},
}

var nonDigits = regexp.MustCompile(`\D`)
var whitespaceRun = regexp.MustCompile(`[\s\x{3000}]+`)

// Normalizer builds canonical records for one source.
type Normalizer struct {
	sourceID string
	clock    pet.Clock
}

// New constructs a Normalizer. The clock feeds only the provenance
// timestamp; every other output field is a pure function of the inputs.
func New(sourceID string, clock pet.Clock) *Normalizer {
	return &Normalizer{sourceID: sourceID, clock: clock}
}

// Normalize merges a list item and its detail fields into a canonical
// record. The returned id is `{source}_{digits-only(nativeId)}` and stable
// across re-crawls. A missing name is a validation error and the item is
// dropped by the caller.
func (n *Normalizer) Normalize(item pet.ListItem, fields pet.DetailFields, petType pet.Type) (pet.Pet, error) {
	id := n.CanonicalID(item.NativeID)
	name := CleanText(item.Title)
	if name == "" {
		return pet.Pet{}, &pet.ValidationError{ID: id, Field: "name"}
	}

	imageURL := fields.ImageURL
	if imageURL == "" {
		imageURL = item.ImageURL
	}

	p := pet.Pet{
		ID:          id,
		Type:        petType,
		Name:        name,
		Breed:       n.canonicalBreed(fields.Breed, petType),
		AgeYears:    fields.AgeYears,
		Gender:      fields.Gender,
		Prefecture:  CleanText(fields.Prefecture),
		City:        CleanText(fields.City),
		Description: CleanText(fields.Description),
		Personality: PersonalityTags(fields.Description),
		ImageURL:    strings.TrimSpace(imageURL),
		SourceURL:   strings.TrimSpace(item.URL),
		AdoptionFee: CleanText(fields.AdoptionFee),
		Vaccinated:  fields.Vaccinated,
		Neutered:    fields.Neutered,
		OriginalID:  item.NativeID,
		Source:      n.sourceID,
		CrawledAt:   n.clock.Now().UTC(),
	}
	if p.Gender == "" {
		p.Gender = pet.GenderUnknown
	}
	return p, nil
}

// CanonicalID namespaces a native id under the source, keeping digits only.
func (n *Normalizer) CanonicalID(nativeID string) string {
	return n.sourceID + "_" + nonDigits.ReplaceAllString(nativeID, "")
}

func (n *Normalizer) canonicalBreed(raw string, petType pet.Type) string {
	cleaned := CleanText(raw)
	if cleaned == "" || cleaned == pet.Unknown {
		return mixedLabel[petType]
	}
	aliases := dogBreedAliases
	if petType == pet.TypeCat {
		aliases = catBreedAliases
	}
	lower := strings.ToLower(cleaned)
	for _, alias := range aliases {
		if strings.Contains(lower, strings.ToLower(alias.marker)) {
			return alias.canonical
		}
	}
	return cleaned
}

// PersonalityTags derives coarse tags from free-text description.
func PersonalityTags(description string) []string {
	var tags []string
	seen := make(map[string]struct{})
	for _, pm := range personalityMarkers {
		if !strings.Contains(description, pm.marker) {
			continue
		}
		if _, dup := seen[pm.tag]; dup {
			continue
		}
		seen[pm.tag] = struct{}{}
		tags = append(tags, pm.tag)
	}
	return tags
}

// CleanText trims and collapses runs of whitespace (ASCII and ideographic).
func CleanText(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
