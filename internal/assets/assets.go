package assets

import (
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/seralys/gacha-overlay/pkg/types"
)

// Canonical rarity tiers, lowest to highest.
const (
	RarityCommon    = "common"
	RarityUncommon  = "uncommon"
	RarityRare      = "rare"
	RarityEpic      = "epic"
	RarityLegendary = "legendary"
)

// Short codes the host rolls with, same table the host keeps.
var rarityAliases = map[string]string{
	"N":   RarityCommon,
	"R":   RarityUncommon,
	"SR":  RarityRare,
	"SSR": RarityEpic,
	"UR":  RarityLegendary,
}

var canonicalTiers = map[string]bool{
	RarityCommon:    true,
	RarityUncommon:  true,
	RarityRare:      true,
	RarityEpic:      true,
	RarityLegendary: true,
}

// CanonicalRarity maps short and long rarity tokens to a canonical tier.
// Unknown non-empty input is lower-cased and passed through verbatim so an
// unrecognized tier degrades to default assets instead of failing.
func CanonicalRarity(raw string) string {
	t := strings.TrimSpace(raw)
	if t == "" {
		return RarityCommon
	}
	if c, ok := rarityAliases[strings.ToUpper(t)]; ok {
		return c
	}
	return strings.ToLower(t)
}

func IsCanonicalTier(rarity string) bool {
	return canonicalTiers[rarity]
}

// IsCommonPlain reports whether a pull is common and non-shiny, the
// combination that skips the conversion stage.
func IsCommonPlain(rec types.PullRecord) bool {
	return !rec.Shiny && CanonicalRarity(rec.Rarity) == RarityCommon
}

// Resolver maps pull records to asset locations under a fixed two-level
// root (assets/animations/..., assets/images/...). Tables ship with
// defaults and may be remapped by a manifest.
type Resolver struct {
	root string

	stars      map[string]string
	badges     map[string]string
	conversion map[string]string
	opening    map[string]string

	shinyStar       string
	shinyBadge      string
	shinyConversion string
	shinyOpening    string
	drop            string
}

func NewResolver(root string) *Resolver {
	if root == "" {
		root = "assets"
	}
	return &Resolver{
		root: root,
		stars: map[string]string{
			RarityCommon:    "images/stars/star_grey.png",
			RarityUncommon:  "images/stars/star_green.png",
			RarityRare:      "images/stars/star_blue.png",
			RarityEpic:      "images/stars/star_purple.png",
			RarityLegendary: "images/stars/star_gold.png",
		},
		badges: map[string]string{
			RarityCommon:    "images/badges/badge_common.png",
			RarityUncommon:  "images/badges/badge_uncommon.png",
			RarityRare:      "images/badges/badge_rare.png",
			RarityEpic:      "images/badges/badge_epic.png",
			RarityLegendary: "images/badges/badge_legendary.png",
		},
		conversion: map[string]string{
			RarityCommon:    "animations/conversion/common.webm",
			RarityUncommon:  "animations/conversion/uncommon.webm",
			RarityRare:      "animations/conversion/rare.webm",
			RarityEpic:      "animations/conversion/epic.webm",
			RarityLegendary: "animations/conversion/legendary.webm",
		},
		opening: map[string]string{
			RarityCommon:    "animations/opening/common.webm",
			RarityUncommon:  "animations/opening/uncommon.webm",
			RarityRare:      "animations/opening/rare.webm",
			RarityEpic:      "animations/opening/epic.webm",
			RarityLegendary: "animations/opening/legendary.webm",
		},
		shinyStar:       "images/stars/star_prismatic.png",
		shinyBadge:      "images/badges/badge_shiny.png",
		shinyConversion: "animations/conversion/shiny.webm",
		shinyOpening:    "animations/opening/shiny.webm",
		drop:            "animations/drop.webm",
	}
}

// StarAsset resolves the star icon. Shiny overrides rarity.
func (r *Resolver) StarAsset(rarity string, shiny bool) string {
	if shiny {
		return r.join(r.shinyStar)
	}
	tier := CanonicalRarity(rarity)
	rel, ok := r.stars[tier]
	if !ok {
		rel = r.stars[RarityCommon]
	}
	return r.join(rel)
}

// BadgeAsset resolves the rarity badge. Shiny overrides rarity.
func (r *Resolver) BadgeAsset(rarity string, shiny bool) string {
	if shiny {
		return r.join(r.shinyBadge)
	}
	tier := CanonicalRarity(rarity)
	rel, ok := r.badges[tier]
	if !ok {
		rel = r.badges[RarityCommon]
	}
	return r.join(rel)
}

// ConversionClip resolves the conversion-stage clip. Common non-shiny
// pulls have no conversion clip at all; the stage is a pacing no-op for
// them, not a missing asset.
func (r *Resolver) ConversionClip(rarity string, shiny bool) string {
	if shiny {
		return r.join(r.shinyConversion)
	}
	tier := CanonicalRarity(rarity)
	if tier == RarityCommon {
		return ""
	}
	rel, ok := r.conversion[tier]
	if !ok {
		rel = r.conversion[RarityCommon]
	}
	return r.join(rel)
}

func (r *Resolver) OpeningClip(rarity string, shiny bool) string {
	if shiny {
		return r.join(r.shinyOpening)
	}
	tier := CanonicalRarity(rarity)
	rel, ok := r.opening[tier]
	if !ok {
		rel = r.opening[RarityCommon]
	}
	return r.join(rel)
}

// DropClip is one shared file for every rarity.
func (r *Resolver) DropClip() string {
	return r.join(r.drop)
}

// ImageSource resolves a pull's card image. An explicit locator on the
// record wins; otherwise a relative path is built from set + rarity +
// name. Empty return means "no image", not an error.
func (r *Resolver) ImageSource(rec types.PullRecord) string {
	if ref := strings.TrimSpace(rec.ImageRef); ref != "" {
		return strings.ReplaceAll(ref, "\\", "/")
	}
	if rec.SetName == "" || rec.Name == "" {
		return ""
	}
	tier := CanonicalRarity(rec.Rarity)
	return r.join(path.Join("images/sets", rec.SetName, tier, rec.Name+".png"))
}

func (r *Resolver) join(rel string) string {
	return path.Join(r.root, rel)
}

// Manifest is the optional on-disk remap of asset tables. Only non-empty
// entries override the compiled-in defaults.
type Manifest struct {
	Drop       string            `yaml:"drop"`
	Stars      map[string]string `yaml:"stars"`
	Badges     map[string]string `yaml:"badges"`
	Conversion map[string]string `yaml:"conversion"`
	Opening    map[string]string `yaml:"opening"`
}

// LoadManifest applies assets/manifest.yaml style overrides. A missing
// file is not an error; a malformed one is.
func (r *Resolver) LoadManifest(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read asset manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parse asset manifest: %w", err)
	}
	if m.Drop != "" {
		r.drop = m.Drop
	}
	applyOverrides(r.stars, &r.shinyStar, m.Stars)
	applyOverrides(r.badges, &r.shinyBadge, m.Badges)
	applyOverrides(r.conversion, &r.shinyConversion, m.Conversion)
	applyOverrides(r.opening, &r.shinyOpening, m.Opening)
	return nil
}

func applyOverrides(table map[string]string, shiny *string, overrides map[string]string) {
	for tier, rel := range overrides {
		if rel == "" {
			continue
		}
		if tier == "shiny" {
			*shiny = rel
			continue
		}
		if canonicalTiers[tier] {
			table[tier] = rel
		}
	}
}
