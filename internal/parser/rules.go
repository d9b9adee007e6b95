package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/petlife-ingest/pet-crawler/internal/pet"
)

var digitRun = regexp.MustCompile(`\d+`)

// monthMarkers are substrings indicating the surrounding number is a month
// count rather than a year count.
var monthMarkers = []string{"ヶ月", "ヵ月", "か月", "カ月", "ケ月", "month"}

// ParseAge extracts an age in years from free text. The first run of
// digits wins; when the text mentions a months unit the count is
// floor-divided by 12, bottoming out at zero.
func ParseAge(text string) int {
	m := digitRun.FindString(text)
	if m == "" {
		return pet.AgeUnknown
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return pet.AgeUnknown
	}
	lower := strings.ToLower(text)
	for _, marker := range monthMarkers {
		if strings.Contains(lower, marker) {
			return n / 12
		}
	}
	return n
}

var maleMarkers = []string{"オス", "♂", "雄", "male"}
var femaleMarkers = []string{"メス", "♀", "雌", "female"}

// maleWord avoids the "male" substring inside "female".
var maleWord = regexp.MustCompile(`(^|[^a-z])male`)

// ParseGender canonicalizes a gender string. Male markers are checked
// before female markers; matching is case-insensitive substring search and
// the first hit wins.
func ParseGender(text string) pet.Gender {
	lower := strings.ToLower(text)
	for _, marker := range maleMarkers {
		if marker == "male" {
			if maleWord.MatchString(lower) {
				return pet.GenderMale
			}
			continue
		}
		if strings.Contains(lower, marker) {
			return pet.GenderMale
		}
	}
	for _, marker := range femaleMarkers {
		if strings.Contains(lower, marker) {
			return pet.GenderFemale
		}
	}
	return pet.GenderUnknown
}

var prefectureSuffixes = []string{"都", "道", "府", "県"}
var citySuffixes = []string{"市", "区", "町", "村"}

// tokyoWards resolve to the capital prefecture when a location string
// names only a special ward.
var tokyoWards = map[string]struct{}{
	"千代田区": {}, "中央区": {}, "港区": {}, "新宿区": {}, "文京区": {},
	"台東区": {}, "墨田区": {}, "江東区": {}, "品川区": {}, "目黒区": {},
	"大田区": {}, "世田谷区": {}, "渋谷区": {}, "中野区": {}, "杉並区": {},
	"豊島区": {}, "北区": {}, "荒川区": {}, "板橋区": {}, "練馬区": {},
	"足立区": {}, "葛飾区": {}, "江戸川区": {},
}

const tokyoPrefecture = "東京都"

// ParseLocation splits a free-text location into (prefecture, city).
// Whitespace-delimited tokens are scanned; the last token ending in a
// prefecture suffix is the prefecture and the last token ending in a city
// suffix is the city. Without a prefecture-suffixed token, a known special
// ward implies the capital; otherwise the configured default applies.
func ParseLocation(text, defaultPrefecture string) (string, string) {
	prefecture := ""
	city := ""

	for _, token := range strings.Fields(collapseWhitespace(text)) {
		for _, suffix := range prefectureSuffixes {
			if strings.HasSuffix(token, suffix) && token != suffix {
				prefecture = token
			}
		}
		for _, suffix := range citySuffixes {
			if strings.HasSuffix(token, suffix) && token != suffix {
				city = token
			}
		}
	}

	if prefecture == "" && city != "" {
		if _, ok := tokyoWards[city]; ok {
			prefecture = tokyoPrefecture
		}
	}
	if prefecture == "" {
		prefecture = defaultPrefecture
	}
	return prefecture, city
}
