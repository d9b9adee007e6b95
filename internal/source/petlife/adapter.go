// Package petlife adapts the petlife listing site to the crawl
// orchestrator: list/detail URL layout, selector configuration and
// normalization rules for its markup.
package petlife

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/petlife-ingest/pet-crawler/internal/normalize"
	"github.com/petlife-ingest/pet-crawler/internal/parser"
	"github.com/petlife-ingest/pet-crawler/internal/pet"
)

// SourceID identifies this site in checkpoints and canonical ids.
const SourceID = "petlife"

// Config locates the site.
type Config struct {
	// BaseURL is the site root, e.g. "https://www.petlife.example.jp".
	BaseURL string
}

// Adapter implements the orchestrator's source capability set for the
// petlife site.
type Adapter struct {
	baseURL *url.URL
	fetcher pet.Fetcher
	parser  *parser.Parser
	norm    *normalize.Normalizer
}

// New builds the adapter. The selector chain starts with the site's
// current markup and falls back to older layouts it has shipped before.
func New(cfg Config, fetcher pet.Fetcher, clock pet.Clock) (*Adapter, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	return &Adapter{
		baseURL: base,
		fetcher: fetcher,
		parser:  parser.New(siteConfig()),
		norm:    normalize.New(SourceID, clock),
	}, nil
}

func siteConfig() parser.Config {
	return parser.Config{
		ListSelectors: []parser.SelectorPair{
			{Container: ".contribute_result_list .contribute_result", Link: "h3.title a"},
			{Container: "ul.pet_list li.pet_item", Link: "a.pet_link"},
			{Container: ".list-box .item", Link: "a"},
		},
		IDPattern: regexp.MustCompile(`/pets/[a-z]+/.*?(\d+)/?$`),

		Breed:       parser.FieldSelector{Primary: ".pet_breed", Label: "種類"},
		Age:         parser.FieldSelector{Primary: ".pet_age", Label: "年齢"},
		Gender:      parser.FieldSelector{Primary: ".pet_sex", Label: "性別"},
		Location:    parser.FieldSelector{Primary: ".pet_area", Label: "所在地"},
		Description: parser.FieldSelector{Primary: ".pet_comment", Label: "性格"},
		Image:       parser.FieldSelector{Primary: ".pet_photo img"},
		Fee:         parser.FieldSelector{Primary: ".pet_fee", Label: "譲渡費用"},
		Vaccinated:  parser.FieldSelector{Primary: ".pet_vaccine", Label: "ワクチン"},
		Neutered:    parser.FieldSelector{Primary: ".pet_neuter", Label: "去勢・避妊"},

		DefaultPrefecture: "東京都",
	}
}

// SourceID identifies the site.
func (a *Adapter) SourceID() string { return SourceID }

// ListPageURL returns the listing URL for a pet type and 1-based page.
func (a *Adapter) ListPageURL(petType pet.Type, page int) string {
	return fmt.Sprintf("%s/pets/%ss/?page=%d", a.baseURL, petType, page)
}

// FetchPage delegates to the HTTP fetcher.
func (a *Adapter) FetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	return a.fetcher.FetchPage(ctx, pageURL)
}

// ParseListPage extracts items and resolves their links against the site
// root, since listing markup uses relative hrefs.
func (a *Adapter) ParseListPage(html []byte) ([]pet.ListItem, error) {
	items, err := a.parser.ParseListPage(html)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].URL = a.absoluteURL(items[i].URL)
		items[i].ImageURL = a.absoluteURL(items[i].ImageURL)
	}
	return items, nil
}

// ParseDetailPage extracts detail fields via the selector chain.
func (a *Adapter) ParseDetailPage(html []byte) (pet.DetailFields, error) {
	fields, err := a.parser.ParseDetailPage(html)
	if err != nil {
		return pet.DetailFields{}, err
	}
	fields.ImageURL = a.absoluteURL(fields.ImageURL)
	return fields, nil
}

// Normalize converts raw fields into the canonical record.
func (a *Adapter) Normalize(item pet.ListItem, fields pet.DetailFields, petType pet.Type) (pet.Pet, error) {
	return a.norm.Normalize(item, fields, petType)
}

func (a *Adapter) absoluteURL(href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return a.baseURL.ResolveReference(ref).String()
}
