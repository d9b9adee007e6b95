// Package parser extracts pet listings and detail records from source-site
// HTML. The site's markup changes without notice, so extraction runs down
// an ordered fallback chain of selectors instead of trusting one layout.
package parser

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/petlife-ingest/pet-crawler/internal/pet"
)

// SelectorPair is one (container, link) extraction strategy for list pages.
type SelectorPair struct {
	Container string
	Link      string
}

// FieldSelector is one detail-page field strategy: a primary CSS selector
// plus a label whose adjacent value node is read when the primary misses.
type FieldSelector struct {
	Primary string
	Label   string
}

// Config describes how to read one source site's markup.
type Config struct {
	ListSelectors []SelectorPair
	// IDPattern extracts the native item id from a detail link href.
	IDPattern *regexp.Regexp

	Breed       FieldSelector
	Age         FieldSelector
	Gender      FieldSelector
	Location    FieldSelector
	Description FieldSelector
	Image       FieldSelector
	Fee         FieldSelector
	Vaccinated  FieldSelector
	Neutered    FieldSelector

	DefaultPrefecture string
}

// Parser extracts listings and detail fields per a site Config.
type Parser struct {
	cfg Config
}

// New builds a Parser.
func New(cfg Config) *Parser {
	return &Parser{cfg: cfg}
}

// ParseListPage extracts candidate items from a listing page. Selector
// pairs are tried in order; the first pair yielding at least one item wins
// and the rest are skipped. If every pair misses, the whole document is
// scanned for links matching the id pattern. Duplicate ids within the page
// are suppressed.
func (p *Parser) ParseListPage(html []byte) ([]pet.ListItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, &pet.ParseError{What: "list page is not parseable HTML"}
	}

	for _, pair := range p.cfg.ListSelectors {
		items := p.collectItems(doc.Find(pair.Container), pair.Link)
		if len(items) > 0 {
			return items, nil
		}
	}

	// Last resort: any link in the document whose href carries an item id.
	return p.collectItems(doc.Selection, "a[href]"), nil
}

func (p *Parser) collectItems(scope *goquery.Selection, linkSelector string) []pet.ListItem {
	var items []pet.ListItem
	seen := make(map[string]struct{})

	scope.Find(linkSelector).Each(func(_ int, link *goquery.Selection) {
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		id := p.extractID(href)
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}

		item := pet.ListItem{
			NativeID: id,
			URL:      strings.TrimSpace(href),
			Title:    collapseWhitespace(link.Text()),
		}
		if img, exists := link.Find("img[src]").Attr("src"); exists {
			item.ImageURL = strings.TrimSpace(img)
		} else if img, exists := link.Parent().Find("img[src]").Attr("src"); exists {
			item.ImageURL = strings.TrimSpace(img)
		}
		items = append(items, item)
	})
	return items
}

func (p *Parser) extractID(href string) string {
	if p.cfg.IDPattern == nil {
		return ""
	}
	m := p.cfg.IDPattern.FindStringSubmatch(href)
	if m == nil {
		return ""
	}
	if len(m) > 1 {
		return m[1]
	}
	return m[0]
}

// ParseDetailPage extracts descriptive fields from a detail page. Each
// field tries its primary selector, then the label-adjacent fallback; a
// field that cannot be found yields its unknown sentinel. Partial
// extraction never fails the whole item.
func (p *Parser) ParseDetailPage(html []byte) (pet.DetailFields, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return pet.DetailFields{}, &pet.ParseError{What: "detail page is not parseable HTML"}
	}

	fields := pet.DetailFields{
		Breed:       pet.Unknown,
		AgeYears:    pet.AgeUnknown,
		Gender:      pet.GenderUnknown,
		Prefecture:  pet.Unknown,
		City:        pet.Unknown,
		Description: "",
	}

	if text := p.fieldText(doc, p.cfg.Breed); text != "" {
		fields.Breed = text
	}
	if text := p.fieldText(doc, p.cfg.Age); text != "" {
		fields.AgeYears = ParseAge(text)
	}
	if text := p.fieldText(doc, p.cfg.Gender); text != "" {
		fields.Gender = ParseGender(text)
	}
	if text := p.fieldText(doc, p.cfg.Location); text != "" {
		fields.Prefecture, fields.City = ParseLocation(text, p.cfg.DefaultPrefecture)
	}
	if text := p.fieldText(doc, p.cfg.Description); text != "" {
		fields.Description = text
	}
	if text := p.fieldText(doc, p.cfg.Fee); text != "" {
		fields.AdoptionFee = text
	}
	fields.ImageURL = p.imageURL(doc)
	fields.Vaccinated = p.boolField(doc, p.cfg.Vaccinated)
	fields.Neutered = p.boolField(doc, p.cfg.Neutered)

	return fields, nil
}

func (p *Parser) fieldText(doc *goquery.Document, sel FieldSelector) string {
	if sel.Primary != "" {
		if node := doc.Find(sel.Primary).First(); node.Length() > 0 {
			if text := collapseWhitespace(node.Text()); text != "" {
				return text
			}
		}
	}
	return p.labelAdjacentText(doc, sel.Label)
}

// labelAdjacentText finds a th/dt/label-ish node containing the label text
// and reads its sibling value node.
func (p *Parser) labelAdjacentText(doc *goquery.Document, label string) string {
	if label == "" {
		return ""
	}
	var value string
	doc.Find("th, dt, .label").EachWithBreak(func(_ int, node *goquery.Selection) bool {
		if !strings.Contains(node.Text(), label) {
			return true
		}
		if sibling := node.Next(); sibling.Length() > 0 {
			value = collapseWhitespace(sibling.Text())
			return false
		}
		return true
	})
	return value
}

func (p *Parser) imageURL(doc *goquery.Document) string {
	if p.cfg.Image.Primary != "" {
		if src, ok := doc.Find(p.cfg.Image.Primary).First().Attr("src"); ok {
			return strings.TrimSpace(src)
		}
	}
	if src, ok := doc.Find("meta[property='og:image']").Attr("content"); ok {
		return strings.TrimSpace(src)
	}
	return ""
}

func (p *Parser) boolField(doc *goquery.Document, sel FieldSelector) bool {
	text := p.fieldText(doc, sel)
	if text == "" {
		return false
	}
	for _, marker := range []string{"済", "接種済", "yes", "done", "完了"} {
		if strings.Contains(strings.ToLower(text), marker) {
			return true
		}
	}
	return false
}

var whitespaceRun = regexp.MustCompile(`[\s\x{3000}]+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
