package fetcher

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"imovelworker/internal/extractor"
)

var (
	olxIDPattern = regexp.MustCompile(`-(\d+)(?:\?|$)`)
	zapIDPattern = regexp.MustCompile(`/(\d+)/?(?:\?|$)`)

	zapCondoPattern = regexp.MustCompile(`Condomínio:?\s*R\$\s*[\d.,]+`)
	zapIPTUPattern  = regexp.MustCompile(`IPTU:?\s*R\$\s*[\d.,]+`)
)

// PortalConfigFor returns the configuration for a supported portal.
func PortalConfigFor(portal, url string) (PortalConfig, error) {
	switch portal {
	case "olx":
		return olxConfig(url), nil
	case "zap":
		return zapConfig(url), nil
	}
	return PortalConfig{}, fmt.Errorf("unknown portal %q", portal)
}

// olxConfig reads OLX result pages. Listing ids come from the ad URL slug;
// cards without one are rejected rather than hashed, since OLX always embeds
// the ad id.
func olxConfig(url string) PortalConfig {
	return PortalConfig{
		Name:         "olx",
		URL:          url,
		SiteRoot:     "https://www.olx.com.br",
		PageParam:    "o",
		CardSelector: "section.olx-adcard",
		Fields: map[string]FieldSelector{
			extractor.URLField:      {Selector: "a.olx-adcard__link", Attr: "href"},
			extractor.TitleField:    {Selector: "h2.olx-adcard__title"},
			extractor.PriceField:    {Selector: "h3.olx-adcard__price"},
			extractor.DateField:     {Selector: "p.olx-adcard__date"},
			extractor.LocationField: {Selector: "p.olx-adcard__location"},
			extractor.BedroomsField: {Selector: `div.olx-adcard__detail[aria-label*="quartos"]`},
			extractor.AreaField:     {Selector: `div.olx-adcard__detail[aria-label*="metros"]`},
			extractor.ParkingField:  {Selector: `div.olx-adcard__detail[aria-label*="vagas"]`},
			extractor.BathsField:    {Selector: `div.olx-adcard__detail[aria-label*="banheiro"]`},
		},
		CustomFields: map[string]FieldHandler{
			extractor.CondoFeeField: priceInfoHandler("Condomínio"),
			extractor.IPTUField:     priceInfoHandler("IPTU"),
		},
		IDPattern: olxIDPattern,
		City:      "São José dos Campos",
		State:     "SP",
		BlockKey:  "olx_rate_limited",
		BlockTime: 500 * time.Second,
	}
}

// zapConfig reads ZAP Imóveis result pages. The numeric id is not always
// present in listing URLs, so the content-hash fallback stays enabled.
func zapConfig(url string) PortalConfig {
	return PortalConfig{
		Name:         "zap",
		URL:          url,
		SiteRoot:     "https://www.zapimoveis.com.br",
		PageParam:    "pagina",
		CardSelector: `li[data-cy="rp-property-cd"]`,
		Fields: map[string]FieldSelector{
			extractor.URLField:      {Selector: "a", Attr: "href"},
			extractor.TitleField:    {Selector: `[data-cy="rp-cardProperty-street-txt"]`},
			extractor.PriceField:    {Selector: `[data-cy="rp-cardProperty-price-txt"]`},
			extractor.LocationField: {Selector: `[data-cy="rp-cardProperty-location-txt"]`},
			extractor.AreaField:     {Selector: `[data-cy="rp-cardProperty-propertyArea-txt"]`},
			extractor.BedroomsField: {Selector: `[data-cy="rp-cardProperty-bedroomQuantity-txt"]`},
			extractor.BathsField:    {Selector: `[data-cy="rp-cardProperty-bathroomQuantity-txt"]`},
			extractor.ParkingField:  {Selector: `[data-cy="rp-cardProperty-parkingSpacesQuantity-txt"]`},
		},
		CustomFields: map[string]FieldHandler{
			extractor.CondoFeeField: patternHandler(zapCondoPattern),
			extractor.IPTUField:     patternHandler(zapIPTUPattern),
		},
		IDPattern:  zapIDPattern,
		FallbackID: true,
		City:       "São José dos Campos",
		State:      "SP",
		BlockKey:   "zap_rate_limited",
		BlockTime:  500 * time.Second,
	}
}

// priceInfoHandler finds the OLX price-info row carrying a keyword, since
// IPTU and condo fee share the same markup.
func priceInfoHandler(keyword string) FieldHandler {
	return func(s *goquery.Selection) string {
		var out string
		s.Find(`div[data-testid="adcard-price-info"]`).Each(func(_ int, info *goquery.Selection) {
			text := strings.TrimSpace(info.Text())
			if out == "" && strings.Contains(text, keyword) {
				out = text
			}
		})
		return out
	}
}

// patternHandler extracts the first regex match from a card's text blob.
func patternHandler(re *regexp.Regexp) FieldHandler {
	return func(s *goquery.Selection) string {
		return re.FindString(s.Text())
	}
}
