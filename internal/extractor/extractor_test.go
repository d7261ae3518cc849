package extractor

import (
	"regexp"
	"testing"
	"time"

	"imovelworker/internal/listing"
	"imovelworker/pkg/errors"

	"github.com/stretchr/testify/assert"
)

var olxIDPattern = regexp.MustCompile(`-(\d+)(?:\?|$)`)

func testConfig() Config {
	return Config{
		Portal:    "olx",
		IDPattern: olxIDPattern,
		City:      "São José dos Campos",
		State:     "SP",
	}
}

func validRecord() listing.RawRecord {
	return listing.RawRecord{
		Fields: map[string]string{
			URLField:      "https://www.olx.com.br/imovel/casa-no-jardim-aquarius-1310294720",
			TitleField:    "Casa no Jardim Aquarius",
			PriceField:    "R$ 3.500",
			CondoFeeField: "Condomínio: R$ 450",
			IPTUField:     "IPTU: R$ 120,50",
			BedroomsField: "3 quartos",
			BathsField:    "2 banheiros",
			ParkingField:  "2 vagas",
			AreaField:     "140 metros quadrados",
			LocationField: "São José dos Campos, Jardim Aquarius",
			DateField:     "hoje, 09:39",
		},
	}
}

func TestParsePrice(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"R$ 1.234,56", 1234.56, true},
		{"R$ 1.234", 1234.00, true},
		{"R$ 950", 950, true},
		{"R$ 1.250.000", 1250000, true},
		{"Aluguel: R$ 2.800,00 por mês", 2800, true},
		{"a combinar", 0, false},
		{"", 0, false},
		{"1234", 0, false},
	}

	for _, c := range cases {
		got, ok := ParsePrice(c.in)
		assert.Equal(t, c.ok, ok, "input %q", c.in)
		if c.ok {
			assert.InDelta(t, c.want, got, 0.001, "input %q", c.in)
		}
	}
}

func TestParseCount(t *testing.T) {
	got, ok := ParseCount("3 quartos")
	assert.True(t, ok)
	assert.Equal(t, 3, got)

	got, ok = ParseCount("1.200m²")
	assert.True(t, ok)
	assert.Equal(t, 1200, got)

	_, ok = ParseCount("sem informação")
	assert.False(t, ok)

	_, ok = ParseCount("")
	assert.False(t, ok)
}

func TestExtractValidRecord(t *testing.T) {
	e := New(testConfig())

	l, err := e.Extract(validRecord(), 4)
	assert.NoError(t, err)
	assert.Equal(t, "1310294720", l.ID)
	assert.Equal(t, "olx", l.Portal)
	assert.Equal(t, "Casa no Jardim Aquarius", l.Title)
	assert.Equal(t, "casa", l.PropertyType)
	assert.InDelta(t, 3500.0, l.Price, 0.001)
	assert.Equal(t, 3, *l.Bedrooms)
	assert.Equal(t, 2, *l.Bathrooms)
	assert.Equal(t, 2, *l.ParkingSpaces)
	assert.Equal(t, 140, *l.Area)
	assert.InDelta(t, 25.0, *l.PricePerSqm, 0.001)
	assert.InDelta(t, 450.0, *l.CondoFee, 0.001)
	assert.InDelta(t, 120.50, *l.IPTU, 0.001)
	assert.InDelta(t, 4070.50, l.TotalCost, 0.001)
	assert.Equal(t, "Jardim Aquarius", l.Neighborhood)
	assert.Equal(t, "São José dos Campos", l.City)
	assert.Equal(t, "SP", l.State)
	assert.Equal(t, 4, l.SourcePage)
	assert.Equal(t, time.Now().Format("02/01/2006"), l.ListingDate)
}

func TestExtractRejectsMissingPrice(t *testing.T) {
	e := New(testConfig())

	rec := validRecord()
	delete(rec.Fields, PriceField)

	_, err := e.Extract(rec, 1)
	assert.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeExtraction))

	rec = validRecord()
	rec.Fields[PriceField] = "consulte"
	_, err = e.Extract(rec, 1)
	assert.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeExtraction))
}

func TestExtractRejectsMissingID(t *testing.T) {
	e := New(testConfig())

	rec := validRecord()
	rec.Fields[URLField] = "https://www.olx.com.br/imovel/sem-id"

	_, err := e.Extract(rec, 1)
	assert.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeExtraction))
}

func TestExtractHashFallbackID(t *testing.T) {
	cfg := testConfig()
	cfg.FallbackID = true
	e := New(cfg)

	rec := validRecord()
	rec.Fields[URLField] = "https://www.olx.com.br/imovel/sem-id"

	l, err := e.Extract(rec, 1)
	assert.NoError(t, err)
	assert.True(t, len(l.ID) > 2)
	assert.Equal(t, "h_", l.ID[:2])

	// Same content hashes to the same id
	l2, err := e.Extract(rec, 1)
	assert.NoError(t, err)
	assert.Equal(t, l.ID, l2.ID)

	// Different content hashes differently
	rec.Fields[TitleField] = "Apartamento na Vila Ema"
	l3, err := e.Extract(rec, 1)
	assert.NoError(t, err)
	assert.NotEqual(t, l.ID, l3.ID)
}

func TestExtractIdempotent(t *testing.T) {
	cfg := testConfig()
	t1 := time.Date(2026, 7, 10, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 7, 10, 18, 30, 0, 0, time.UTC)

	first, err := NewAt(cfg, func() time.Time { return t1 }).Extract(validRecord(), 2)
	assert.NoError(t, err)
	second, err := NewAt(cfg, func() time.Time { return t2 }).Extract(validRecord(), 2)
	assert.NoError(t, err)

	assert.Equal(t, t1, first.CollectedAt)
	assert.Equal(t, t2, second.CollectedAt)

	first.CollectedAt = time.Time{}
	second.CollectedAt = time.Time{}
	assert.Equal(t, first, second)
}

func TestExtractNoDerivedWithoutArea(t *testing.T) {
	e := New(testConfig())

	rec := validRecord()
	delete(rec.Fields, AreaField)

	l, err := e.Extract(rec, 1)
	assert.NoError(t, err)
	assert.Nil(t, l.Area)
	assert.Nil(t, l.PricePerSqm)

	rec = validRecord()
	rec.Fields[AreaField] = "0 metros"
	l, err = e.Extract(rec, 1)
	assert.NoError(t, err)
	assert.Nil(t, l.PricePerSqm)
}

func TestPropertyType(t *testing.T) {
	assert.Equal(t, "casa", PropertyType("Casa com quintal"))
	assert.Equal(t, "casa", PropertyType("Sobrado novo"))
	assert.Equal(t, "apartamento", PropertyType("Apartamento 3 quartos"))
	assert.Equal(t, "apartamento", PropertyType("Apto próximo ao centro"))
	assert.Equal(t, "", PropertyType("Terreno comercial"))
}

func TestParseListingDate(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"hoje, 09:39", "25/08/2026", true},
		{"ontem", "24/08/2026", true},
		{"anteontem", "23/08/2026", true},
		{"5 de jul", "05/07/2026", true},
		{"15 de dezembro", "15/12/2025", true}, // future month rolls back a year
		{"há 3 dias", "22/08/2026", true},
		{"2 semanas atrás", "11/08/2026", true},
		{"12/07", "12/07/2026", true},
		{"", "", false},
		{"em breve", "", false},
	}

	for _, c := range cases {
		got, ok := ParseListingDate(c.in, now)
		assert.Equal(t, c.ok, ok, "input %q", c.in)
		if c.ok {
			assert.Equal(t, c.want, got, "input %q", c.in)
		}
	}
}

func TestSplitLocation(t *testing.T) {
	neighborhood, city := SplitLocation("São José dos Campos, Jardim Satélite")
	assert.Equal(t, "Jardim Satélite", neighborhood)
	assert.Equal(t, "São José dos Campos", city)

	neighborhood, city = SplitLocation("Jacareí")
	assert.Equal(t, "", neighborhood)
	assert.Equal(t, "Jacareí", city)

	neighborhood, city = SplitLocation("")
	assert.Equal(t, "", neighborhood)
	assert.Equal(t, "", city)
}
