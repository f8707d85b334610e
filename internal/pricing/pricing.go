package pricing

import "strings"

// Rate is the resolved price for one destination zone, in rupiah.
type Rate struct {
	PricePerKg       int64
	TransitSurcharge int64
}

// fallbackPricePerKg applies when the city is not in the table at all.
const fallbackPricePerKg int64 = 45000

// cityDefaults maps an uppercased city name to its default price per kg.
// Built once at init, never mutated afterwards.
var cityDefaults = map[string]int64{
	"JAKARTA UTARA":     30000,
	"JAKARTA BARAT":     30000,
	"JAKARTA PUSAT":     28000,
	"JAKARTA SELATAN":   30000,
	"JAKARTA TIMUR":     30000,
	"KEPULAUAN SERIBU":  60000,
	"BEKASI":            32000,
	"DEPOK":             32000,
	"TANGERANG":         32000,
	"TANGERANG SELATAN": 33000,
	"BOGOR":             35000,
}

// districtOverrides maps city -> district -> price per kg. Overrides are
// joint on (city, district): the same district name can price differently
// under different cities, so lookups always carry both.
var districtOverrides = map[string]map[string]int64{
	"JAKARTA UTARA": {
		"SUNTER JAYA":   27000,
		"SUNTER AGUNG":  27000,
		"KELAPA GADING": 26000,
		"PADEMANGAN":    28000,
	},
	"JAKARTA BARAT": {
		"CENGKARENG":  28000,
		"KEBON JERUK": 27000,
	},
	"JAKARTA SELATAN": {
		"KEBAYORAN BARU": 27000,
		"TEBET":          27000,
	},
	"BEKASI": {
		"BEKASI UTARA": 30000,
	},
	"TANGERANG": {
		"CIPONDOH": 30000,
	},
}

// surchargeRule adds a transit surcharge when its needle is contained in
// "CITY DISTRICT". Rules are evaluated in order, first match wins.
type surchargeRule struct {
	needle    string
	surcharge int64
}

var surchargeRules = []surchargeRule{
	{needle: "KEPULAUAN SERIBU", surcharge: 50000},
	{needle: "BOGOR", surcharge: 10000},
	{needle: "TANGERANG SELATAN", surcharge: 8000},
	{needle: "BEKASI UTARA", surcharge: 7000},
	{needle: "BEKASI", surcharge: 5000},
	{needle: "DEPOK", surcharge: 5000},
	{needle: "TANGERANG", surcharge: 5000},
}

// Resolve returns the price per kg and transit surcharge for a destination.
// Resolution order for the price: district override, city default, global
// fallback. Unknown cities or districts never fail; they fall through to the
// default tier so a booking can always be completed.
func Resolve(city, district string) Rate {
	c := normalize(city)
	d := normalize(district)

	price := fallbackPricePerKg
	if p, ok := cityDefaults[c]; ok {
		price = p
	}
	if ds, ok := districtOverrides[c]; ok {
		if p, ok := ds[d]; ok {
			price = p
		}
	}

	return Rate{
		PricePerKg:       price,
		TransitSurcharge: resolveSurcharge(c + " " + d),
	}
}

func resolveSurcharge(zone string) int64 {
	for _, r := range surchargeRules {
		if strings.Contains(zone, r.needle) {
			return r.surcharge
		}
	}
	return 0
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
