package pricing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolve_districtOverride(t *testing.T) {
	r := Resolve("JAKARTA UTARA", "Sunter Jaya")
	require.Equal(t, int64(27000), r.PricePerKg)
	require.Equal(t, int64(0), r.TransitSurcharge)
}

func TestResolve_cityDefaultForUnlistedDistrict(t *testing.T) {
	override := Resolve("JAKARTA UTARA", "Sunter Jaya")
	def := Resolve("JAKARTA UTARA", "Cilincing")
	require.Equal(t, int64(30000), def.PricePerKg)
	require.NotEqual(t, override.PricePerKg, def.PricePerKg)
}

func TestResolve_unknownCityFallsBack(t *testing.T) {
	r := Resolve("SURABAYA", "Gubeng")
	require.Equal(t, int64(fallbackPricePerKg), r.PricePerKg)
	require.Equal(t, int64(0), r.TransitSurcharge)
}

func TestResolve_deterministic(t *testing.T) {
	a := Resolve("BEKASI", "Bekasi Utara")
	b := Resolve("BEKASI", "Bekasi Utara")
	require.Equal(t, a, b)
}

func TestResolve_normalizesInput(t *testing.T) {
	a := Resolve("  jakarta utara ", "sunter jaya")
	require.Equal(t, int64(27000), a.PricePerKg)
}

func TestResolve_surchargeFirstMatchWins(t *testing.T) {
	// "BEKASI UTARA" must hit its own rule before the broader "BEKASI" one.
	r := Resolve("BEKASI", "Bekasi Utara")
	require.Equal(t, int64(7000), r.TransitSurcharge)

	r = Resolve("BEKASI", "Bekasi Selatan")
	require.Equal(t, int64(5000), r.TransitSurcharge)
}

func TestResolve_surchargeIndependentOfPrice(t *testing.T) {
	// Kepulauan Seribu has both a city price and a surcharge rule; the two
	// are resolved independently.
	r := Resolve("KEPULAUAN SERIBU", "Pulau Tidung")
	require.Equal(t, int64(60000), r.PricePerKg)
	require.Equal(t, int64(50000), r.TransitSurcharge)
}
