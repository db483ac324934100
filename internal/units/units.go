// Package units provides conversions and human-readable formatting for the
// field quantities the coverage pipeline reports: worked area, distances and
// work rates.
package units

import "fmt"

// SquareMetersPerHectare is the conversion factor between m² and hectares.
const SquareMetersPerHectare = 10000.0

// SquareMetersPerAcre is the conversion factor between m² and acres.
const SquareMetersPerAcre = 4046.8564224

// Hectares converts an area in square metres to hectares.
func Hectares(squareMeters float64) float64 {
	return squareMeters / SquareMetersPerHectare
}

// Acres converts an area in square metres to acres.
func Acres(squareMeters float64) float64 {
	return squareMeters / SquareMetersPerAcre
}

// FormatArea renders an area in square metres using the unit that reads best:
// m² below a tenth of a hectare, hectares above.
func FormatArea(squareMeters float64) string {
	if squareMeters < SquareMetersPerHectare/10 {
		return fmt.Sprintf("%.0f m²", squareMeters)
	}
	return fmt.Sprintf("%.2f ha", Hectares(squareMeters))
}

// FormatDistance renders a distance in metres, switching to kilometres at 1 km.
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%.1f m", meters)
	}
	return fmt.Sprintf("%.2f km", meters/1000)
}

// FormatWorkRate renders an area-per-hour work rate in hectares per hour.
func FormatWorkRate(squareMetersPerHour float64) string {
	return fmt.Sprintf("%.2f ha/h", Hectares(squareMetersPerHour))
}
