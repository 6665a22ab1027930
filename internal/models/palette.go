package models

// Six-color palettes, one per weekday. A weekday's templates prefer unused
// palette colors; once all six are taken a color is repeated.
var (
	mondayColors    = []string{"#1E3A8A", "#1E40AF", "#2563EB", "#3B82F6", "#60A5FA", "#93C5FD"}
	tuesdayColors   = []string{"#166534", "#15803D", "#16A34A", "#22C55E", "#4ADE80", "#86EFAC"}
	wednesdayColors = []string{"#831843", "#9D174D", "#DB2777", "#EC4899", "#F472B6", "#F9A8D4"}
	thursdayColors  = []string{"#7C2D12", "#C2410C", "#EA580C", "#F97316", "#FB923C", "#FDBA74"}
	fridayColors    = []string{"#7F1D1D", "#B91C1C", "#DC2626", "#EF4444", "#F87171", "#FCA5A5"}
)

// PaletteFor returns the fixed palette for a weekday bucket.
func PaletteFor(weekday Weekday) []string {
	switch weekday {
	case Tuesday:
		return tuesdayColors
	case Wednesday:
		return wednesdayColors
	case Thursday:
		return thursdayColors
	case Friday:
		return fridayColors
	default:
		return mondayColors
	}
}
