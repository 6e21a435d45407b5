// Package conditions maps provider weather codes to the French labels shown to farmers.
package conditions

// Unknown is returned for any code missing from the table.
const Unknown = "Conditions inconnues"

var descriptions = map[int]string{
	0:  "Ciel dégagé",
	1:  "Principalement dégagé",
	2:  "Partiellement nuageux",
	3:  "Couvert",
	45: "Brouillard",
	48: "Brouillard givrant",
	51: "Bruine légère",
	53: "Bruine modérée",
	55: "Bruine dense",
	61: "Pluie légère",
	63: "Pluie modérée",
	65: "Pluie forte",
	71: "Neige légère",
	73: "Neige modérée",
	75: "Neige forte",
	80: "Averses légères",
	81: "Averses modérées",
	82: "Averses violentes",
	95: "Orage",
	96: "Orage avec grêle",
}

// Describe returns the label for code, or Unknown. Never returns an empty string.
func Describe(code int) string {
	if d, ok := descriptions[code]; ok {
		return d
	}
	return Unknown
}

// Known reports whether code has a dedicated label.
func Known(code int) bool {
	_, ok := descriptions[code]
	return ok
}
