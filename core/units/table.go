// Package units holds the unit conversion table and the grid converter
// built on top of it.
//
// The table maps an ordered (from, to) pair of unit tags to a formula.
// Forward and backward entries are listed separately; a pair missing from
// the table is not derived from its reverse.
package units

import "sort"

// Formula converts a single value between two units.
type Formula func(float64) float64

// Kind describes the shape of a formula.
type Kind string

const (
	KindLinear      Kind = "linear"
	KindAffine      Kind = "affine"
	KindLogarithmic Kind = "logarithmic"
	KindReciprocal  Kind = "reciprocal"
	KindStep        Kind = "step"
)

// Categories group table entries for catalog listings.
const (
	CategoryMass        = "mass"
	CategoryLength      = "length"
	CategoryTemperature = "temperature"
	CategorySpeed       = "speed"
	CategoryArea        = "area"
	CategoryVolume      = "volume"
	CategoryTime        = "time"
	CategoryPressure    = "pressure"
	CategoryEnergy      = "energy"
	CategoryPower       = "power"
	CategoryStorage     = "storage"
	CategorySizing      = "sizing"
	CategoryCooking     = "cooking"
	CategoryFitness     = "fitness"
	CategoryFuel        = "fuel"
	CategoryForce       = "force"
	CategoryTyping      = "typing"
	CategoryGrades      = "grades"
)

// Pair describes one table entry.
type Pair struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Category string `json:"category"`
	Kind     Kind   `json:"kind"`
}

type pairKey struct {
	from, to string
}

type entry struct {
	pair Pair
	fn   Formula
}

func mul(k float64) Formula { return func(v float64) float64 { return v * k } }
func div(k float64) Formula { return func(v float64) float64 { return v / k } }

// definitions is the authored table. Order is the catalog order.
var definitions = []entry{
	// mass
	{Pair{"kg", "lb", CategoryMass, KindLinear}, KgToLbs},
	{Pair{"lb", "kg", CategoryMass, KindLinear}, LbsToKg},
	{Pair{"g", "oz", CategoryMass, KindLinear}, GramsToOz},
	{Pair{"oz", "g", CategoryMass, KindLinear}, OzToGrams},
	{Pair{"kg", "g", CategoryMass, KindLinear}, mul(GramsPerKg)},
	{Pair{"g", "kg", CategoryMass, KindLinear}, div(GramsPerKg)},
	{Pair{"tonne", "kg", CategoryMass, KindLinear}, mul(KgPerTonne)},
	{Pair{"kg", "tonne", CategoryMass, KindLinear}, div(KgPerTonne)},
	{Pair{"stone", "kg", CategoryMass, KindLinear}, mul(KgPerStone)},
	{Pair{"kg", "stone", CategoryMass, KindLinear}, div(KgPerStone)},

	// length
	{Pair{"m", "cm", CategoryLength, KindLinear}, mul(CmPerMeter)},
	{Pair{"cm", "m", CategoryLength, KindLinear}, div(CmPerMeter)},
	{Pair{"m", "mm", CategoryLength, KindLinear}, mul(MmPerMeter)},
	{Pair{"mm", "m", CategoryLength, KindLinear}, div(MmPerMeter)},
	{Pair{"km", "m", CategoryLength, KindLinear}, KmToM},
	{Pair{"m", "km", CategoryLength, KindLinear}, MToKm},
	{Pair{"inch", "cm", CategoryLength, KindLinear}, InToCm},
	{Pair{"cm", "inch", CategoryLength, KindLinear}, CmToIn},
	{Pair{"ft", "m", CategoryLength, KindLinear}, mul(MetersPerFoot)},
	{Pair{"m", "ft", CategoryLength, KindLinear}, div(MetersPerFoot)},
	{Pair{"yard", "m", CategoryLength, KindLinear}, mul(MetersPerYard)},
	{Pair{"m", "yard", CategoryLength, KindLinear}, div(MetersPerYard)},
	{Pair{"ft", "inch", CategoryLength, KindLinear}, mul(InchesPerFoot)},
	{Pair{"inch", "ft", CategoryLength, KindLinear}, div(InchesPerFoot)},
	{Pair{"mile", "km", CategoryLength, KindLinear}, MileToKm},
	{Pair{"km", "mile", CategoryLength, KindLinear}, KmToMile},
	{Pair{"nautical_mile", "km", CategoryLength, KindLinear}, mul(KmPerNauticalMile)},
	{Pair{"km", "nautical_mile", CategoryLength, KindLinear}, div(KmPerNauticalMile)},

	// temperature
	{Pair{"celsius", "fahrenheit", CategoryTemperature, KindAffine}, CToF},
	{Pair{"fahrenheit", "celsius", CategoryTemperature, KindAffine}, FToC},
	{Pair{"celsius", "kelvin", CategoryTemperature, KindAffine}, CToK},
	{Pair{"kelvin", "celsius", CategoryTemperature, KindAffine}, KToC},
	{Pair{"fahrenheit", "kelvin", CategoryTemperature, KindAffine}, func(f float64) float64 { return CToK(FToC(f)) }},
	{Pair{"kelvin", "fahrenheit", CategoryTemperature, KindAffine}, func(k float64) float64 { return CToF(KToC(k)) }},

	// speed
	{Pair{"kmh", "mph", CategorySpeed, KindLinear}, KmhToMph},
	{Pair{"mph", "kmh", CategorySpeed, KindLinear}, MphToKmh},
	{Pair{"mps", "kmh", CategorySpeed, KindLinear}, mul(KmhPerMps)},
	{Pair{"kmh", "mps", CategorySpeed, KindLinear}, div(KmhPerMps)},
	{Pair{"knot", "kmh", CategorySpeed, KindLinear}, mul(KmhPerKnot)},
	{Pair{"kmh", "knot", CategorySpeed, KindLinear}, div(KmhPerKnot)},

	// area
	{Pair{"sqm", "sqft", CategoryArea, KindLinear}, SqmToSqft},
	{Pair{"sqft", "sqm", CategoryArea, KindLinear}, SqftToSqm},
	{Pair{"hectare", "sqm", CategoryArea, KindLinear}, mul(SqmPerHectare)},
	{Pair{"sqm", "hectare", CategoryArea, KindLinear}, div(SqmPerHectare)},
	{Pair{"acre", "hectare", CategoryArea, KindLinear}, mul(HectaresPerAcre)},
	{Pair{"hectare", "acre", CategoryArea, KindLinear}, div(HectaresPerAcre)},
	{Pair{"acre", "sqft", CategoryArea, KindLinear}, mul(SqftPerAcre)},
	{Pair{"sqft", "acre", CategoryArea, KindLinear}, div(SqftPerAcre)},

	// volume
	{Pair{"l", "gal", CategoryVolume, KindLinear}, LToGal},
	{Pair{"gal", "l", CategoryVolume, KindLinear}, GalToL},
	{Pair{"l", "ml", CategoryVolume, KindLinear}, mul(MlPerLiter)},
	{Pair{"ml", "l", CategoryVolume, KindLinear}, div(MlPerLiter)},
	{Pair{"fl_oz", "ml", CategoryVolume, KindLinear}, mul(MlPerFlOz)},
	{Pair{"ml", "fl_oz", CategoryVolume, KindLinear}, div(MlPerFlOz)},

	// time
	{Pair{"hour", "min", CategoryTime, KindLinear}, HrsToMin},
	{Pair{"min", "hour", CategoryTime, KindLinear}, div(MinutesPerHour)},
	{Pair{"min", "sec", CategoryTime, KindLinear}, MinToSec},
	{Pair{"sec", "min", CategoryTime, KindLinear}, div(SecondsPerMinute)},
	{Pair{"day", "hour", CategoryTime, KindLinear}, mul(HoursPerDay)},
	{Pair{"hour", "day", CategoryTime, KindLinear}, div(HoursPerDay)},
	{Pair{"week", "day", CategoryTime, KindLinear}, mul(DaysPerWeek)},
	{Pair{"day", "week", CategoryTime, KindLinear}, div(DaysPerWeek)},

	// pressure
	{Pair{"psi", "pa", CategoryPressure, KindLinear}, PsiToPa},
	{Pair{"pa", "psi", CategoryPressure, KindLinear}, PaToPsi},
	{Pair{"bar", "pa", CategoryPressure, KindLinear}, mul(PascalsPerBar)},
	{Pair{"pa", "bar", CategoryPressure, KindLinear}, div(PascalsPerBar)},
	{Pair{"atm", "pa", CategoryPressure, KindLinear}, mul(PascalsPerAtm)},
	{Pair{"pa", "atm", CategoryPressure, KindLinear}, div(PascalsPerAtm)},
	{Pair{"kpa", "pa", CategoryPressure, KindLinear}, mul(PascalsPerKPa)},
	{Pair{"pa", "kpa", CategoryPressure, KindLinear}, div(PascalsPerKPa)},
	{Pair{"bar", "psi", CategoryPressure, KindLinear}, mul(PSIPerBar)},
	{Pair{"psi", "bar", CategoryPressure, KindLinear}, div(PSIPerBar)},

	// energy
	{Pair{"j", "cal", CategoryEnergy, KindLinear}, JToCal},
	{Pair{"cal", "j", CategoryEnergy, KindLinear}, CalToJ},
	{Pair{"kcal", "j", CategoryEnergy, KindLinear}, mul(JoulesPerKcal)},
	{Pair{"j", "kcal", CategoryEnergy, KindLinear}, div(JoulesPerKcal)},
	{Pair{"kwh", "j", CategoryEnergy, KindLinear}, mul(JoulesPerKWh)},
	{Pair{"j", "kwh", CategoryEnergy, KindLinear}, div(JoulesPerKWh)},
	{Pair{"btu", "j", CategoryEnergy, KindLinear}, mul(JoulesPerBTU)},
	{Pair{"j", "btu", CategoryEnergy, KindLinear}, div(JoulesPerBTU)},

	// power
	{Pair{"watt", "kw", CategoryPower, KindLinear}, WToKw},
	{Pair{"kw", "watt", CategoryPower, KindLinear}, KwToW},
	{Pair{"hp", "kw", CategoryPower, KindLinear}, mul(KWPerHP)},
	{Pair{"kw", "hp", CategoryPower, KindLinear}, div(KWPerHP)},
	{Pair{"watt", "dbm", CategoryPower, KindLogarithmic}, WattToDBm},
	{Pair{"dbm", "watt", CategoryPower, KindLogarithmic}, DBmToWatt},

	// storage
	{Pair{"kb", "mb", CategoryStorage, KindLinear}, KbToMb},
	{Pair{"mb", "kb", CategoryStorage, KindLinear}, mul(StorageStep)},
	{Pair{"mb", "gb", CategoryStorage, KindLinear}, MbToGb},
	{Pair{"gb", "mb", CategoryStorage, KindLinear}, mul(StorageStep)},
	{Pair{"gb", "tb", CategoryStorage, KindLinear}, GbToTb},
	{Pair{"tb", "gb", CategoryStorage, KindLinear}, mul(StorageStep)},
	{Pair{"byte", "kb", CategoryStorage, KindLinear}, div(StorageStep)},
	{Pair{"kb", "byte", CategoryStorage, KindLinear}, mul(StorageStep)},
	{Pair{"bit", "byte", CategoryStorage, KindLinear}, div(BitsPerByte)},
	{Pair{"byte", "bit", CategoryStorage, KindLinear}, mul(BitsPerByte)},

	// sizing
	{Pair{"ring_us", "ring_eu", CategorySizing, KindAffine}, USToEURing},
	{Pair{"ring_eu", "ring_us", CategorySizing, KindAffine}, EUToUSRing},
	{Pair{"shoe_us", "shoe_eu", CategorySizing, KindAffine}, USShoeToEU},
	{Pair{"shoe_eu", "shoe_us", CategorySizing, KindAffine}, EUShoeToUS},
	{Pair{"clothing_us", "clothing_eu", CategorySizing, KindAffine}, USToEUClothing},
	{Pair{"clothing_eu", "clothing_us", CategorySizing, KindAffine}, EUToUSClothing},

	// cooking
	{Pair{"tsp", "tbsp", CategoryCooking, KindLinear}, TspToTbsp},
	{Pair{"tbsp", "tsp", CategoryCooking, KindLinear}, TbspToTsp},
	{Pair{"cup", "ml", CategoryCooking, KindLinear}, CupToMl},
	{Pair{"ml", "cup", CategoryCooking, KindLinear}, MlToCup},
	{Pair{"tbsp", "ml", CategoryCooking, KindLinear}, mul(MlPerTbsp)},
	{Pair{"ml", "tbsp", CategoryCooking, KindLinear}, div(MlPerTbsp)},
	{Pair{"tsp", "ml", CategoryCooking, KindLinear}, mul(MlPerTsp)},
	{Pair{"ml", "tsp", CategoryCooking, KindLinear}, div(MlPerTsp)},

	// fitness
	{Pair{"steps", "km", CategoryFitness, KindLinear}, StepsToKm},
	{Pair{"km", "steps", CategoryFitness, KindLinear}, KmToSteps},

	// fuel
	{Pair{"km_per_l", "l_per_100km", CategoryFuel, KindReciprocal}, KmPerLToLPer100Km},
	{Pair{"l_per_100km", "km_per_l", CategoryFuel, KindReciprocal}, LPer100KmToKmPerL},
	{Pair{"mpg", "km_per_l", CategoryFuel, KindLinear}, mul(KmPerLPerMPG)},
	{Pair{"km_per_l", "mpg", CategoryFuel, KindLinear}, div(KmPerLPerMPG)},

	// force
	{Pair{"newton", "lbf", CategoryForce, KindLinear}, NewtonsToPoundsForce},
	{Pair{"lbf", "newton", CategoryForce, KindLinear}, PoundsForceToNewtons},

	// typing
	{Pair{"wpm", "cpm", CategoryTyping, KindLinear}, WpmToCpm},
	{Pair{"cpm", "wpm", CategoryTyping, KindLinear}, CpmToWpm},

	// grades
	{Pair{"percent", "gpa", CategoryGrades, KindStep}, PercentToGPA},
	{Pair{"gpa", "percent", CategoryGrades, KindStep}, GPAToPercent},
}

// table is built once and only read afterwards.
var table = buildTable(definitions)

func buildTable(defs []entry) map[pairKey]entry {
	m := make(map[pairKey]entry, len(defs))
	for _, e := range defs {
		k := pairKey{e.pair.From, e.pair.To}
		if _, dup := m[k]; dup {
			panic("units: duplicate table entry " + e.pair.From + " -> " + e.pair.To)
		}
		m[k] = e
	}
	return m
}

// Lookup returns the formula registered for the ordered pair.
func Lookup(from, to string) (Formula, bool) {
	e, ok := table[pairKey{from, to}]
	if !ok {
		return nil, false
	}
	return e.fn, true
}

// Convert applies the (from, to) formula to value.
func Convert(value float64, from, to string) (float64, bool) {
	fn, ok := Lookup(from, to)
	if !ok {
		return 0, false
	}
	return fn(value), true
}

// Describe returns the catalog entry for a pair.
func Describe(from, to string) (Pair, bool) {
	e, ok := table[pairKey{from, to}]
	return e.pair, ok
}

// Pairs returns every table entry in catalog order. A non-empty category
// restricts the listing.
func Pairs(category string) []Pair {
	pairs := make([]Pair, 0, len(definitions))
	for _, e := range definitions {
		if category != "" && e.pair.Category != category {
			continue
		}
		pairs = append(pairs, e.pair)
	}
	return pairs
}

// Categories returns the distinct category names, sorted.
func Categories() []string {
	seen := make(map[string]bool)
	var cats []string
	for _, e := range definitions {
		if !seen[e.pair.Category] {
			seen[e.pair.Category] = true
			cats = append(cats, e.pair.Category)
		}
	}
	sort.Strings(cats)
	return cats
}

// Units returns every unit tag that appears on either side of the table, sorted.
func Units() []string {
	seen := make(map[string]bool)
	for _, e := range definitions {
		seen[e.pair.From] = true
		seen[e.pair.To] = true
	}
	tags := make([]string, 0, len(seen))
	for t := range seen {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
