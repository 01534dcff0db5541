package units

import "math"

// Mass

func LbsToKg(lbs float64) float64 { return lbs / LbsPerKg }
func KgToLbs(kg float64) float64  { return kg * LbsPerKg }

func GramsToOz(g float64) float64  { return g / GramsPerOunce }
func OzToGrams(oz float64) float64 { return oz * GramsPerOunce }

// Length

func CmToIn(cm float64) float64     { return cm / CmPerInch }
func InToCm(inches float64) float64 { return inches * CmPerInch }
func MToKm(m float64) float64       { return m / MetersPerKm }
func KmToM(km float64) float64      { return km * MetersPerKm }
func MileToKm(mi float64) float64   { return mi * KmPerMile }
func KmToMile(km float64) float64   { return km / KmPerMile }

// Temperature

func CToF(c float64) float64 { return c*9.0/5.0 + FahrenheitOffset }
func FToC(f float64) float64 { return (f - FahrenheitOffset) * 5.0 / 9.0 }
func CToK(c float64) float64 { return c + KelvinOffset }
func KToC(k float64) float64 { return k - KelvinOffset }

// Speed

func KmhToMph(kmh float64) float64 { return kmh * MphPerKmh }
func MphToKmh(mph float64) float64 { return mph / MphPerKmh }

// Area

func SqmToSqft(sqm float64) float64  { return sqm * SqftPerSqm }
func SqftToSqm(sqft float64) float64 { return sqft / SqftPerSqm }

// Volume

func LToGal(l float64) float64   { return l * GalPerLiter }
func GalToL(gal float64) float64 { return gal / GalPerLiter }

// Time

func HrsToMin(hrs float64) float64 { return hrs * MinutesPerHour }
func MinToSec(min float64) float64 { return min * SecondsPerMinute }

// Pressure

func PaToPsi(pa float64) float64  { return pa / PascalsPerPSI }
func PsiToPa(psi float64) float64 { return psi * PascalsPerPSI }

// Energy

func JToCal(j float64) float64   { return j / JoulesPerCalorie }
func CalToJ(cal float64) float64 { return cal * JoulesPerCalorie }

// Power

func WToKw(w float64) float64  { return w / WattsPerKW }
func KwToW(kw float64) float64 { return kw * WattsPerKW }

// WattToDBm converts watts to decibel-milliwatts. Non-positive input yields
// -Inf or NaN, as log10 does.
func WattToDBm(w float64) float64 { return 10*math.Log10(w) + 30 }

// DBmToWatt converts decibel-milliwatts to watts.
func DBmToWatt(dbm float64) float64 { return math.Pow(10, (dbm-30)/10) }

// Digital storage (binary multiples)

func KbToMb(kb float64) float64 { return kb / StorageStep }
func MbToGb(mb float64) float64 { return mb / StorageStep }
func GbToTb(gb float64) float64 { return gb / StorageStep }

// Ring, shoe and clothing sizes (US <-> EU, approximate)

func USToEURing(us float64) float64     { return us*RingEUStep + RingEUOffset }
func EUToUSRing(eu float64) float64     { return (eu - RingEUOffset) / RingEUStep }
func USShoeToEU(us float64) float64     { return us + ShoeEUOffset }
func EUShoeToUS(eu float64) float64     { return eu - ShoeEUOffset }
func USToEUClothing(us float64) float64 { return us + ClothingEUOffset }
func EUToUSClothing(eu float64) float64 { return eu - ClothingEUOffset }

// Cooking

func TspToTbsp(tsp float64) float64  { return tsp / TspPerTbsp }
func TbspToTsp(tbsp float64) float64 { return tbsp * TspPerTbsp }
func CupToMl(cup float64) float64    { return cup * MlPerCup }
func MlToCup(ml float64) float64     { return ml / MlPerCup }

// Fitness

func StepsToKm(steps float64) float64 { return steps * KmPerStep }
func KmToSteps(km float64) float64    { return km / KmPerStep }

// Fuel economy. Both directions are the same reciprocal.

func KmPerLToLPer100Km(kmpl float64) float64  { return 100 / kmpl }
func LPer100KmToKmPerL(lp100 float64) float64 { return 100 / lp100 }

// Force

func NewtonsToPoundsForce(n float64) float64   { return n * LbfPerNewton }
func PoundsForceToNewtons(lbf float64) float64 { return lbf / LbfPerNewton }

// Typing speed

func WpmToCpm(wpm float64) float64 { return wpm * CharsPerWord }
func CpmToWpm(cpm float64) float64 { return cpm / CharsPerWord }

// PercentToGPA maps a percentage mark onto the 4.0 grade point scale.
func PercentToGPA(percent float64) float64 {
	switch {
	case percent >= 85:
		return 4.0
	case percent >= 75:
		return 3.7
	case percent >= 65:
		return 3.3
	case percent >= 55:
		return 2.7
	case percent >= 50:
		return 2.0
	default:
		return 0.0
	}
}

// GPAToPercent maps a grade point back to a representative percentage.
func GPAToPercent(gpa float64) float64 {
	switch {
	case gpa >= 4.0:
		return 90
	case gpa >= 3.7:
		return 80
	case gpa >= 3.3:
		return 70
	case gpa >= 2.7:
		return 60
	case gpa >= 2.0:
		return 50
	default:
		return 40
	}
}
