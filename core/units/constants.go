package units

// Conversion constants. Each pair of units is tied to exactly one constant
// so that the single-value converters and the table agree.
const (
	LbsPerKg      = 2.20462
	GramsPerKg    = 1000.0
	KgPerTonne    = 1000.0
	KgPerStone    = 6.35029
	GramsPerOunce = 28.3495

	CmPerInch         = 2.54
	CmPerMeter        = 100.0
	MmPerMeter        = 1000.0
	MetersPerKm       = 1000.0
	MetersPerFoot     = 0.3048
	MetersPerYard     = 0.9144
	InchesPerFoot     = 12.0
	KmPerMile         = 1.60934
	KmPerNauticalMile = 1.852

	FahrenheitOffset = 32.0
	KelvinOffset     = 273.15

	MphPerKmh  = 0.621371
	KmhPerMps  = 3.6
	KmhPerKnot = 1.852

	SqftPerSqm      = 10.7639
	SqmPerHectare   = 10000.0
	HectaresPerAcre = 0.404686
	SqftPerAcre     = 43560.0

	GalPerLiter = 0.264172
	MlPerLiter  = 1000.0
	MlPerCup    = 236.588
	MlPerFlOz   = 29.5735
	MlPerTbsp   = 14.7868
	MlPerTsp    = 4.92892
	TspPerTbsp  = 3.0

	SecondsPerMinute = 60.0
	MinutesPerHour   = 60.0
	HoursPerDay      = 24.0
	DaysPerWeek      = 7.0

	PascalsPerPSI = 6894.76
	PascalsPerBar = 100000.0
	PascalsPerAtm = 101325.0
	PascalsPerKPa = 1000.0
	PSIPerBar     = 14.5038

	JoulesPerCalorie = 4.184
	JoulesPerKcal    = 4184.0
	JoulesPerKWh     = 3.6e6
	JoulesPerBTU     = 1055.06

	WattsPerKW = 1000.0
	KWPerHP    = 0.7457

	StorageStep = 1024.0
	BitsPerByte = 8.0

	RingEUOffset     = 36.5
	RingEUStep       = 2.5
	ShoeEUOffset     = 33.0
	ClothingEUOffset = 30.0

	KmPerStep = 0.000762

	KmPerLPerMPG = 0.425144

	LbfPerNewton = 0.224809

	CharsPerWord = 5.0
)
