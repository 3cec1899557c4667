package imagery

import "strings"

// Category is a broad aircraft class used when no picture exists for the
// exact type or manufacturer.
type Category string

const (
	CategoryUnknown    Category = ""
	CategoryAirliner   Category = "airliner"
	CategoryWidebody   Category = "widebody"
	CategoryRegional   Category = "regional"
	CategoryTurboprop  Category = "turboprop"
	CategoryBusiness   Category = "business"
	CategoryLight      Category = "light"
	CategoryHelicopter Category = "helicopter"
	CategoryMilitary   Category = "military"
	CategoryGlider     Category = "glider"
	CategoryBalloon    Category = "balloon"
	CategoryDrone      Category = "drone"
)

// TypeInfo describes an ICAO type designator.
type TypeInfo struct {
	Code         string   `json:"code"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Category     Category `json:"category,omitempty"`
}

// Label is a short human description: "Boeing B738", "Cessna", "helicopter".
func (t TypeInfo) Label() string {
	switch {
	case t.Manufacturer != "" && t.Code != "":
		return t.Manufacturer + " " + t.Code
	case t.Manufacturer != "":
		return t.Manufacturer
	case t.Code != "":
		return t.Code
	default:
		return string(t.Category)
	}
}

type maker struct {
	name     string
	category Category
}

var (
	airbus     = maker{"Airbus", CategoryAirliner}
	airbusWide = maker{"Airbus", CategoryWidebody}
	boeing     = maker{"Boeing", CategoryAirliner}
	boeingWide = maker{"Boeing", CategoryWidebody}
	embraer    = maker{"Embraer", CategoryRegional}
	bombardier = maker{"Bombardier", CategoryRegional}
	dehavCan   = maker{"De Havilland Canada", CategoryTurboprop}
	atr        = maker{"ATR", CategoryTurboprop}
	cessna     = maker{"Cessna", CategoryLight}
	piper      = maker{"Piper", CategoryLight}
	cirrus     = maker{"Cirrus", CategoryLight}
	diamond    = maker{"Diamond", CategoryLight}
	beech      = maker{"Beechcraft", CategoryLight}
	gulfstream = maker{"Gulfstream", CategoryBusiness}
	learjet    = maker{"Learjet", CategoryBusiness}
	dassault   = maker{"Dassault", CategoryBusiness}
	robinson   = maker{"Robinson", CategoryHelicopter}
	airbusHeli = maker{"Airbus Helicopters", CategoryHelicopter}
	bell       = maker{"Bell", CategoryHelicopter}
	sikorsky   = maker{"Sikorsky", CategoryHelicopter}
	mdd        = maker{"McDonnell Douglas", CategoryAirliner}
	lockheed   = maker{"Lockheed Martin", CategoryMilitary}
)

// knownTypes maps exact ICAO designators.
var knownTypes = map[string]maker{
	"A318": airbus, "A319": airbus, "A320": airbus, "A321": airbus,
	"A19N": airbus, "A20N": airbus, "A21N": airbus, "BCS1": airbus, "BCS3": airbus,
	"A306": airbusWide, "A30B": airbusWide, "A310": airbusWide, "A332": airbusWide,
	"A333": airbusWide, "A338": airbusWide, "A339": airbusWide, "A343": airbusWide,
	"A346": airbusWide, "A359": airbusWide, "A35K": airbusWide, "A388": airbusWide,

	"B712": boeing, "B733": boeing, "B734": boeing, "B735": boeing, "B736": boeing,
	"B737": boeing, "B738": boeing, "B739": boeing, "B37M": boeing, "B38M": boeing,
	"B39M": boeing, "B3XM": boeing, "B752": boeing, "B753": boeing,
	"B744": boeingWide, "B748": boeingWide, "B762": boeingWide, "B763": boeingWide,
	"B764": boeingWide, "B772": boeingWide, "B773": boeingWide, "B77L": boeingWide,
	"B77W": boeingWide, "B788": boeingWide, "B789": boeingWide, "B78X": boeingWide,

	"E135": embraer, "E145": embraer, "E45X": embraer, "E170": embraer, "E75L": embraer,
	"E75S": embraer, "E190": embraer, "E195": embraer, "E290": embraer, "E295": embraer,
	"E55P": {"Embraer", CategoryBusiness}, "E50P": {"Embraer", CategoryBusiness},

	"CRJ1": bombardier, "CRJ2": bombardier, "CRJ7": bombardier, "CRJ9": bombardier, "CRJX": bombardier,
	"CL30": {"Bombardier", CategoryBusiness}, "CL35": {"Bombardier", CategoryBusiness},
	"CL60": {"Bombardier", CategoryBusiness}, "GLEX": {"Bombardier", CategoryBusiness},
	"GL5T": {"Bombardier", CategoryBusiness}, "GL7T": {"Bombardier", CategoryBusiness},

	"DH8A": dehavCan, "DH8B": dehavCan, "DH8C": dehavCan, "DH8D": dehavCan, "DHC6": dehavCan,
	"AT43": atr, "AT45": atr, "AT72": atr, "AT75": atr, "AT76": atr,

	"C150": cessna, "C152": cessna, "C172": cessna, "C182": cessna, "C206": cessna, "C210": cessna,
	"C208": {"Cessna", CategoryTurboprop},
	"C25A": {"Cessna", CategoryBusiness}, "C25B": {"Cessna", CategoryBusiness},
	"C560": {"Cessna", CategoryBusiness}, "C56X": {"Cessna", CategoryBusiness},
	"C680": {"Cessna", CategoryBusiness}, "C68A": {"Cessna", CategoryBusiness},
	"C700": {"Cessna", CategoryBusiness},
	"P28A": piper, "P28R": piper, "PA32": piper, "PA46": piper,
	"SR20": cirrus, "SR22": cirrus, "S22T": cirrus,
	"DA40": diamond, "DA42": diamond, "DA62": diamond,
	"BE36": beech, "BE58": beech, "BE20": {"Beechcraft", CategoryTurboprop},
	"PC12": {"Pilatus", CategoryTurboprop}, "PC24": {"Pilatus", CategoryBusiness},

	"GLF4": gulfstream, "GLF5": gulfstream, "GLF6": gulfstream, "G280": gulfstream,
	"LJ35": learjet, "LJ45": learjet, "LJ60": learjet,
	"F2TH": dassault, "FA7X": dassault, "FA8X": dassault,

	"R22": robinson, "R44": robinson, "R66": robinson,
	"EC30": airbusHeli, "EC35": airbusHeli, "EC45": airbusHeli, "AS50": airbusHeli, "H160": airbusHeli,
	"B06": bell, "B407": bell, "B429": bell,
	"S76": sikorsky, "H60": sikorsky,
	"A139": {"Leonardo", CategoryHelicopter},

	"MD11": {"McDonnell Douglas", CategoryWidebody}, "MD88": mdd, "MD90": mdd,

	"C130": lockheed, "C30J": lockheed, "F16": lockheed, "F35": lockheed,
	"C17": {"Boeing", CategoryMilitary}, "K35R": {"Boeing", CategoryMilitary},
	"F18S": {"Boeing", CategoryMilitary}, "E3TF": {"Boeing", CategoryMilitary},
}

// prefixRules catch designators missing from knownTypes. Longer prefixes
// come first.
var prefixRules = []struct {
	prefix string
	maker  maker
}{
	{"CRJ", bombardier},
	{"DH8", dehavCan},
	{"AT7", atr},
	{"AT4", atr},
	{"GLF", gulfstream},
	{"SR2", cirrus},
	{"B7", boeing},
	{"B3", boeing},
	{"A3", airbus},
	{"A2", airbus},
	{"E1", embraer},
	{"E2", embraer},
	{"CL", maker{"Bombardier", CategoryBusiness}},
	{"GL", maker{"Bombardier", CategoryBusiness}},
	{"LJ", learjet},
	{"FA", dassault},
	{"EC", airbusHeli},
	{"AS", airbusHeli},
	{"R4", robinson},
	{"R2", robinson},
	{"MD", mdd},
	{"C1", cessna},
	{"C2", cessna},
	{"P2", piper},
	{"PA", piper},
	{"DA", diamond},
}

// LookupType classifies an ICAO type designator. Unknown designators
// return the code with no manufacturer or category.
func LookupType(typeCode string) TypeInfo {
	code := strings.ToUpper(strings.TrimSpace(typeCode))
	if code == "" {
		return TypeInfo{}
	}

	if m, ok := knownTypes[code]; ok {
		return TypeInfo{Code: code, Manufacturer: m.name, Category: m.category}
	}
	for _, r := range prefixRules {
		if strings.HasPrefix(code, r.prefix) {
			return TypeInfo{Code: code, Manufacturer: r.maker.name, Category: r.maker.category}
		}
	}
	return TypeInfo{Code: code}
}

// CategoryFromEmitter maps an ADS-B emitter category (A1..A7, B1..B7) to
// a Category. Unknown or empty categories map to CategoryUnknown.
func CategoryFromEmitter(emitter string) Category {
	switch strings.ToUpper(strings.TrimSpace(emitter)) {
	case "A1", "B4":
		return CategoryLight
	case "A2":
		return CategoryBusiness
	case "A3", "A4":
		return CategoryAirliner
	case "A5":
		return CategoryWidebody
	case "A6":
		return CategoryMilitary
	case "A7":
		return CategoryHelicopter
	case "B1":
		return CategoryGlider
	case "B2":
		return CategoryBalloon
	case "B6":
		return CategoryDrone
	default:
		return CategoryUnknown
	}
}

func slug(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), "-"))
}
