package classify

// Taxonomy is the fixed set of macro-topic labels. The classifier must
// return one of these verbatim; Unknown is the only fallback.
var Taxonomy = []string{
	// Procedural
	"Procedural & Session Management",
	"Voting & Explanations of Votes",
	"Rules of Procedure & Immunities",
	"Petitions & Citizens' Initiatives",

	// Institutional
	"EU Institutional Affairs",
	"Commission Oversight & Scrutiny",
	"EU Budget & Financial Framework",
	"Budgetary Discharge & Control",
	"Treaty Reform & Constitutional Affairs",
	"EU Elections & Parliamentary Composition",

	// Country-specific and external relations
	"Country-Specific Situations",
	"Foreign Affairs & Diplomacy",
	"EU Enlargement & Neighbourhood Policy",
	"Russia & Ukraine War",
	"Middle East Affairs",
	"China Relations",
	"Transatlantic Relations",
	"International Trade & Agreements",
	"Development Cooperation & Humanitarian Aid",
	"Defence & Military Cooperation",
	"Security & Counter-Terrorism",

	// Rights and justice
	"Human Rights & Democracy",
	"Rule of Law",
	"Civil Liberties & Justice",
	"Gender Equality & Women's Rights",
	"Minority Rights & Anti-Discrimination",
	"Media Freedom & Disinformation",
	"Data Protection & Privacy",

	// Policy domains
	"Migration & Asylum",
	"Border Management & Schengen",
	"Agriculture & Fisheries",
	"Food Safety & Animal Welfare",
	"Environment & Biodiversity",
	"Climate Policy & Emissions",
	"Energy Policy & Security",
	"Transport & Mobility",
	"Digital Policy & Technology",
	"Artificial Intelligence Regulation",
	"Cybersecurity & Hybrid Threats",
	"Internal Market & Consumer Protection",
	"Industrial Policy & Competitiveness",
	"Competition & State Aid",
	"Economic & Monetary Policy",
	"Taxation & Financial Regulation",
	"Banking & Financial Services",
	"Employment & Social Policy",
	"Health & Pharmaceuticals",
	"Education, Culture & Sport",
	"Research & Innovation",

	// Fallback
	"Unknown",
}

var taxonomySet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(Taxonomy))
	for _, label := range Taxonomy {
		set[label] = struct{}{}
	}
	return set
}()

// IsLabel reports whether s is exactly one of the taxonomy labels.
func IsLabel(s string) bool {
	_, ok := taxonomySet[s]
	return ok
}
