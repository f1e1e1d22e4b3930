package stations

// seedStations is a small embedded reference set covering the busiest
// national rail stations, used when no reference database is configured.
var seedStations = map[string]string{
	"KGX": "London Kings Cross",
	"EUS": "London Euston",
	"PAD": "London Paddington",
	"WAT": "London Waterloo",
	"VIC": "London Victoria",
	"LST": "London Liverpool Street",
	"LBG": "London Bridge",
	"STP": "London St Pancras International",
	"CHX": "London Charing Cross",
	"MYB": "London Marylebone",
	"BHM": "Birmingham New Street",
	"MAN": "Manchester Piccadilly",
	"LDS": "Leeds",
	"YRK": "York",
	"NCL": "Newcastle",
	"EDB": "Edinburgh Waverley",
	"GLC": "Glasgow Central",
	"BRI": "Bristol Temple Meads",
	"CDF": "Cardiff Central",
	"LIV": "Liverpool Lime Street",
	"SHF": "Sheffield",
	"NOT": "Nottingham",
	"RDG": "Reading",
	"OXF": "Oxford",
	"CBG": "Cambridge",
	"BTN": "Brighton",
	"SOU": "Southampton Central",
	"EXD": "Exeter St Davids",
	"PLY": "Plymouth",
	"ABD": "Aberdeen",
}
