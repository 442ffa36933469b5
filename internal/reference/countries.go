package reference

// countryNames maps ISO3 codes to display names for sources that omit them.
var countryNames = map[string]string{
	"AFG": "Afghanistan", "AGO": "Angola", "ALB": "Albania", "ARE": "United Arab Emirates",
	"ARG": "Argentina", "ARM": "Armenia", "AUS": "Australia", "AUT": "Austria",
	"AZE": "Azerbaijan", "BEL": "Belgium", "BGD": "Bangladesh", "BGR": "Bulgaria",
	"BIH": "Bosnia and Herzegovina", "BLR": "Belarus", "BOL": "Bolivia", "BRA": "Brazil",
	"CAN": "Canada", "CHE": "Switzerland", "CHL": "Chile", "CHN": "China",
	"COD": "Congo, Dem. Rep.", "COL": "Colombia", "CRI": "Costa Rica", "CYP": "Cyprus",
	"CZE": "Czechia", "DEU": "Germany", "DNK": "Denmark", "DZA": "Algeria",
	"ECU": "Ecuador", "EGY": "Egypt", "ESP": "Spain", "EST": "Estonia",
	"ETH": "Ethiopia", "FIN": "Finland", "FRA": "France", "GBR": "United Kingdom",
	"GEO": "Georgia", "GHA": "Ghana", "GRC": "Greece", "HKG": "Hong Kong SAR, China",
	"HRV": "Croatia", "HUN": "Hungary", "IDN": "Indonesia", "IND": "India",
	"IRL": "Ireland", "IRN": "Iran", "ISL": "Iceland", "ISR": "Israel",
	"ITA": "Italy", "JPN": "Japan", "KAZ": "Kazakhstan", "KEN": "Kenya",
	"KOR": "Korea, Rep.", "LTU": "Lithuania", "LUX": "Luxembourg", "LVA": "Latvia",
	"MAR": "Morocco", "MEX": "Mexico", "MLT": "Malta", "MMR": "Myanmar",
	"MOZ": "Mozambique", "MRT": "Mauritania", "MWI": "Malawi", "MYS": "Malaysia",
	"NGA": "Nigeria", "NLD": "Netherlands", "NOR": "Norway", "NZL": "New Zealand",
	"PAK": "Pakistan", "PER": "Peru", "PHL": "Philippines", "POL": "Poland",
	"PRT": "Portugal", "ROU": "Romania", "RUS": "Russian Federation", "SAU": "Saudi Arabia",
	"SDN": "Sudan", "SGP": "Singapore", "SRB": "Serbia", "STP": "Sao Tome and Principe",
	"SUR": "Suriname", "SVK": "Slovakia", "SVN": "Slovenia", "SWE": "Sweden",
	"THA": "Thailand", "TJK": "Tajikistan", "TKM": "Turkmenistan", "TUN": "Tunisia",
	"TUR": "Turkiye", "TWN": "Taiwan", "UKR": "Ukraine", "URY": "Uruguay",
	"USA": "United States", "UZB": "Uzbekistan", "VEN": "Venezuela", "VNM": "Viet Nam",
	"ZAF": "South Africa", "ZMB": "Zambia", "ZWE": "Zimbabwe",
}

// CountryName returns the display name for code, or "" when unknown.
func CountryName(code string) string {
	return countryNames[code]
}
