package reference

import "econindex/internal/model"

// aggregateCodes are World Bank region, income and lending groups. They are
// three letters long but are not countries.
var aggregateCodes = map[string]bool{
	"AFE": true, "AFW": true, "ARB": true, "CEB": true, "CSS": true, "EAP": true,
	"EAR": true, "EAS": true, "ECA": true, "ECS": true, "EMU": true, "EUU": true,
	"FCS": true, "HIC": true, "HPC": true, "IBD": true, "IBT": true, "IDA": true,
	"IDB": true, "IDX": true, "INX": true, "LAC": true, "LCN": true, "LDC": true,
	"LIC": true, "LMC": true, "LMY": true, "LTE": true, "MEA": true, "MIC": true,
	"MNA": true, "NAC": true, "OED": true, "OSS": true, "PRE": true, "PSS": true,
	"PST": true, "SAS": true, "SSA": true, "SSF": true, "SST": true, "TEA": true,
	"TEC": true, "TLA": true, "TMN": true, "TSA": true, "TSS": true, "UMC": true,
	"WLD": true,
}

// IsAggregate reports whether code names a multi-country aggregate.
func IsAggregate(code string) bool {
	return aggregateCodes[code]
}

// IsCountry reports whether code is an ISO3 code that is not an aggregate.
func IsCountry(code string) bool {
	return model.IsISO3(code) && !aggregateCodes[code]
}
