package config

// Default canonical entity lists for a small reference deployment. Real
// plants override all three lists in the config file; the defaults keep the
// binary usable against the sample database shipped in db/migrations.

// DefaultMachines are canonical equipment names as they appear in the
// machines_status and products_status tables.
var DefaultMachines = []string{
	"Tear 01 - Jager TP100",
	"Tear 02 - Somet",
	"Tear 03 - Jager TP200",
	"Agulhadeira 01",
	"Agulhadeira 02",
	"Ramosa 01",
	"CLT1",
	"CLT2",
	"Autoclave 01",
}

// DefaultTicketMachines are the same machines in the formatting the external
// ticketing system uses for its equipment field.
var DefaultTicketMachines = []string{
	"TEAR-01 JAGER TP100",
	"TEAR-02 SOMET",
	"TEAR-03 JAGER TP200",
	"AGULHADEIRA-01",
	"AGULHADEIRA-02",
	"RAMOSA-01",
	"CLT1",
	"CLT2",
	"AUTOCLAVE-01",
}

// DefaultOrderStatuses is the closed set of service-order statuses accepted
// by the ticketing API.
var DefaultOrderStatuses = []string{
	"New Request",
	"In Progress",
	"Completed",
}
