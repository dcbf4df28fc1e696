package testutils

// Category values of the bank-marketing dataset (bank-additional variant).
var (
	Jobs = []string{
		"admin.", "blue-collar", "entrepreneur", "housemaid", "management", "retired",
		"self-employed", "services", "student", "technician", "unemployed", "unknown",
	}
	MaritalStatuses = []string{"divorced", "married", "single", "unknown"}
	Educations      = []string{
		"basic.4y", "basic.6y", "basic.9y", "high.school", "illiterate",
		"professional.course", "university.degree", "unknown",
	}
	YesNoUnknown = []string{"no", "yes", "unknown"}
	Contacts     = []string{"cellular", "telephone"}
	Months       = []string{"mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"}
	DaysOfWeek   = []string{"mon", "tue", "wed", "thu", "fri"}
	Poutcomes    = []string{"failure", "nonexistent", "success"}
)

// RawColumns lists the columns of a raw bank-marketing file in file order.
var RawColumns = []string{
	"age", "job", "marital", "education", "default", "housing", "loan", "contact",
	"month", "day_of_week", "duration", "campaign", "pdays", "previous", "poutcome",
	"emp.var.rate", "cons.price.idx", "cons.conf.idx", "euribor3m", "nr.employed", "y",
}
