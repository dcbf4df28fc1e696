// Package testutils provides utilities for testing, including mock objects and
// test data generators. These components are intended for internal use within
// the project's test suites and are not part of the public API.
package testutils

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/ahrav/go-bankprep/internal/domain"
)

// GenerateBankRecords creates n synthetic raw bank-marketing records with
// row ids "row-0".."row-<n-1>". The seed parameter controls randomization;
// the same seed always yields the same records.
func GenerateBankRecords(n int, seed int64) []domain.Record {
	rng := rand.New(rand.NewSource(seed))
	records := make([]domain.Record, n)
	for i := range n {
		records[i] = domain.Record{
			RowID:  fmt.Sprintf("row-%d", i),
			Fields: generateBankFields(rng),
		}
	}
	return records
}

func generateBankFields(rng *rand.Rand) map[string]string {
	pick := func(values []string) string { return values[rng.Intn(len(values))] }
	num := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

	pdays := 999.0
	previous := 0.0
	poutcome := "nonexistent"
	if rng.Float64() < 0.2 {
		pdays = float64(rng.Intn(27))
		previous = float64(1 + rng.Intn(6))
		poutcome = pick([]string{"failure", "success"})
	}

	empVar := []float64{-3.4, -2.9, -1.8, -1.1, -0.1, 1.1, 1.4}[rng.Intn(7)]
	label := "no"
	if rng.Float64() < 0.12 {
		label = "yes"
	}

	return map[string]string{
		"age":            strconv.Itoa(17 + rng.Intn(75)),
		"job":            pick(Jobs),
		"marital":        pick(MaritalStatuses),
		"education":      pick(Educations),
		"default":        pick(YesNoUnknown),
		"housing":        pick(YesNoUnknown),
		"loan":           pick(YesNoUnknown),
		"contact":        pick(Contacts),
		"month":          pick(Months),
		"day_of_week":    pick(DaysOfWeek),
		"duration":       strconv.Itoa(rng.Intn(1500)),
		"campaign":       strconv.Itoa(1 + rng.Intn(12)),
		"pdays":          num(pdays),
		"previous":       num(previous),
		"poutcome":       poutcome,
		"emp.var.rate":   num(empVar),
		"cons.price.idx": num(92.2 + float64(rng.Intn(25))/10),
		"cons.conf.idx":  num(-50.8 + float64(rng.Intn(240))/10),
		"euribor3m":      num(0.634 + float64(rng.Intn(4400))/1000),
		"nr.employed":    num([]float64{4963.6, 5008.7, 5099.1, 5191.0, 5228.1}[rng.Intn(5)]),
		"y":              label,
	}
}

// BankRecord returns one fixed, valid raw record with the given overrides
// applied. A nil override value deletes the field.
func BankRecord(rowID string, overrides map[string]*string) domain.Record {
	fields := map[string]string{
		"age": "41", "job": "technician", "marital": "married", "education": "university.degree",
		"default": "no", "housing": "yes", "loan": "no", "contact": "cellular",
		"month": "may", "day_of_week": "thu", "duration": "250", "campaign": "2",
		"pdays": "999", "previous": "0", "poutcome": "nonexistent",
		"emp.var.rate": "1.1", "cons.price.idx": "93.994", "cons.conf.idx": "-36.4",
		"euribor3m": "4.857", "nr.employed": "5191", "y": "no",
	}
	for k, v := range overrides {
		if v == nil {
			delete(fields, k)
			continue
		}
		fields[k] = *v
	}
	return domain.Record{RowID: rowID, Fields: fields}
}

// Str returns a pointer to s, for use with BankRecord overrides.
func Str(s string) *string { return &s }
