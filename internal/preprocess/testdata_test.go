package preprocess

import "creditscore/internal/schema"

// application builds a complete record with the default schema's columns.
func application(age, income float64, home, intent, grade string, empLength, amount, rate, pct float64, onFile string, hist float64) Record {
	return Record{
		schema.PersonAge:              Num(age),
		schema.PersonIncome:           Num(income),
		schema.PersonHomeOwnership:    Str(home),
		schema.PersonEmpLength:        Num(empLength),
		schema.LoanIntent:             Str(intent),
		schema.LoanGrade:              Str(grade),
		schema.LoanAmount:             Num(amount),
		schema.LoanIntRate:            Num(rate),
		schema.LoanPercentIncome:      Num(pct),
		schema.CBPersonDefaultOnFile:  Str(onFile),
		schema.CBPersonCredHistLength: Num(hist),
	}
}

func trainingSet() RecordSet {
	return RecordSet{
		application(22, 59000, "RENT", "PERSONAL", "D", 123, 35000, 16.02, 0.59, "Y", 3),
		application(21, 9600, "OWN", "EDUCATION", "B", 5, 1000, 11.14, 0.10, "N", 2),
		application(25, 9600, "MORTGAGE", "MEDICAL", "C", 1, 5500, 12.87, 0.57, "N", 3),
		application(23, 65500, "RENT", "MEDICAL", "C", 4, 35000, 15.23, 0.53, "N", 2),
		application(24, 54400, "RENT", "MEDICAL", "C", 8, 35000, 14.27, 0.55, "Y", 4),
		application(21, 9900, "OWN", "VENTURE", "A", 2, 2500, 7.14, 0.25, "N", 2),
	}
}

func mustPipeline(t interface{ Fatalf(string, ...any) }) *Pipeline {
	p, err := New(schema.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}
