package validator

import "testing"

func TestValidateABN(t *testing.T) {
	valid := []string{
		"51824753556",
		"51 824 753 556",
		"53004085616",
	}
	for _, abn := range valid {
		if err := ValidateABN(abn); err != nil {
			t.Errorf("expected %q to be valid, got %v", abn, err)
		}
	}

	invalid := []string{
		"",
		"51824753557",  // bad check digit
		"5182475355",   // too short
		"518247535561", // too long
		"51824x53556",  // non-digit
	}
	for _, abn := range invalid {
		if err := ValidateABN(abn); err == nil {
			t.Errorf("expected %q to be rejected", abn)
		}
	}
}
