package validator

import (
	"errors"
	"strings"
)

// ATO weighting factors for the ABN check digit algorithm.
var abnWeights = [11]int{10, 1, 3, 5, 7, 9, 11, 13, 15, 17, 19}

// ValidateABN checks an Australian Business Number using the ATO modulus 89
// algorithm. Spaces are ignored so "51 824 753 556" and "51824753556" are
// both accepted.
func ValidateABN(abn string) error {
	cleaned := strings.ReplaceAll(abn, " ", "")
	if len(cleaned) != 11 {
		return errors.New("abn must be 11 digits")
	}

	sum := 0
	for i, c := range cleaned {
		if c < '0' || c > '9' {
			return errors.New("abn must contain digits only")
		}
		digit := int(c - '0')
		if i == 0 {
			digit--
		}
		sum += digit * abnWeights[i]
	}

	if sum%89 != 0 {
		return errors.New("abn checksum failed")
	}

	return nil
}
