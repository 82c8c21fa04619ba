package usecase

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// OTPLength is the number of decimal digits in a one-time code.
const OTPLength = 6

var otpSpace = big.NewInt(1_000_000)

// GenerateOTP returns a uniformly random zero-padded six digit code.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", OTPLength, n.Int64()), nil
}

func validOTPFormat(code string) bool {
	if len(code) != OTPLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
