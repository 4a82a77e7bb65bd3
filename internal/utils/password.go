package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword bcrypt-hashes a password with the configured cost. Costs
// below the bcrypt minimum fall back to the library default rather than
// producing weak hashes from a misconfigured BCRYPT_COST.
func HashPassword(plain string, cost int) (string, error) {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword reports whether plain matches the stored bcrypt hash.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
