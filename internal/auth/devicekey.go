package auth

import "golang.org/x/crypto/bcrypt"

// HashDeviceKey hashes a device enrollment key with the configured cost.
func HashDeviceKey(key string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CompareDeviceKey verifies an enrollment key against its stored hash.
func CompareDeviceKey(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}
