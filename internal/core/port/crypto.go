package port

// PasswordHasher hashes and verifies secrets using the configured algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}

// CredentialVerifier decides whether a presented secret matches the user's
// stored credential. The default verifies the stored hash; deployments backed
// by an external identity provider substitute their own.
type CredentialVerifier interface {
	VerifyCredential(storedHash string) (bool, error)
}

// CredentialVerifierFunc adapts a function to CredentialVerifier.
type CredentialVerifierFunc func(storedHash string) (bool, error)

// VerifyCredential calls f.
func (f CredentialVerifierFunc) VerifyCredential(storedHash string) (bool, error) {
	return f(storedHash)
}
