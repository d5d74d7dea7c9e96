package domain

// MFAEnrollment is a freshly generated TOTP secret that has not been
// confirmed yet. Nothing is stored until the user proves they can produce
// a code from it.
type MFAEnrollment struct {
	Secret  string `json:"secret"`  // base32
	URL     string `json:"url"`     // otpauth:// for QR rendering
	Issuer  string `json:"issuer"`
	Account string `json:"account"`
}
