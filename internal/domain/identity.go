package domain

// Identity is the trusted caller identity resolved by the auth gate.
// It is deliberately decoupled from any provider SDK shape.
type Identity struct {
	ID          string
	Email       string
	DisplayName string
	ImageURL    string
}
