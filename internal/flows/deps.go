package flows

// Deps groups the flow dependency sets. The engine builds this once and
// delegates each operation to the matching Run function.
type Deps struct {
	Password PasswordDeps
	Code     CodeDeps
	Login    LoginDeps
}
