package types

// TokenCounter measures text in model tokens.
type TokenCounter interface {
	Count(text string) int
}
