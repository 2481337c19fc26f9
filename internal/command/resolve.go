package command

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/sipchat/internal/engine"
	"github.com/Iron-Ham/sipchat/internal/errors"
)

// ResolveError reports a token that matched no candidate, or more than one.
// It matches errors.ErrAmbiguousOrUnknown.
type ResolveError struct {
	Token      string
	Candidates []string
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("Please provide %s. Cannot understand '%s'", strings.Join(e.Candidates, "|"), e.Token)
}

// Unwrap lets errors.Is match ErrAmbiguousOrUnknown.
func (e *ResolveError) Unwrap() error { return errors.ErrAmbiguousOrUnknown }

// Resolve maps token to a canonical name. An exact match wins even when the
// token is also a prefix of longer candidates; otherwise exactly one
// candidate must start with token.
func Resolve(token string, candidates []string) (string, error) {
	return resolve(token, candidates, false)
}

// ResolveFold is Resolve with case-insensitive matching.
func ResolveFold(token string, candidates []string) (string, error) {
	return resolve(token, candidates, true)
}

func resolve(token string, candidates []string, fold bool) (string, error) {
	norm := func(s string) string { return s }
	if fold {
		norm = strings.ToLower
	}
	t := norm(token)

	for _, c := range candidates {
		if norm(c) == t {
			return c, nil
		}
	}

	var match string
	matches := 0
	if t != "" {
		for _, c := range candidates {
			if strings.HasPrefix(norm(c), t) {
				match = c
				matches++
			}
		}
	}
	if matches != 1 {
		return "", &ResolveError{Token: token, Candidates: candidates}
	}
	return match, nil
}

// ResolveStream resolves a stream token such as "c", "+chat" or "Audio".
// The returned flag reports whether the token carried a leading "+".
func ResolveStream(token string) (engine.StreamKind, bool, error) {
	plus := strings.HasPrefix(token, "+")
	name, err := ResolveFold(strings.ReplaceAll(token, "+", ""), streamNames())
	if err != nil {
		return "", plus, err
	}
	return engine.StreamKind(name), plus, nil
}

func streamNames() []string {
	names := make([]string, 0, len(engine.StreamKinds))
	for _, k := range engine.StreamKinds {
		names = append(names, string(k))
	}
	return names
}
