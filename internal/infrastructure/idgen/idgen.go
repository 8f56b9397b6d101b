// Package idgen generates short, URL-safe identifiers for events and frames.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

const (
	EventPrefix   = "evt_"
	SessionPrefix = "ses_"
	SystemPrefix  = "sys_"
)

// Alphabet is the character set of the random portion.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters, excluding the prefix.
const Length = 12

// GenerateWithPrefix returns a new unique ID with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// EventID returns a new event id. nanoid only fails when the system random
// source does, which leaves nothing sensible to do but panic.
func EventID() string {
	return must(GenerateWithPrefix(EventPrefix))
}

// SessionID returns a new id for a stream subscription.
func SessionID() string {
	return must(GenerateWithPrefix(SessionPrefix))
}

// SystemEventID returns a new id for a system event payload.
func SystemEventID() string {
	return must(GenerateWithPrefix(SystemPrefix))
}

func must(id string, err error) string {
	if err != nil {
		panic(err)
	}
	return id
}
