// Package roomcode produces and validates the 4-digit codes people type to
// join a room.
package roomcode

import (
	"errors"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
)

const (
	// Min is the smallest code ever issued.
	Min = 1000
	// Max is the largest code ever issued.
	Max = 9999
	// Length is the number of digits in a code.
	Length = 4
)

var (
	ErrEmptyCode   = errors.New("room code is empty")
	ErrInvalidCode = errors.New("room code must be 4 digits")
)

// Generator issues candidate codes. Uniqueness is the caller's problem.
type Generator interface {
	Generate() string
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func() string

// Generate calls f.
func (f GeneratorFunc) Generate() string {
	return f()
}

type randomGenerator struct{}

// NewGenerator returns a generator drawing uniformly from [Min, Max].
// Draws are independent; the same code may come back twice in a row.
func NewGenerator() Generator {
	return randomGenerator{}
}

func (randomGenerator) Generate() string {
	return strconv.Itoa(Min + rand.IntN(Max-Min+1))
}

// Sequence replays codes in order and then repeats the last one.
// Used to script collisions.
func Sequence(codes ...string) Generator {
	if len(codes) == 0 {
		panic("roomcode: empty sequence")
	}
	var (
		mu   sync.Mutex
		next int
	)
	return GeneratorFunc(func() string {
		mu.Lock()
		defer mu.Unlock()
		code := codes[next]
		if next < len(codes)-1 {
			next++
		}
		return code
	})
}

// Normalize trims raw and checks that what is left is exactly four ASCII digits.
func Normalize(raw string) (string, error) {
	code := strings.TrimSpace(raw)
	if code == "" {
		return "", ErrEmptyCode
	}
	if len(code) != Length {
		return "", ErrInvalidCode
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return "", ErrInvalidCode
		}
	}
	return code, nil
}
