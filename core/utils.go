package core

import (
	"math/rand/v2"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// SeedEnv is the environment variable read by GetSeed.
const SeedEnv = "COLSEL_SEED"

// GetSeed receives a seed value for random number generation from the COLSEL_SEED environment variable.
func GetSeed() uint64 {
	seedStr := os.Getenv(SeedEnv)
	if seedStr != "" {
		if seed, err := strconv.ParseUint(seedStr, 10, 64); err == nil {
			log.Info().Msgf("Using seed from %s value: %d", SeedEnv, seed)
			return seed
		}
		log.Warn().Msgf("Failed to parse %s value: %s", SeedEnv, seedStr)
	}

	seed := uint64(time.Now().UnixNano())
	log.Info().Msgf("Using current time as seed: %d", seed)
	return seed
}

// NewRand returns a PCG-backed generator for the given seed.
// Every selector takes its randomness from an explicit *rand.Rand built here.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
