package main

import (
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// loadDotEnv loads KEY=value files into the environment. Variables already set
// win; missing files are skipped.
func loadDotEnv(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return errors.Wrapf(err, "load %s", p)
		}
		log.Debug().Str("path", p).Msg("loaded environment file")
	}
	return nil
}
