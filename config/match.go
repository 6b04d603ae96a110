package config

import (
	"encoding/json"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/tansy/pkg/models"
)

// LoadMatchConfig builds the matching configuration. When MATCH_CONFIG_PATH
// points at a JSON file it wins wholesale; otherwise the banking defaults
// apply with the scalar knobs taken from the environment.
func LoadMatchConfig(cfg Config) (models.MatchConfig, error) {
	matchCfg := models.DefaultMatchConfig()

	if cfg.MatchConfigPath != "" {
		data, err := os.ReadFile(cfg.MatchConfigPath)
		if err != nil {
			return models.MatchConfig{}, errors.Wrap(err, "failed to read match config file")
		}
		matchCfg = models.MatchConfig{}
		if err := json.Unmarshal(data, &matchCfg); err != nil {
			return models.MatchConfig{}, errors.Wrap(err, "failed to parse match config file")
		}
	} else {
		matchCfg.MinConfidence = cfg.MatchMinConfidence
		matchCfg.MaxCandidates = cfg.MatchMaxCandidates
		matchCfg.ScoreWorkers = cfg.MatchScoreWorkers
		matchCfg.MissingFieldPenalty = cfg.MatchMissingPenalty
	}

	if err := validator.New().Struct(&matchCfg); err != nil {
		return models.MatchConfig{}, errors.Wrap(err, "invalid match config")
	}

	return matchCfg, nil
}
