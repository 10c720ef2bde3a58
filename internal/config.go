package internal

import (
	"fmt"
	"time"
)

// Config is the environment-driven configuration of the demo binary.
type Config struct {
	LogLevel       string `env:"LOG_LEVEL,required=true"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	SearchIndexDir string `env:"SEARCH_INDEX_DIR"`

	EventBufferSize    int           `env:"EVENT_BUFFER_SIZE,required=true"`
	SubscriptionBuffer int           `env:"SUBSCRIPTION_BUFFER,required=true"`
	RestartInterval    time.Duration `env:"RESTART_INTERVAL,required=true"`
	StatsInterval      time.Duration `env:"STATS_INTERVAL,required=true"`

	RetryAttempts  int           `env:"RETRY_ATTEMPTS,required=true"`
	RetryBaseDelay time.Duration `env:"RETRY_BASE_DELAY,required=true"`
	RetryMaxDelay  time.Duration `env:"RETRY_MAX_DELAY,required=true"`

	AuthSecret      string        `env:"AUTH_SECRET,required=true"`
	SessionDuration time.Duration `env:"SESSION_DURATION,required=true"`

	CensoredWordsPath string `env:"CENSORED_WORDS_PATH"`
	CharReplacement   string `env:"CHARACTER_REPLACEMENT,required=true"`
}

// CharacterRune enforces that the configured mask is a single character.
func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
