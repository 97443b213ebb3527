package config

import (
	"bufio"
	"os"
	"strings"
)

// LoadEnvFile reads KEY=value lines from filename into the process
// environment. Variables already set in the environment win. A missing file
// is returned as an error the caller may ignore.
func LoadEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if idx := strings.Index(line, "="); idx > 0 {
			key := strings.TrimSpace(line[:idx])
			value := strings.TrimSpace(line[idx+1:])

			// Remove quotes if present
			if len(value) >= 2 && (value[0] == '"' && value[len(value)-1] == '"') {
				value = value[1 : len(value)-1]
			}

			if os.Getenv(key) == "" {
				os.Setenv(key, value)
			}
		}
	}

	return scanner.Err()
}

// GetEnvOrDefault returns the value of key, or defaultValue when it is unset or empty.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Environment variable names read by the command line tool.
const (
	EnvPostgresURL = "POSTGRES_URL"
	EnvArchive     = "APPRAISAL_ARCHIVE"
	EnvDataDir     = "APPRAISAL_DATA_DIR"
)

// DefaultArchivePath is where runs are archived when APPRAISAL_ARCHIVE is unset.
const DefaultArchivePath = "appraisal.db"
