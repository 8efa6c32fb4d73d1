package config

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
)

// keyValueLineRe is the strict shell-style assignment shape; anything else
// (besides a blank line or a '#' comment) is a malformed line and rejected
// outright rather than silently skipped.
var keyValueLineRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*=.*$`)

// loadConfigFile parses path as a shell-style KEY=VALUE file. A missing file
// returns an empty map and no error. Quoting and escaping follow
// godotenv's dotenv-compatible rules once a line has passed the strict
// shape check below.
func loadConfigFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var valid strings.Builder
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !keyValueLineRe.MatchString(line) {
			return nil, fmt.Errorf("%s: malformed line %q, expected KEY=VALUE", path, line)
		}
		valid.WriteString(line)
		valid.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return godotenv.Unmarshal(valid.String())
}
