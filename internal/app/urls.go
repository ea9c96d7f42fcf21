package app

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/JakeFAU/techscan/internal/config"
)

// ReadURLs loads a URL list from path: either a JSON array of strings or one
// URL per line. Blank lines and lines starting with '#' are ignored.
func ReadURLs(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read url list: %w", err)
	}
	return ParseURLs(data)
}

// ParseURLs parses the formats accepted by ReadURLs. An empty list is an
// error wrapping config.ErrNoURLs.
func ParseURLs(data []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(data)
	var urls []string
	if bytes.HasPrefix(trimmed, []byte("[")) {
		if err := json.Unmarshal(trimmed, &urls); err != nil {
			return nil, fmt.Errorf("parse url list: %w", err)
		}
	} else {
		scanner := bufio.NewScanner(bytes.NewReader(trimmed))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			urls = append(urls, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("scan url list: %w", err)
		}
	}
	if len(urls) == 0 {
		return nil, config.ErrNoURLs
	}
	return urls, nil
}
