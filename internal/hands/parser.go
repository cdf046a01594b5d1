package hands

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// HandFilename is the expected filename for a hand definition.
const HandFilename = "HAND.md"

// frontmatterDelimiter marks the beginning and end of the YAML frontmatter
// block in a HAND.md file.
const frontmatterDelimiter = "---"

// ParseHandFile parses a single HAND.md file into a HandDefinition.
func ParseHandFile(path string) (HandDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return HandDefinition{}, fmt.Errorf("read file: %w", err)
	}
	return ParseHand(data, filepath.Dir(path))
}

// ParseHand parses HAND.md content: a YAML frontmatter block describing a
// HandDefinition followed by a markdown body used as the description when
// the frontmatter omits one.
func ParseHand(data []byte, sourceDir string) (HandDefinition, error) {
	frontmatter, body, err := splitFrontmatter(data)
	if err != nil {
		return HandDefinition{}, fmt.Errorf("split frontmatter: %w", err)
	}

	var def HandDefinition
	if err := yaml.Unmarshal(frontmatter, &def); err != nil {
		return HandDefinition{}, fmt.Errorf("parse frontmatter: %w", err)
	}

	if def.ID == "" {
		return HandDefinition{}, fmt.Errorf("hand id is required")
	}
	if def.Name == "" {
		def.Name = def.ID
	}
	if def.Description == "" {
		def.Description = strings.TrimSpace(string(body))
	}
	def.Source = sourceDir

	return def, nil
}

// splitFrontmatter separates the YAML frontmatter from the markdown body,
// mirroring the skills package's SKILL.md convention.
func splitFrontmatter(data []byte) ([]byte, []byte, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))

	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("empty file")
	}
	if strings.TrimSpace(scanner.Text()) != frontmatterDelimiter {
		return nil, nil, fmt.Errorf("missing opening frontmatter delimiter")
	}

	var frontmatterLines []string
	foundClosing := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == frontmatterDelimiter {
			foundClosing = true
			break
		}
		frontmatterLines = append(frontmatterLines, line)
	}
	if !foundClosing {
		return nil, nil, fmt.Errorf("missing closing frontmatter delimiter")
	}

	var bodyLines []string
	for scanner.Scan() {
		bodyLines = append(bodyLines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("scanner error: %w", err)
	}

	return []byte(strings.Join(frontmatterLines, "\n")), []byte(strings.Join(bodyLines, "\n")), nil
}

// LoadBundled discovers HAND.md files under dir (one directory per hand, any
// depth) and registers each as a definition. It returns the number of hands
// loaded and the first error encountered, if any; a malformed hand does not
// stop discovery of the rest.
func (r *Registry) LoadBundled(dir string) (int, error) {
	var firstErr error
	loaded := 0

	walkErr := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != HandFilename {
			return nil
		}

		def, parseErr := ParseHandFile(path)
		if parseErr != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", path, parseErr)
			}
			return nil
		}

		r.Register(def)
		loaded++
		return nil
	})
	if walkErr != nil && firstErr == nil {
		firstErr = walkErr
	}

	return loaded, firstErr
}
