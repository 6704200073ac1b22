// Package inventory resolves raw host sources into an ordered, deduplicated
// set of connection targets.
package inventory

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Crusty-rs/crusty/internal/errors"
	"github.com/Crusty-rs/crusty/internal/target"
)

// Resolve normalizes the CLI host list and the optional inventory file into
// the final target set: first-seen order, duplicates by (host, port)
// collapsed. An empty result is the "no hosts" terminal error.
func Resolve(hostList string, inventoryPath string) ([]target.Target, error) {
	var targets []target.Target

	if strings.TrimSpace(hostList) != "" {
		parsed, err := target.ParseList(hostList)
		if err != nil {
			return nil, errors.New(errors.KindInventory, "invalid --hosts list", err)
		}
		targets = append(targets, parsed...)
	}

	if inventoryPath != "" {
		fromFile, err := LoadFile(inventoryPath)
		if err != nil {
			return nil, err
		}
		targets = append(targets, fromFile...)
	}

	targets = target.Dedupe(targets)
	if len(targets) == 0 {
		return nil, errors.Inventoryf("no target hosts specified; use --hosts or --inventory")
	}
	return targets, nil
}

// LoadFile loads targets from an inventory file. YAML and JSON files parse
// as Ansible-style inventories; everything else follows the line-oriented
// host[:port] contract.
func LoadFile(path string) ([]target.Target, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml", ".json":
		return loadAnsible(path)
	default:
		return loadText(path)
	}
}

// loadText parses a line-oriented inventory: one host[:port] per line,
// #-prefixed lines and blank lines ignored, inline trailing comments after
// the host token stripped.
func loadText(path string) ([]target.Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(errors.KindInventory, fmt.Sprintf("cannot open inventory file %s", path), err)
	}
	defer f.Close()

	targets, err := parseLines(f)
	if err != nil {
		return nil, errors.New(errors.KindInventory, fmt.Sprintf("cannot parse inventory file %s", path), err)
	}
	return targets, nil
}

func parseLines(r io.Reader) ([]target.Target, error) {
	var targets []target.Target
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
			if line == "" {
				continue
			}
		}
		t, err := target.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		targets = append(targets, t)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read error: %w", err)
	}
	return targets, nil
}
