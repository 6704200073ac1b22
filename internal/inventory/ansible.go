package inventory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Crusty-rs/crusty/internal/errors"
	"github.com/Crusty-rs/crusty/internal/target"
)

// ansibleGroup mirrors the subset of the Ansible inventory format that maps
// onto plain connection targets: hostnames with optional ansible_host and
// ansible_port overrides, grouped arbitrarily deep.
type ansibleGroup struct {
	Hosts    map[string]*ansibleHost  `yaml:"hosts" json:"hosts"`
	Children map[string]*ansibleGroup `yaml:"children" json:"children"`
}

type ansibleHost struct {
	AnsibleHost string `yaml:"ansible_host" json:"ansible_host"`
	AnsiblePort int    `yaml:"ansible_port" json:"ansible_port"`
}

// loadAnsible parses a YAML or JSON Ansible inventory into targets. The
// "all" group is visited first, then the remaining groups in sorted name
// order, so runs are reproducible.
func loadAnsible(path string) ([]target.Target, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.KindInventory, fmt.Sprintf("cannot read inventory file %s", path), err)
	}

	groups := make(map[string]*ansibleGroup)
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		err = json.Unmarshal(content, &groups)
	} else {
		err = yaml.Unmarshal(content, &groups)
	}
	if err != nil {
		return nil, errors.New(errors.KindInventory, fmt.Sprintf("cannot parse inventory file %s", path), err)
	}

	var targets []target.Target
	if all, ok := groups["all"]; ok {
		targets = append(targets, groupTargets(all)...)
	}
	names := make([]string, 0, len(groups))
	for name := range groups {
		if name != "all" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		targets = append(targets, groupTargets(groups[name])...)
	}
	return targets, nil
}

func groupTargets(g *ansibleGroup) []target.Target {
	if g == nil {
		return nil
	}
	var targets []target.Target

	names := make([]string, 0, len(g.Hosts))
	for name := range g.Hosts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		targets = append(targets, hostTarget(name, g.Hosts[name]))
	}

	children := make([]string, 0, len(g.Children))
	for name := range g.Children {
		children = append(children, name)
	}
	sort.Strings(children)
	for _, name := range children {
		targets = append(targets, groupTargets(g.Children[name])...)
	}
	return targets
}

func hostTarget(name string, h *ansibleHost) target.Target {
	t := target.Target{Host: name, Port: target.DefaultPort}
	if h == nil {
		return t
	}
	if h.AnsibleHost != "" {
		t.Host = h.AnsibleHost
	}
	if h.AnsiblePort > 0 {
		t.Port = h.AnsiblePort
	}
	return t
}
