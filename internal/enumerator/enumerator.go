// Package enumerator parses the JSON manifest tree produced by
// "<tool> flake show --json --all-systems <flake-url>" into a flat,
// ordered target list for one commit (spec §4.2).
package enumerator

import (
	"fmt"
	"strings"

	"git.home.luguber.info/inful/autobuildd/internal/config"
	"git.home.luguber.info/inful/autobuildd/internal/model"
)

const systemConfigPrefix = "nixosConfigurations"
const systemConfigType = "nixos-configuration"
const systemConfigSuffix = ".config.system.build.toplevel"

// Enumerate recursively classifies manifest (the raw stdout of a flake
// show invocation) into TargetNodes owned by commit, depth-first in
// document key order (spec §4.2).
func Enumerate(manifest []byte, commit *model.CommitNode) ([]*model.TargetNode, error) {
	root := &node{}
	if err := root.UnmarshalJSON(manifest); err != nil {
		return nil, fmt.Errorf("enumerator: %w", err)
	}
	if !root.isObject {
		return nil, fmt.Errorf("enumerator: manifest root is not a JSON object")
	}

	var out []*model.TargetNode
	walk(root, "", commit, &out)
	return out, nil
}

func walk(n *node, path string, commit *model.CommitNode, out *[]*model.TargetNode) {
	if desc, name, typeTag, ok := derivationFields(n); ok {
		arch := classifyArch(architectureSegment(path))
		flakeURL := commit.FlakeURL + "#" + path
		*out = append(*out, model.NewDerivationTarget(commit, path, name, desc, typeTag, arch, flakeURL))
		return
	}

	if strings.HasPrefix(path, systemConfigPrefix) {
		if typeTag, ok := stringValue(n.fields["type"]); ok && typeTag == systemConfigType {
			rewritten := path + systemConfigSuffix
			flakeURL := commit.FlakeURL + "#" + rewritten
			*out = append(*out, model.NewSystemConfigTarget(commit, rewritten, typeTag, flakeURL))
			return
		}
	}

	for _, key := range n.keys {
		child := n.fields[key]
		if child == nil || !child.isObject {
			continue
		}
		childPath := key
		if path != "" {
			childPath = path + "." + key
		}
		walk(child, childPath, commit, out)
	}
}

// derivationFields reports whether n carries the three string fields that
// mark it as a Derivation (spec §4.2 step 1).
func derivationFields(n *node) (description, name, typeTag string, ok bool) {
	if n == nil || !n.isObject {
		return "", "", "", false
	}
	description, dok := stringValue(n.fields["description"])
	name, nok := stringValue(n.fields["name"])
	typeTag, tok := stringValue(n.fields["type"])
	if dok && nok && tok {
		return description, name, typeTag, true
	}
	return "", "", "", false
}

// architectureSegment extracts the path segment between the first two '.'
// separators (spec §3's exact definition of where the architecture tag
// lives). If there is no second separator, the segment runs to the end of
// the path.
func architectureSegment(path string) string {
	firstDot := strings.IndexByte(path, '.')
	if firstDot == -1 {
		return ""
	}
	rest := path[firstDot+1:]
	if secondDot := strings.IndexByte(rest, '.'); secondDot != -1 {
		return rest[:secondDot]
	}
	return rest
}

// classifyArch returns the longest of the 24 canonical architecture tags
// that is a prefix of segment, or "unknown" when none match (spec §3).
func classifyArch(segment string) string {
	best := ""
	for _, tag := range config.ArchitectureAllowlist {
		if strings.HasPrefix(segment, tag) && len(tag) > len(best) {
			best = tag
		}
	}
	if best == "" {
		return "unknown"
	}
	return best
}
