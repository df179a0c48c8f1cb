// gen-docs は geocdn のコマンドリファレンスを docs/ 以下にMarkdownで生成します。
// ルートは docs/README.md、トップレベルのコマンド（origin, dist, edge, scan）ごとに1ファイルです。
package main

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"geocdn/cmd"
)

const docsDir = "./docs"

func main() {
	if err := os.RemoveAll(docsDir); err != nil {
		log.Fatalf("Failed to clean docs directory: %v", err)
	}
	if err := os.MkdirAll(docsDir, 0o755); err != nil {
		log.Fatalf("Failed to create docs directory: %v", err)
	}

	// 自動生成のフッター日付で差分が出ないようにする
	cmd.RootCmd.DisableAutoGenTag = true

	if err := genSingleMarkdown(cmd.RootCmd, filepath.Join(docsDir, "README.md")); err != nil {
		log.Fatalf("Failed to generate root documentation: %v", err)
	}

	groups := groupCommands(cmd.RootCmd)
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		filename := filepath.Join(docsDir, name+".md")
		if err := genGroupMarkdown(name, groups[name], filename); err != nil {
			log.Printf("Failed to generate documentation for %s: %v", name, err)
		}
	}
	fmt.Printf("✅ Documentation generated in %s (%d files)\n", docsDir, len(groups)+1)
}

// groupCommands はトップレベルのコマンドごとに、その配下の全コマンドを深さ優先で集めます
func groupCommands(root *cobra.Command) map[string][]*cobra.Command {
	groups := map[string][]*cobra.Command{}
	var walk func(group string, c *cobra.Command)
	walk = func(group string, c *cobra.Command) {
		if !c.IsAvailableCommand() || c.IsAdditionalHelpTopicCommand() {
			return
		}
		groups[group] = append(groups[group], c)
		for _, child := range c.Commands() {
			walk(group, child)
		}
	}
	for _, top := range root.Commands() {
		walk(top.Name(), top)
	}
	return groups
}

// linkHandler はコマンド名からリンク先を求めます。
// geocdn_dist_create -> dist.md#geocdn-dist-create、geocdn_dist -> dist.md
func linkHandler(name string) string {
	base := strings.TrimSuffix(name, ".md")
	if base == cmd.AppName {
		return "README.md"
	}
	parts := strings.Split(base, "_")
	if len(parts) < 2 || parts[0] != cmd.AppName {
		return name
	}
	if len(parts) == 2 {
		return parts[1] + ".md"
	}
	return parts[1] + ".md#" + strings.ReplaceAll(base, "_", "-")
}

var linkPattern = regexp.MustCompile(`\]\(([\w-]+)\.md\)`)

// fixLinks は cobra/doc が出力する (geocdn_xxx.md) 形式のリンクを書き換えます
func fixLinks(content string) string {
	return linkPattern.ReplaceAllStringFunc(content, func(m string) string {
		name := linkPattern.FindStringSubmatch(m)[1]
		return "](" + linkHandler(name) + ")"
	})
}

func shouldRemoveInheritedFlags(c *cobra.Command) bool {
	return c.Name() == "version" || c.Annotations["offline"] == "true"
}

func genSingleMarkdown(c *cobra.Command, filename string) error {
	buf := new(bytes.Buffer)
	if err := doc.GenMarkdown(c, buf); err != nil {
		return err
	}
	return os.WriteFile(filename, []byte(fixLinks(buf.String())), 0o644)
}

// genGroupMarkdown はグループ内の全コマンドを目次付きの1ファイルにまとめます
func genGroupMarkdown(group string, commands []*cobra.Command, filename string) error {
	var content strings.Builder
	fmt.Fprintf(&content, "# %s Commands\n\n", group)
	fmt.Fprintf(&content, "This document describes all `%s %s` commands.\n\n", cmd.AppName, group)
	content.WriteString("## Table of Contents\n\n")
	for _, c := range commands {
		path := c.CommandPath()
		fmt.Fprintf(&content, "- [%s](#%s)\n", path, strings.ReplaceAll(path, " ", "-"))
	}
	content.WriteString("\n---\n\n")

	for _, c := range commands {
		buf := new(bytes.Buffer)
		if err := doc.GenMarkdown(c, buf); err != nil {
			return fmt.Errorf("failed to generate markdown for %s: %w", c.CommandPath(), err)
		}
		section := buf.String()
		if shouldRemoveInheritedFlags(c) {
			section = removeInheritedFlagsSection(section)
		}
		content.WriteString(fixLinks(section))
		content.WriteString("\n---\n\n")
	}
	return os.WriteFile(filename, []byte(content.String()), 0o644)
}

// removeInheritedFlagsSection は継承フラグセクションを削除
func removeInheritedFlagsSection(content string) string {
	lines := strings.Split(content, "\n")
	result := []string{}
	inInheritedSection := false

	for _, line := range lines {
		if strings.HasPrefix(line, "### Options inherited from parent commands") {
			inInheritedSection = true
			continue
		}
		// 次のセクションに到達したら除外モードを解除
		if inInheritedSection && (strings.HasPrefix(line, "### ") || strings.HasPrefix(line, "## ")) {
			inInheritedSection = false
		}
		if !inInheritedSection {
			result = append(result, line)
		}
	}
	return strings.Join(result, "\n")
}
