package bot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-telegram/bot/models"
)

// filteredDirs are build and dependency directories hidden from the repo
// browser alongside dotfiles.
var filteredDirs = map[string]bool{
	"node_modules": true,
	"__pycache__":  true,
	"target":       true,
	"build":        true,
	"dist":         true,
	"vendor":       true,
}

// listVisibleChildren returns the sorted visible child directories of dir.
func listVisibleChildren(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var children []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") || filteredDirs[e.Name()] {
			continue
		}
		children = append(children, filepath.Join(dir, e.Name()))
	}
	sort.Strings(children)
	return children
}

// isBranchDir reports whether dir has visible child directories to navigate
// into; leaf directories are selected directly.
func isBranchDir(dir string) bool {
	return len(listVisibleChildren(dir)) > 0
}

// isGitRepo reports whether dir is a git working tree root.
func isGitRepo(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil && info.IsDir()
}

// browseHeader renders the current browse location relative to its root.
func browseHeader(browseDir, root string) string {
	rel, err := filepath.Rel(root, browseDir)
	display := "/"
	if err == nil && rel != "." {
		display = rel + "/"
	}
	return fmt.Sprintf("📂 <b>Browsing:</b> <code>%s</code>", EscapeHTML(display))
}

// browserKeyboard builds the inline keyboard for browseDir: a navigation row
// (select-here, up) followed by child directories two per row. Branch
// directories navigate (nav:), leaves select (sel:).
func browserKeyboard(browseDir, root string, multiRoot bool) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton

	navRow := []models.InlineKeyboardButton{
		{Text: ". (select)", CallbackData: "sel:."},
	}
	if browseDir != root || multiRoot {
		navRow = append(navRow, models.InlineKeyboardButton{Text: "..", CallbackData: "nav:.."})
	}
	rows = append(rows, navRow)

	children := listVisibleChildren(browseDir)
	for i := 0; i < len(children); i += 2 {
		var row []models.InlineKeyboardButton
		for j := i; j < i+2 && j < len(children); j++ {
			rel, err := filepath.Rel(root, children[j])
			if err != nil {
				continue
			}
			prefix := "sel"
			if isBranchDir(children[j]) {
				prefix = "nav"
			}
			row = append(row, models.InlineKeyboardButton{
				Text:         filepath.Base(children[j]),
				CallbackData: prefix + ":" + rel,
			})
		}
		rows = append(rows, row)
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// browserListing renders the text body of the browser message.
func browserListing(browseDir, root string) string {
	lines := []string{browseHeader(browseDir, root), ""}
	children := listVisibleChildren(browseDir)
	for _, child := range children {
		icon := "📁"
		if isGitRepo(child) {
			icon = "📦"
		}
		marker := ""
		if isBranchDir(child) {
			marker = " ▶"
		}
		lines = append(lines, fmt.Sprintf("%s <code>%s/</code>%s", icon, EscapeHTML(filepath.Base(child)), marker))
	}
	if len(children) == 0 {
		lines = append(lines, "<i>No subdirectories</i>")
	}
	return strings.Join(lines, "\n")
}

// resolveBrowsePath resolves a user-supplied relative path against the
// approved roots in order, returning the first existing directory that stays
// inside its root.
func resolveBrowsePath(target string, roots []string) (path, root string, ok bool) {
	for _, r := range roots {
		candidate := filepath.Clean(filepath.Join(r, target))
		if !isUnderDir(candidate, r) {
			continue
		}
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, r, true
		}
	}
	return "", "", false
}

// isUnderDir reports whether path equals root or is nested below it.
func isUnderDir(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}
